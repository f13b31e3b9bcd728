package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"crlf", "a\r\nb\r\nc", "a\nb\nc"},
		{"paragraph kept", "a\n\nb", "a\n\nb"},
		{"three newlines", "a\n\n\nb", "a\n\nb"},
		{"many crlf", "a\r\n\r\n\r\n\r\nb", "a\n\nb"},
		{"stray carriage returns before newline", "a\r\r\nb", "a\nb"},
		{"lone carriage return untouched", "a\rb", "a\rb"},
		{"trailing run", "end\n\n\n\n", "end\n\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"\r\r\n\n\n",
		"a\r\n\r\nb\n\n\n\nc\r",
		"\n\n\n\n\n\n",
		"x\r\n\n\r\n\ny",
		"héllo\r\n\r\n\r\nwörld",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

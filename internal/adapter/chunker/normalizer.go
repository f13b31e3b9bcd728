package chunker

import "regexp"

var (
	crlfRun      = regexp.MustCompile(`\r+\n`)
	blankLineRun = regexp.MustCompile(`\n{3,}`)
)

// Normalize unifies line endings and collapses runs of three or more newlines
// into a single paragraph break. Carriage returns directly before a newline
// are folded into it, so "\r\r\n" becomes "\n". It is total and idempotent.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	text := crlfRun.ReplaceAllString(raw, "\n")
	return blankLineRun.ReplaceAllString(text, "\n\n")
}

package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"docingest/internal/domain"
)

const (
	sentenceWindowRatio  = 0.10
	paragraphWindowRatio = 0.15
)

// ErrInvalidOptions is returned for settings that cannot make forward progress.
var ErrInvalidOptions = errors.New("chunker: invalid options")

// Options tunes boundary preferences of the Segmenter.
type Options struct {
	RespectSentences  bool
	RespectParagraphs bool
	// MinChunkSize suppresses fragments shorter than this, except at the tail.
	MinChunkSize int
}

// Segmenter cuts text into overlapping windows of roughly targetSize runes,
// nudging each cut towards word, sentence and paragraph boundaries.
type Segmenter struct {
	targetSize int
	overlap    int
	opts       Options
}

// ValidateSettings rejects configurations for which the window would not
// advance. Every accepted configuration has a step of at least one rune.
func ValidateSettings(targetSize, overlap int, opts Options) error {
	if targetSize <= 0 {
		return fmt.Errorf("%w: target size must be greater than zero, got %d", ErrInvalidOptions, targetSize)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidOptions, overlap)
	}
	if overlap >= targetSize {
		return fmt.Errorf("%w: overlap %d must be smaller than target size %d", ErrInvalidOptions, overlap, targetSize)
	}
	if opts.MinChunkSize < 0 {
		return fmt.Errorf("%w: min chunk size cannot be negative, got %d", ErrInvalidOptions, opts.MinChunkSize)
	}
	if opts.MinChunkSize > targetSize {
		return fmt.Errorf("%w: min chunk size %d exceeds target size %d", ErrInvalidOptions, opts.MinChunkSize, targetSize)
	}
	return nil
}

func NewSegmenter(targetSize, overlap int, opts Options) (*Segmenter, error) {
	if err := ValidateSettings(targetSize, overlap, opts); err != nil {
		return nil, err
	}
	return &Segmenter{
		targetSize: targetSize,
		overlap:    overlap,
		opts:       opts,
	}, nil
}

// Segment is a one-shot helper around NewSegmenter.
func Segment(text string, targetSize, overlap int, opts Options) ([]domain.Chunk, error) {
	s, err := NewSegmenter(targetSize, overlap, opts)
	if err != nil {
		return nil, err
	}
	return s.Segment(text), nil
}

// Segment returns the chunks of text in order. Offsets and lengths are in
// runes. Empty input yields no chunks.
func (s *Segmenter) Segment(text string) []domain.Chunk {
	runes := []rune(text)
	n := len(runes)

	var chunks []domain.Chunk
	order := 0
	position := 0

	for position < n {
		end := position + s.targetSize
		if end > n {
			end = n
		}
		end = s.wordBoundary(runes, position, end)

		relocated := false
		if s.opts.RespectSentences && end < n {
			if cut, ok := s.sentenceBoundary(runes, end); ok {
				end = cut
				relocated = true
			}
		}
		if s.opts.RespectParagraphs && end < n && !relocated {
			if cut, ok := s.paragraphBoundary(runes, end); ok {
				end = cut
			}
		}

		content := strings.TrimSpace(string(runes[position:end]))
		length := utf8.RuneCountInString(content)

		// Too small and not the tail: re-window from the cut instead of emitting.
		// With only whitespace after the cut there is nothing to re-window into,
		// so the window becomes the tail.
		if length < s.opts.MinChunkSize && position+s.targetSize < n {
			if hasContent(runes[end:]) {
				position = end
				continue
			}
			end = n
		}

		if content != "" {
			chunks = append(chunks, domain.Chunk{
				Content:   content,
				StartChar: position,
				EndChar:   end,
				Order:     order,
				Length:    length,
			})
			order++
		}

		// A window that reaches the end covers the whole remainder.
		if end >= n {
			break
		}

		next := position + s.step()
		if floor := end - s.overlap; next < floor {
			next = floor
		}
		position = next
	}

	return chunks
}

func hasContent(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

func (s *Segmenter) step() int {
	step := s.targetSize - s.overlap
	if s.opts.MinChunkSize > step {
		step = s.opts.MinChunkSize
	}
	return step
}

// wordBoundary moves a cut that lands inside a token back to the preceding
// whitespace. A token with no whitespace before it is cut as is.
func (s *Segmenter) wordBoundary(runes []rune, position, end int) int {
	if end >= len(runes) || unicode.IsSpace(runes[end]) {
		return end
	}
	for i := end - 1; i > position; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}

func (s *Segmenter) sentenceBoundary(runes []rune, end int) (int, bool) {
	window := int(float64(s.targetSize) * sentenceWindowRatio)
	for i := end; i < len(runes) && i-end <= window; i++ {
		if runes[i] == '.' {
			return i + 1, true
		}
	}
	return end, false
}

func (s *Segmenter) paragraphBoundary(runes []rune, end int) (int, bool) {
	window := int(float64(s.targetSize) * paragraphWindowRatio)
	for i := end; i+1 < len(runes) && i-end <= window; i++ {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i, true
		}
	}
	return end, false
}

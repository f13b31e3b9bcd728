package port

import "docingest/internal/domain"

// Chunker splits normalized text into ordered, overlapping chunks.
type Chunker interface {
	Segment(text string) []domain.Chunk
}

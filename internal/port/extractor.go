package port

import "context"

// Extractor turns an uploaded document into plain text.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

package port

import (
	"context"

	"docingest/internal/domain"
)

// RecordStore persists chunk records.
type RecordStore interface {
	// InsertAll writes every record or none of them.
	InsertAll(ctx context.Context, records []domain.Record) error
}

// RecordReader reads persisted records back, grouped by document.
type RecordReader interface {
	Documents(ctx context.Context) ([]domain.Document, error)

	RecordsByDocument(ctx context.Context, documentID string) ([]domain.Record, error)
}

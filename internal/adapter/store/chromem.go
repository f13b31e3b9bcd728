package store

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"docingest/internal/domain"
)

const defaultCollection = "chunks"

var (
	errEmbeddingRequired = errors.New("records must carry their embedding")
	errIncompleteBatch   = errors.New("batch was not fully written")
)

// ChromemStore persists records into a chromem-go collection. chromem has no
// transactions, so a failed batch is rolled back by deleting what was added.
type ChromemStore struct {
	db          *chromem.DB
	coll        *chromem.Collection
	concurrency int

	// add is coll.AddDocuments; tests replace it to simulate partial writes.
	add func(ctx context.Context, docs []chromem.Document, concurrency int) error
}

// NewChromemStore opens a persistent chromem DB at path. An empty path keeps
// everything in memory.
func NewChromemStore(path string, compress bool) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db: %w", err)
		}
	}

	// Embeddings always arrive precomputed; the collection must never embed.
	noEmbed := func(context.Context, string) ([]float32, error) {
		return nil, errEmbeddingRequired
	}
	coll, err := db.GetOrCreateCollection(defaultCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	return &ChromemStore{db: db, coll: coll, concurrency: runtime.NumCPU(), add: coll.AddDocuments}, nil
}

// InsertAll adds every record or none. AddDocuments stops silently when ctx
// is cancelled, so the batch is checked for completeness afterwards.
func (s *ChromemStore) InsertAll(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(records))
	ids := make([]string, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record %d: empty id", i)
		}
		if len(rec.Embedding) == 0 {
			return fmt.Errorf("record %s: %w", rec.ID, errEmbeddingRequired)
		}
		if _, dup := seen[rec.ID]; dup {
			return fmt.Errorf("record %s: duplicate id in batch", rec.ID)
		}
		if _, err := s.coll.GetByID(ctx, rec.ID); err == nil {
			return fmt.Errorf("record %s already exists", rec.ID)
		}
		seen[rec.ID] = struct{}{}
		ids[i] = rec.ID
		docs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   rec.Content,
			Embedding: rec.Embedding,
			Metadata:  recordMetadata(rec),
		}
	}

	err := s.add(ctx, docs, s.concurrency)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = s.checkStored(ids)
	}
	if err != nil {
		return s.rollback(ids, err)
	}
	return nil
}

func (s *ChromemStore) checkStored(ids []string) error {
	missing := 0
	for _, id := range ids {
		if _, err := s.coll.GetByID(context.Background(), id); err != nil {
			missing++
		}
	}
	if missing > 0 {
		return fmt.Errorf("%w: %d of %d records missing", errIncompleteBatch, missing, len(ids))
	}
	return nil
}

// rollback removes ids with a fresh context so a cancelled request still
// cleans up after itself.
func (s *ChromemStore) rollback(ids []string, cause error) error {
	if err := s.coll.Delete(context.Background(), nil, nil, ids...); err != nil {
		return errors.Join(cause, fmt.Errorf("rollback failed: %w", err))
	}
	return cause
}

// Record returns one stored record by id.
func (s *ChromemStore) Record(ctx context.Context, id string) (domain.Record, error) {
	doc, err := s.coll.GetByID(ctx, id)
	if err != nil {
		return domain.Record{}, err
	}
	return recordFromDocument(doc), nil
}

func (s *ChromemStore) DeleteDocument(ctx context.Context, documentID string) error {
	return s.coll.Delete(ctx, map[string]string{"document_id": documentID}, nil)
}

func (s *ChromemStore) Count() int {
	return s.coll.Count()
}

func recordMetadata(rec domain.Record) map[string]string {
	m := map[string]string{
		"user_id":     rec.UserID,
		"document_id": rec.Metadata.DocumentID,
		"start_char":  strconv.Itoa(rec.Metadata.StartChar),
		"end_char":    strconv.Itoa(rec.Metadata.EndChar),
		"order":       strconv.Itoa(rec.Metadata.Order),
		"length":      strconv.Itoa(rec.Metadata.Length),
	}
	if rec.Metadata.Source != "" {
		m["source"] = rec.Metadata.Source
	}
	if rec.Metadata.Title != "" {
		m["title"] = rec.Metadata.Title
	}
	if rec.Metadata.Category != "" {
		m["category"] = rec.Metadata.Category
	}
	return m
}

func recordFromDocument(doc chromem.Document) domain.Record {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(doc.Metadata[k])
		return n
	}
	return domain.Record{
		ID:        doc.ID,
		UserID:    doc.Metadata["user_id"],
		Content:   doc.Content,
		Embedding: doc.Embedding,
		Metadata: domain.RecordMetadata{
			StartChar:  atoi("start_char"),
			EndChar:    atoi("end_char"),
			Order:      atoi("order"),
			Length:     atoi("length"),
			Source:     doc.Metadata["source"],
			Title:      doc.Metadata["title"],
			Category:   doc.Metadata["category"],
			DocumentID: doc.Metadata["document_id"],
		},
	}
}

package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docingest/internal/domain"
)

// MemoryStore keeps records in process memory. It is safe for concurrent use
// and is what tests and dry runs persist into.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]domain.Document
	records   map[string]domain.Record
	docRecord map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]domain.Document),
		records:   make(map[string]domain.Record),
		docRecord: make(map[string][]string),
	}
}

// InsertAll checks the whole batch before touching any state.
func (s *MemoryStore) InsertAll(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record %d: empty id", i)
		}
		if rec.Metadata.DocumentID == "" {
			return fmt.Errorf("record %s: empty document id", rec.ID)
		}
		if _, ok := s.records[rec.ID]; ok {
			return fmt.Errorf("record %s already exists", rec.ID)
		}
		if _, ok := seen[rec.ID]; ok {
			return fmt.Errorf("record %s: duplicate id in batch", rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}

	now := time.Now().Unix()
	for _, rec := range records {
		docID := rec.Metadata.DocumentID
		s.records[rec.ID] = rec
		s.docRecord[docID] = append(s.docRecord[docID], rec.ID)

		doc, ok := s.docs[docID]
		if !ok {
			doc = domain.Document{
				DocumentMeta: domain.DocumentMeta{
					DocumentID: docID,
					Source:     rec.Metadata.Source,
					Title:      rec.Metadata.Title,
					Category:   rec.Metadata.Category,
				},
				UserID:    rec.UserID,
				CreatedAt: now,
			}
		}
		doc.ChunkCount = len(s.docRecord[docID])
		s.docs[docID] = doc
	}
	return nil
}

func (s *MemoryStore) Documents(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocumentID < docs[j].DocumentID })
	return docs, nil
}

func (s *MemoryStore) RecordsByDocument(_ context.Context, documentID string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.docRecord[documentID]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", documentID)
	}
	records := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, s.records[id])
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Metadata.Order < records[j].Metadata.Order
	})
	return records, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

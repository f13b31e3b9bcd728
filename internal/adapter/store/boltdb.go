package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"docingest/internal/domain"
)

var (
	bucketDocuments  = []byte("documents")
	bucketRecords    = []byte("records")
	bucketDocRecords = []byte("doc_records")
	bucketMeta       = []byte("meta")
)

// ErrDocumentNotFound is returned by reads for an unknown document id.
var ErrDocumentNotFound = errors.New("document not found")

type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketDocuments, bucketRecords, bucketDocRecords, bucketMeta}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// InsertAll writes every record in a single transaction. Any invalid record
// or write error rolls back the whole batch.
func (s *BoltStore) InsertAll(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		docsBucket := tx.Bucket(bucketDocuments)
		recordsBucket := tx.Bucket(bucketRecords)
		docRecordsBucket := tx.Bucket(bucketDocRecords)

		byDoc := make(map[string][]string)
		docs := make(map[string]domain.Document)
		var docOrder []string

		for i, rec := range records {
			if rec.ID == "" {
				return fmt.Errorf("record %d: empty id", i)
			}
			docID := rec.Metadata.DocumentID
			if docID == "" {
				return fmt.Errorf("record %s: empty document id", rec.ID)
			}
			if recordsBucket.Get([]byte(rec.ID)) != nil {
				return fmt.Errorf("record %s already exists", rec.ID)
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
			}
			if err := recordsBucket.Put([]byte(rec.ID), data); err != nil {
				return err
			}

			if _, ok := docs[docID]; !ok {
				docOrder = append(docOrder, docID)
				docs[docID] = domain.Document{
					DocumentMeta: domain.DocumentMeta{
						DocumentID: docID,
						Source:     rec.Metadata.Source,
						Title:      rec.Metadata.Title,
						Category:   rec.Metadata.Category,
					},
					UserID:    rec.UserID,
					CreatedAt: s.now().Unix(),
				}
			}
			byDoc[docID] = append(byDoc[docID], rec.ID)
		}

		for _, docID := range docOrder {
			var ids []string
			if existing := docRecordsBucket.Get([]byte(docID)); existing != nil {
				if err := json.Unmarshal(existing, &ids); err != nil {
					return fmt.Errorf("corrupt record index for %s: %w", docID, err)
				}
			}
			ids = append(ids, byDoc[docID]...)
			idsData, err := json.Marshal(ids)
			if err != nil {
				return err
			}
			if err := docRecordsBucket.Put([]byte(docID), idsData); err != nil {
				return err
			}

			doc := docs[docID]
			if existing := docsBucket.Get([]byte(docID)); existing != nil {
				var prev domain.Document
				if err := json.Unmarshal(existing, &prev); err == nil {
					doc.CreatedAt = prev.CreatedAt
				}
			}
			doc.ChunkCount = len(ids)
			docData, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			if err := docsBucket.Put([]byte(docID), docData); err != nil {
				return err
			}
		}

		return nil
	})
}

// Documents lists stored documents, newest first.
func (s *BoltStore) Documents(ctx context.Context) ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc domain.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("corrupt document %s: %w", k, err)
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt != docs[j].CreatedAt {
			return docs[i].CreatedAt > docs[j].CreatedAt
		}
		return docs[i].DocumentID < docs[j].DocumentID
	})
	return docs, nil
}

// RecordsByDocument returns a document's records sorted by chunk order.
func (s *BoltStore) RecordsByDocument(ctx context.Context, documentID string) ([]domain.Record, error) {
	var records []domain.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocRecords).Get([]byte(documentID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}

		recordsBucket := tx.Bucket(bucketRecords)
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw := recordsBucket.Get([]byte(id))
			if raw == nil {
				continue
			}
			var rec domain.Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("corrupt record %s: %w", id, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Metadata.Order < records[j].Metadata.Order
	})
	return records, nil
}

// DeleteDocument removes a document and all of its records.
func (s *BoltStore) DeleteDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		docRecords := tx.Bucket(bucketDocRecords)
		data := docRecords.Get([]byte(documentID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		recordsBucket := tx.Bucket(bucketRecords)
		for _, id := range ids {
			if err := recordsBucket.Delete([]byte(id)); err != nil {
				return err
			}
		}
		if err := docRecords.Delete([]byte(documentID)); err != nil {
			return err
		}
		return tx.Bucket(bucketDocuments).Delete([]byte(documentID))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

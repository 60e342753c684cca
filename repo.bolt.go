package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

type boltStorage[E any] struct {
	logger *zap.Logger
	client *bolt.DB
	bucket []byte
}

// GetBoltDBClient opens (or creates) the database file and provides a ready to use client.
func GetBoltDBClient(path string, timeout time.Duration) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create the database folder, %v", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	return db, nil
}

// NewBoltStorage provides an instance of bolt-based storage. Each collection
// lives into its own bucket which is created if it does not exist yet.
func NewBoltStorage[E any](logger *zap.Logger, client *bolt.DB, collection string) (Storage[E], error) {
	err := client.Update(func(tx *bolt.Tx) error {
		if _, errB := tx.CreateBucketIfNotExists([]byte(collection)); errB != nil {
			return fmt.Errorf("failed to create %s bucket: %v", collection, errB)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up bucket: %v", err)
	}
	return &boltStorage[E]{
		logger: logger,
		client: client,
		bucket: []byte(collection),
	}, nil
}

// Add inserts a new document into the collection bucket.
func (bs *boltStorage[E]) Add(_ context.Context, id string, doc *E) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return bs.client.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bs.bucket).Put([]byte(id), docBytes)
	})
}

// GetOne retrieves a document based on its ID.
func (bs *boltStorage[E]) GetOne(_ context.Context, id string) (*E, error) {
	var doc E
	err := bs.client.View(func(tx *bolt.Tx) error {
		result := tx.Bucket(bs.bucket).Get([]byte(id))
		if result == nil {
			return ErrDocumentNotFound
		}
		return json.Unmarshal(result, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetAll retrieves all documents of the bucket ordered by key.
func (bs *boltStorage[E]) GetAll(_ context.Context) ([]E, error) {
	docs := []E{}
	err := bs.client.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bs.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var doc E
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Update merges the fields present on patch into the stored document.
func (bs *boltStorage[E]) Update(_ context.Context, id string, patch *E) (*E, error) {
	var doc E
	err := bs.client.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bs.bucket)
		current := b.Get([]byte(id))
		if current == nil {
			return ErrDocumentNotFound
		}
		merged, err := MergeDocument(current, patch, &doc)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), merged)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes a document based on its ID and returns it.
func (bs *boltStorage[E]) Delete(_ context.Context, id string) (*E, error) {
	var doc E
	err := bs.client.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bs.bucket)
		current := b.Get([]byte(id))
		if current == nil {
			return ErrDocumentNotFound
		}
		if err := json.Unmarshal(current, &doc); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// boltPinger checks the bolt database is still open.
type boltPinger struct {
	client *bolt.DB
}

func (bp *boltPinger) Ping(_ context.Context) error {
	if err := bp.client.View(func(*bolt.Tx) error { return nil }); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Package kv provides durable local key-value storage for small
// configuration records.
package kv

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "kv"

// Store defines the interface for durable key-value storage
type Store interface {
	// Get returns the stored value and whether the key exists
	Get(key string) (string, bool, error)

	// Set overwrites the stored value
	Set(key, value string) error

	// Close closes the store
	Close() error
}

// BoltStore implements the Store interface using bbolt
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the key-value database
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening kv database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// NewBoltStoreFromDB wraps an already-open bbolt database so the key-value
// bucket can share a file with other buckets.
func NewBoltStoreFromDB(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating kv bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Get returns the stored value for a key
func (s *BoltStore) Get(key string) (string, bool, error) {
	var value string
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data != nil {
			value = string(data)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Set overwrites the stored value for a key
func (s *BoltStore) Set(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), []byte(value))
	})
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

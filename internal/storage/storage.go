// Package storage persists trained forecast models using BoltDB.
//
// Each model bundle (model blob plus its metadata) is written as a single
// value inside one update transaction, so readers either see the previous
// bundle or the new one, never a mix. A metadata-only history of saved
// versions is kept next to it.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	artifactsBucket = "artifacts" // Current model bundle
	versionsBucket  = "versions"  // Metadata of every saved bundle, keyed by save time

	currentKey = "current"
	dbFile     = "forecast.db"
)

// Store provides persistent storage for model artifacts using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath, creating the directory
// and buckets if they do not exist yet.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(artifactsBucket)); err != nil {
			return fmt.Errorf("create artifacts bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(versionsBucket)); err != nil {
			return fmt.Errorf("create versions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Package prefs persists per-user dashboard preferences (selected
// namespaces, sort state, active cluster) across restarts.
package prefs

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucket = []byte("prefs")

// Known preference keys. Anything else is rejected at the API boundary so
// the store cannot be used as arbitrary blob storage.
const (
	KeyNamespaces = "namespaces"
	KeySort       = "sort"
	KeyCluster    = "cluster"
	KeyColumns    = "columns"
)

func ValidKey(key string) bool {
	switch key {
	case KeyNamespaces, KeySort, KeyCluster, KeyColumns:
		return true
	default:
		return false
	}
}

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open prefs db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init prefs bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the stored JSON blob for key, or nil when unset.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (s *Store) Put(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), value)
	})
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// Package kv implements the node's persistent state using BoltDB as the
// underlying key-value store.
package kv

import (
	"os"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "db")

const databaseFileName = "keys.db"

// Store is a BoltDB-backed implementation of the node database. A store is
// single-writer per directory; Bolt takes a file lock on open.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewKVStore initializes a boltDB key-value store at the directory path
// specified and creates the kv-buckets based on the schema.
func NewKVStore(dirPath string) (*Store, error) {
	return newKVStore(dirPath, revokedKeysBucket)
}

func newKVStore(dirPath string, buckets ...[]byte) (*Store, error) {
	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return nil, err
	}
	datafile := path.Join(dirPath, databaseFileName)
	boltDB, err := bolt.Open(datafile, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}

	kv := &Store{db: boltDB, databasePath: dirPath}
	if err := kv.db.Update(func(tx *bolt.Tx) error {
		return createBuckets(tx, buckets...)
	}); err != nil {
		// Release the file lock taken by Open before bailing out.
		if closeErr := boltDB.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Could not close database after failed setup")
		}
		return nil, err
	}
	return kv, nil
}

// ClearDB removes the previously stored database in the data directory.
func (s *Store) ClearDB() error {
	if _, err := os.Stat(s.databasePath); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(path.Join(s.databasePath, databaseFileName))
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DatabasePath at which this database writes files.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

func createBuckets(tx *bolt.Tx, buckets ...[]byte) error {
	for _, bucket := range buckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
	}
	return nil
}

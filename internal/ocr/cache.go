package ocr

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.etcd.io/bbolt"
)

var opticalBucket = []byte("optical")

// Cache stores recognised page texts across runs.
type Cache interface {
	Get(key string) ([]string, bool, error)
	Put(key string, pages []string) error
}

// BoltCache is a Cache backed by a bbolt file.
type BoltCache struct {
	db *bbolt.DB
}

// OpenBoltCache opens or creates the cache file at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: open cache %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(opticalBucket)
		return err
	})
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "ocr: create cache bucket")
	}
	return &BoltCache{db: db}, nil
}

// Get returns the cached pages for key.
func (c *BoltCache) Get(key string) ([]string, bool, error) {
	var pages []string
	var found bool
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(opticalBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &pages)
	})
	if err != nil {
		return nil, false, eris.Wrapf(err, "ocr: read cache %s", key)
	}
	return pages, found, nil
}

// Put stores pages under key.
func (c *BoltCache) Put(key string, pages []string) error {
	data, err := json.Marshal(pages)
	if err != nil {
		return eris.Wrap(err, "ocr: marshal cache entry")
	}
	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(opticalBucket).Put([]byte(key), data)
	})
	return eris.Wrapf(err, "ocr: write cache %s", key)
}

// Close closes the underlying database.
func (c *BoltCache) Close() error {
	return c.db.Close()
}

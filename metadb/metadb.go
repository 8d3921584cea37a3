// Package metadb records fetch metadata for cached sample datasets using
// bbolt. It powers the cache status reporting in the CLI and is strictly
// best-effort: the verified local file remains the durable state.
package metadb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when no entry exists for an asset.
var ErrNotFound = errors.New("metadb: not found")

var bucketAssets = []byte("assets")

// Entry contains fetch metadata for one cached asset.
type Entry struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Token      string    `json:"token,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
	LastAccess time.Time `json:"last_access"`
	FetchCount int       `json:"fetch_count"`
}

// DB is a bbolt-backed metadata index.
type DB struct {
	db  *bbolt.DB
	now func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(d *DB) {
		d.now = now
	}
}

// Open opens (or creates) the metadata database at the given path.
func Open(path string, opts ...Option) (*DB, error) {
	d := &DB{now: time.Now}
	for _, opt := range opts {
		opt(d)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening metadata database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAssets)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	d.db = db
	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Get returns the entry for an asset, or ErrNotFound.
func (d *DB) Get(name string) (*Entry, error) {
	var entry *Entry
	err := d.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAssets).Get([]byte(name))
		if data == nil {
			return ErrNotFound
		}
		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordFetch records a completed fetch: the entry's verification time is
// set to now and its fetch counter is incremented, preserving any counter
// from a previous entry for the same asset.
func (d *DB) RecordFetch(name string, size int64, token string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAssets)

		entry := Entry{Name: name}
		if data := b.Get([]byte(name)); data != nil {
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("decoding existing entry: %w", err)
			}
		}

		now := d.now()
		entry.Size = size
		entry.Token = token
		entry.VerifiedAt = now
		entry.LastAccess = now
		entry.FetchCount++

		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("encoding entry: %w", err)
		}
		return b.Put([]byte(name), data)
	})
}

// Touch updates the last access time for an asset. Missing entries are
// ignored.
func (d *DB) Touch(name string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAssets)
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("decoding entry: %w", err)
		}
		entry.LastAccess = d.now()

		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("encoding entry: %w", err)
		}
		return b.Put([]byte(name), data)
	})
}

// List returns all entries in key order.
func (d *DB) List() ([]Entry, error) {
	var entries []Entry
	err := d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAssets).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("decoding entry %s: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

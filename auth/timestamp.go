// -*- Mode: Go; indent-tabs-mode: t -*-

package auth

import (
	"crypto/rand"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"gopkg.in/macaroon.v1"
)

// TimestampStore is the "concrete on-disk timestamp store" spec.md §1
// names as an external collaborator; this package ships a reference
// implementation backed by go.etcd.io/bbolt, with each record signed by
// a gopkg.in/macaroon.v1 macaroon bound to its scope key so a record
// read back under a different scope (a copied/replayed DB entry) fails
// verification and is treated as a cache miss rather than trusted.
type TimestampStore interface {
	// Valid reports whether a non-expired, correctly-scoped record
	// exists for key.
	Valid(key string, ttl time.Duration) (bool, error)
	// Put (re)creates a record for key, valid for ttl from now.
	Put(key string, ttl time.Duration) error
	// Invalidate removes any record for key (sudo -k).
	Invalidate(key string) error
}

var timestampBucket = []byte("timestamps")

// BoltTimestampStore is the bbolt-backed TimestampStore.
type BoltTimestampStore struct {
	db      *bbolt.DB
	rootKey []byte
}

// OpenBoltTimestampStore opens (creating if needed) the bbolt database
// at path. rootKey signs every macaroon this store issues; callers
// typically derive it once from a host-local secret and keep it
// constant across restarts so earlier timestamps remain valid.
func OpenBoltTimestampStore(path string, rootKey []byte) (*BoltTimestampStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("cannot open timestamp store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(timestampBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(rootKey) == 0 {
		rootKey = make([]byte, 32)
		if _, err := rand.Read(rootKey); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &BoltTimestampStore{db: db, rootKey: rootKey}, nil
}

// Close closes the underlying database.
func (s *BoltTimestampStore) Close() error { return s.db.Close() }

func (s *BoltTimestampStore) sign(key string, expires time.Time) (*macaroon.Macaroon, error) {
	m, err := macaroon.New(s.rootKey, key, "sudopolicy-timestamp")
	if err != nil {
		return nil, err
	}
	if err := m.AddFirstPartyCaveat("expires=" + expires.UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}
	return m, nil
}

// Put stores a fresh, signed record for key.
func (s *BoltTimestampStore) Put(key string, ttl time.Duration) error {
	expires := time.Now().Add(ttl)
	m, err := s.sign(key, expires)
	if err != nil {
		return err
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(timestampBucket).Put([]byte(key), data)
	})
}

// Valid reports whether key has a signed, unexpired record. A record
// that fails macaroon verification (wrong key, corrupted bytes, bound
// to a different scope) is treated as absent, not as an error — a
// tampered cache must never grant access.
func (s *BoltTimestampStore) Valid(key string, ttl time.Duration) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(timestampBucket).Get([]byte(key))
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}

	var m macaroon.Macaroon
	if err := m.UnmarshalBinary(data); err != nil {
		return false, nil
	}
	if m.Id() != key {
		return false, nil
	}

	valid := false
	check := func(caveat string) error {
		const prefix = "expires="
		if len(caveat) > len(prefix) && caveat[:len(prefix)] == prefix {
			t, err := time.Parse(time.RFC3339, caveat[len(prefix):])
			if err == nil && time.Now().Before(t) {
				valid = true
				return nil
			}
			return fmt.Errorf("expired")
		}
		return fmt.Errorf("unrecognized caveat")
	}
	if err := m.Verify(s.rootKey, check, nil); err != nil {
		return false, nil
	}
	return valid, nil
}

// Invalidate removes key's record outright (sudo -k / -K).
func (s *BoltTimestampStore) Invalidate(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(timestampBucket).Delete([]byte(key))
	})
}

// Package session keeps a small local cache of the last signed-in
// user, so a client can reconnect without prompting for credentials.
package session

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSessions = []byte("sessions")

// Entry is one remembered sign-in.
type Entry struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	Token        string    `json:"token,omitempty"`
	RememberedAt time.Time `json:"rememberedAt"`
}

// Cache is a bolt-backed key/value file. Safe for concurrent use.
type Cache struct {
	db *bolt.DB
}

// Open opens (or creates) the cache file at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying file.
func (c *Cache) Close() error {
	return c.db.Close()
}

// RememberUser stores the sign-in under the "last" slot.
func (c *Cache) RememberUser(userID, email, token string) error {
	entry := Entry{UserID: userID, Email: email, Token: token, RememberedAt: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Put([]byte("last"), data)
	})
}

// LastUser returns the remembered sign-in, or nil when none exists.
func (c *Cache) LastUser() (*Entry, error) {
	var entry *Entry
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte("last"))
		if data == nil {
			return nil
		}
		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Forget discards the remembered sign-in.
func (c *Cache) Forget() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte("last"))
	})
}

// Package cache stores compiled template output keyed by a hash of the
// source text and the options that shaped it. Entries live in memory and,
// when a database path is given, in SQLite so that later builds can skip
// unchanged templates.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS compiled (
	key     TEXT PRIMARY KEY,
	output  TEXT NOT NULL,
	created INTEGER NOT NULL
)`

// Cache is safe for concurrent use.
type Cache struct {
	mem *haxmap.Map[string, string]
	db  *sql.DB

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats counts lookups since the cache was opened.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Key returns the cache key for src compiled under the given option
// fingerprints.
func Key(src string, fingerprints ...string) string {
	h := sha256.New()
	h.Write([]byte(src))
	for _, f := range fingerprints {
		h.Write([]byte{0})
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// New returns a memory-only cache.
func New() *Cache {
	return &Cache{mem: haxmap.New[string, string]()}
}

// Open returns a cache persisted in the SQLite database at path. An empty
// path gives a memory-only cache.
func Open(path string) (*Cache, error) {
	c := New()
	if path == "" {
		return c, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	c.db = db
	return c, nil
}

// Get returns the output stored under key.
func (c *Cache) Get(key string) (string, bool) {
	if out, ok := c.mem.Get(key); ok {
		c.hits.Add(1)
		return out, true
	}
	if c.db != nil {
		var out string
		err := c.db.QueryRow(`SELECT output FROM compiled WHERE key = ?`, key).Scan(&out)
		if err == nil {
			c.mem.Set(key, out)
			c.hits.Add(1)
			return out, true
		}
	}
	c.misses.Add(1)
	return "", false
}

// Put stores output under key.
func (c *Cache) Put(key, output string) error {
	c.mem.Set(key, output)
	if c.db == nil {
		return nil
	}
	_, err := c.db.Exec(`INSERT OR REPLACE INTO compiled (key, output, created) VALUES (?, ?, ?)`,
		key, output, time.Now().Unix())
	return err
}

// Delete removes key from memory and disk.
func (c *Cache) Delete(key string) error {
	c.mem.Del(key)
	if c.db == nil {
		return nil
	}
	_, err := c.db.Exec(`DELETE FROM compiled WHERE key = ?`, key)
	return err
}

// Prune drops persisted entries older than maxAge and returns how many
// were removed. Memory entries are unaffected.
func (c *Cache) Prune(maxAge time.Duration) (int64, error) {
	if c.db == nil {
		return 0, nil
	}
	res, err := c.db.Exec(`DELETE FROM compiled WHERE created < ?`, time.Now().Add(-maxAge).Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats returns lookup counters and the number of entries in memory.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: int(c.mem.Len()),
	}
}

// Persistent reports whether the cache is backed by a database.
func (c *Cache) Persistent() bool {
	return c.db != nil
}

// Close releases the database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

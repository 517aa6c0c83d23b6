package cache

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"same input", Key("p hi", "x"), Key("p hi", "x"), true},
		{"different source", Key("p hi", "x"), Key("p ho", "x"), false},
		{"different options", Key("p hi", "x"), Key("p hi", "y"), false},
		{"fingerprint boundary", Key("ab", "c"), Key("a", "bc"), false},
		{"extra fingerprint", Key("p", "x"), Key("p", "x", ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.a == tt.b) != tt.same {
				t.Errorf("keys %s and %s: same=%v, want %v", tt.a, tt.b, tt.a == tt.b, tt.same)
			}
		})
	}
	if len(Key("")) != 64 {
		t.Errorf("expected hex sha256 key, got %q", Key(""))
	}
}

func TestMemoryCache(t *testing.T) {
	c := New()
	if c.Persistent() {
		t.Error("memory cache reports persistent")
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("empty cache returned a hit")
	}
	if err := c.Put("k", "<p></p>"); err != nil {
		t.Fatal(err)
	}
	if out, ok := c.Get("k"); !ok || out != "<p></p>" {
		t.Errorf("Get() = %q, %v", out, ok)
	}
	if err := c.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("deleted key still present")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 2 || s.Entries != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestPersistentCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !c.Persistent() {
		t.Error("expected persistent cache")
	}
	if err := c.Put("a", "one"); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("a", "two"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if out, ok := reopened.Get("a"); !ok || out != "two" {
		t.Errorf("Get() after reopen = %q, %v", out, ok)
	}
	if reopened.Stats().Entries != 1 {
		t.Errorf("disk hit was not promoted to memory")
	}

	n, err := reopened.Prune(time.Hour)
	if err != nil || n != 0 {
		t.Errorf("Prune(1h) = %d, %v", n, err)
	}
	n, err = reopened.Prune(-time.Hour)
	if err != nil || n != 1 {
		t.Errorf("Prune(-1h) = %d, %v", n, err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key("p", string(rune('a'+i)))
			c.Put(key, "out")
			if _, ok := c.Get(key); !ok {
				t.Errorf("missing key %d", i)
			}
		}(i)
	}
	wg.Wait()
	if c.Stats().Entries != 16 {
		t.Errorf("expected 16 entries, got %d", c.Stats().Entries)
	}
}

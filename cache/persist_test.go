package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user00265/rdnsd/wire"
)

// TestCacheSaveLoadRoundTrip tests property P6: a cache saved to disk
// and loaded into a fresh instance yields the same unexpired records.
func TestCacheSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	base := time.Unix(1_700_000_000, 0)
	c1 := New(time.Hour)
	c1.now = fixedClock(base)
	c1.Insert(RR{Name: "persist.example.com", Type: wire.TypeA, Class: wire.ClassIN, TTL: 300, Data: wire.AData{Addr: [4]byte{192, 0, 2, 9}}, AcquiredAt: base.Unix()})

	if err := c1.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	c2 := New(time.Hour)
	c2.now = fixedClock(base.Add(10 * time.Second))
	if err := c2.Load(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got := c2.Lookup("persist.example.com", wire.TypeA, wire.ClassIN)
	if len(got) != 1 {
		t.Fatalf("expected 1 record after reload, got %d", len(got))
	}
	if got[0].TTL != 300 {
		t.Errorf("unexpected TTL after reload: %d", got[0].TTL)
	}
}

// TestCacheLoadDropsExpiredRecords tests that a record whose TTL has
// already elapsed by load time is not reinstated.
func TestCacheLoadDropsExpiredRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	base := time.Unix(1_700_000_000, 0)
	c1 := New(time.Hour)
	c1.now = fixedClock(base)
	c1.Insert(RR{Name: "expired.example.com", Type: wire.TypeA, Class: wire.ClassIN, TTL: 5, Data: wire.AData{Addr: [4]byte{192, 0, 2, 10}}, AcquiredAt: base.Unix()})
	if err := c1.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	c2 := New(time.Hour)
	c2.now = fixedClock(base.Add(time.Hour))
	if err := c2.Load(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got := c2.Lookup("expired.example.com", wire.TypeA, wire.ClassIN)
	if len(got) != 0 {
		t.Fatalf("expected expired record to be dropped on load, got %d", len(got))
	}
}

// TestCacheLoadMissingFileIsTolerated tests that loading a
// nonexistent cache file leaves the cache empty rather than erroring.
func TestCacheLoadMissingFileIsTolerated(t *testing.T) {
	c := New(time.Hour)
	if err := c.Load(filepath.Join(t.TempDir(), "nonexistent.json")); err != nil {
		t.Fatalf("expected a missing cache file to be tolerated, got %v", err)
	}
}

// TestCacheLoadMalformedJSONIsTolerated tests that a corrupt cache
// file starts the cache empty instead of failing the server boot.
func TestCacheLoadMalformedJSONIsTolerated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	c := New(time.Hour)
	if err := c.Load(path); err != nil {
		t.Fatalf("expected malformed cache file to be tolerated, got %v", err)
	}
	if len(c.records) != 0 {
		t.Errorf("expected an empty cache after a malformed load, got %d keys", len(c.records))
	}
}

// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

// Package cache implements the TTL-aware, concurrently-accessed
// resource-record store: lookup by (name, type, class), insertion with
// monotonic-expiry replacement, opportunistic expiry sweeps, and JSON
// disk persistence across process restarts.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/user00265/rdnsd/wire"
)

// DefaultSweepInterval is how often a lookup-triggered sweep is allowed
// to run; save always sweeps unconditionally.
const DefaultSweepInterval = 3600 * time.Second

// RR is a cache entry: a wire-level resource record plus the wall-clock
// second at which its TTL was last refreshed. Every mutation to
// AcquiredAt happens through Insert's merge rule, under cache_mutex —
// never via aliasing a shared timestamp.
type RR struct {
	Name       string
	Type       uint16
	Class      uint16
	TTL        uint32
	Data       wire.RData
	AcquiredAt int64
}

// Key is the case-insensitive cache lookup key.
type Key struct {
	Name  string
	Type  uint16
	Class uint16
}

func keyFor(name string, typ, class uint16) Key {
	return Key{Name: strings.ToLower(name), Type: typ, Class: class}
}

func (r RR) key() Key {
	return keyFor(r.Name, r.Type, r.Class)
}

// expiry returns the absolute wall-clock second at which r stops being valid.
func (r RR) expiry() int64 {
	return r.AcquiredAt + int64(r.TTL)
}

func (r RR) expired(now int64) bool {
	return now > r.expiry()
}

// Cache is the shared, mutex-serialized record store.
type Cache struct {
	mu          sync.Mutex
	records     map[Key][]RR
	lastSweep   time.Time
	sweepPeriod time.Duration
	now         func() time.Time
}

// New creates an empty cache. sweepPeriod <= 0 selects DefaultSweepInterval.
func New(sweepPeriod time.Duration) *Cache {
	if sweepPeriod <= 0 {
		sweepPeriod = DefaultSweepInterval
	}
	return &Cache{
		records:     make(map[Key][]RR),
		sweepPeriod: sweepPeriod,
		lastSweep:   time.Now(),
		now:         time.Now,
	}
}

// Lookup returns every unexpired record matching (name, type, class).
// The name comparison is case-insensitive; class wire.ClassANY and
// type wire.TypeANY are NOT wildcards here — callers that want "any
// class"/"any type" semantics query per concrete key, mirroring how
// the zone catalog (package zone) composes lookups.
func (c *Cache) Lookup(name string, typ, class uint16) []RR {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeSweepLocked()

	now := c.now().Unix()
	entries := c.records[keyFor(name, typ, class)]
	if len(entries) == 0 {
		return nil
	}

	out := make([]RR, 0, len(entries))
	for _, e := range entries {
		if !e.expired(now) {
			out = append(out, e)
		}
	}
	return out
}

// Insert applies the merge rule: a record with no existing (key, rdata)
// match is appended; one that matches is replaced only if its absolute
// expiry is strictly greater than the one already stored, guaranteeing
// the stored expiry is monotonically non-decreasing for that pair.
func (c *Cache) Insert(r RR) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := r.key()
	entries := c.records[k]

	for i, existing := range entries {
		if rdataEqual(existing.Data, r.Data) {
			if r.expiry() > existing.expiry() {
				entries[i] = r
			}
			c.records[k] = entries
			return
		}
	}

	c.records[k] = append(entries, r)
}

// Sweep drops every expired entry from every key, regardless of the
// opportunistic interval.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
}

func (c *Cache) maybeSweepLocked() {
	if c.now().Sub(c.lastSweep) > c.sweepPeriod {
		c.sweepLocked()
	}
}

func (c *Cache) sweepLocked() {
	now := c.now().Unix()
	for k, entries := range c.records {
		live := entries[:0:0]
		for _, e := range entries {
			if !e.expired(now) {
				live = append(live, e)
			}
		}
		if len(live) == 0 {
			delete(c.records, k)
		} else {
			c.records[k] = live
		}
	}
	c.lastSweep = c.now()
}

// snapshot returns a flat copy of every entry currently stored
// (expired or not); used by Save, which sweeps first.
func (c *Cache) snapshot() []RR {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]RR, 0)
	for _, entries := range c.records {
		out = append(out, entries...)
	}
	return out
}

func rdataEqual(a, b wire.RData) bool {
	switch av := a.(type) {
	case wire.AData:
		bv, ok := b.(wire.AData)
		return ok && av.Addr == bv.Addr
	case wire.AAAAData:
		bv, ok := b.(wire.AAAAData)
		return ok && av.Addr == bv.Addr
	case wire.NameData:
		bv, ok := b.(wire.NameData)
		return ok && strings.EqualFold(av.Name, bv.Name)
	case wire.OpaqueData:
		bv, ok := b.(wire.OpaqueData)
		return ok && string(av.Bytes) == string(bv.Bytes)
	default:
		return false
	}
}

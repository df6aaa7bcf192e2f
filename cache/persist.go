// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

package cache

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/user00265/rdnsd/wire"
)

// record is the on-disk JSON shape of one cache entry, per the
// cache-file format described in the zone/external-interfaces docs.
type record struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Class     string `json:"class"`
	TTL       uint32 `json:"ttl"`
	RData     string `json:"rdata"`
	Timestamp int64  `json:"timestamp"`
}

// Load populates the cache from a JSON file at path, discarding any
// record whose timestamp+ttl has already elapsed. A missing or
// unparsable file is tolerated: the cache simply starts empty.
func (c *Cache) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		slog.Warn("cache: failed to read file, starting empty", "path", path, "error", err)
		return nil
	}

	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		slog.Warn("cache: failed to parse file, starting empty", "path", path, "error", err)
		return nil
	}

	now := c.now().Unix()
	loaded := 0
	for _, rec := range recs {
		if rec.Timestamp+int64(rec.TTL) <= now {
			continue
		}
		rr, err := recordToRR(rec)
		if err != nil {
			slog.Warn("cache: skipping malformed record", "name", rec.Name, "error", err)
			continue
		}
		c.Insert(rr)
		loaded++
	}
	slog.Info("cache: loaded records from disk", "path", path, "count", loaded)
	return nil
}

// Save sweeps expired entries and best-effort persists whatever
// remains to path as a JSON array. I/O failures are logged and
// swallowed; the in-memory cache is unaffected either way.
func (c *Cache) Save(path string) error {
	c.Sweep()
	entries := c.snapshot()

	recs := make([]record, 0, len(entries))
	for _, e := range entries {
		rec, err := rrToRecord(e)
		if err != nil {
			slog.Warn("cache: skipping unsavable record", "name", e.Name, "error", err)
			continue
		}
		recs = append(recs, rec)
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		slog.Warn("cache: failed to marshal records", "error", err)
		return nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("cache: failed to write file", "path", path, "error", err)
		return nil
	}
	slog.Info("cache: saved records to disk", "path", path, "count", len(recs))
	return nil
}

func rrToRecord(r RR) (record, error) {
	rdata, err := rdataToString(r.Type, r.Data)
	if err != nil {
		return record{}, err
	}
	return record{
		Name:      r.Name,
		Type:      wire.TypeString(r.Type),
		Class:     wire.ClassString(r.Class),
		TTL:       r.TTL,
		RData:     rdata,
		Timestamp: r.AcquiredAt,
	}, nil
}

func recordToRR(rec record) (RR, error) {
	typ, ok := wire.TypeFromString(rec.Type)
	if !ok {
		return RR{}, fmt.Errorf("unknown type %q", rec.Type)
	}
	class, ok := wire.ClassFromString(rec.Class)
	if !ok {
		return RR{}, fmt.Errorf("unknown class %q", rec.Class)
	}
	data, err := stringToRData(typ, rec.RData)
	if err != nil {
		return RR{}, err
	}
	return RR{
		Name:       rec.Name,
		Type:       typ,
		Class:      class,
		TTL:        rec.TTL,
		Data:       data,
		AcquiredAt: rec.Timestamp,
	}, nil
}

func rdataToString(typ uint16, data wire.RData) (string, error) {
	switch d := data.(type) {
	case wire.AData:
		return net.IP(d.Addr[:]).String(), nil
	case wire.AAAAData:
		return net.IP(d.Addr[:]).String(), nil
	case wire.NameData:
		return d.Name, nil
	case wire.OpaqueData:
		return base64.StdEncoding.EncodeToString(d.Bytes), nil
	default:
		return "", fmt.Errorf("type %d: no rdata to persist", typ)
	}
}

func stringToRData(typ uint16, s string) (wire.RData, error) {
	switch typ {
	case wire.TypeA:
		ip := net.ParseIP(s).To4()
		if ip == nil {
			return nil, fmt.Errorf("invalid A rdata %q", s)
		}
		var addr [4]byte
		copy(addr[:], ip)
		return wire.AData{Addr: addr}, nil
	case wire.TypeAAAA:
		ip := net.ParseIP(s).To16()
		if ip == nil {
			return nil, fmt.Errorf("invalid AAAA rdata %q", s)
		}
		var addr [16]byte
		copy(addr[:], ip)
		return wire.AAAAData{Addr: addr}, nil
	case wire.TypeNS, wire.TypeCNAME, wire.TypePTR:
		return wire.NameData{Name: s}, nil
	default:
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid opaque rdata: %w", err)
		}
		return wire.OpaqueData{Bytes: raw}, nil
	}
}

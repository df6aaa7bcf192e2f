// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

// Package zone implements the read-only authoritative zone catalog:
// a lookup from fully-qualified name to the record sets a server is
// authoritative for, plus a loader for the RFC 1035 §5 master-file
// text format that feeds it.
package zone

import (
	"strings"

	"github.com/user00265/rdnsd/cache"
	"github.com/user00265/rdnsd/wire"
)

// maxCNAMERestarts bounds the CNAME-restart recursion within a single
// zone so a zone file declaring a CNAME cycle cannot hang a lookup.
const maxCNAMERestarts = 16

// entry is one zone's authoritative record set, indexed by the exact
// fully-qualified owner name (lowercase, no trailing dot).
type entry struct {
	root    string
	records map[string][]cache.RR
}

// Catalog is an immutable-after-construction collection of zones. It
// requires no locking: every zone is loaded before the catalog is
// handed to the server (see server.New), and never mutated afterward.
type Catalog struct {
	zones map[string]*entry
}

// NewCatalog returns an empty catalog. Use AddZone to populate it.
func NewCatalog() *Catalog {
	return &Catalog{zones: make(map[string]*entry)}
}

// AddZone registers a zone rooted at root with the given record set.
// Records are grouped by owner name; root should match the Name field
// used by apex records (SOA, NS) for that zone.
func (c *Catalog) AddZone(root string, records []cache.RR) {
	e := &entry{
		root:    strings.ToLower(root),
		records: make(map[string][]cache.RR),
	}
	for _, rr := range records {
		name := strings.ToLower(rr.Name)
		e.records[name] = append(e.records[name], rr)
	}
	c.zones[e.root] = e
}

// Lookup implements the §4.3 contract: select the zone whose root is
// the longest suffix of qname, walk qname's ancestors down to that
// root collecting type/CNAME matches into answers and NS records into
// authorities, restarting at the target of the CNAME encountered (when
// the walk meets several, only the last one's target is followed), and
// reporting whether anything at all was found.
func (c *Catalog) Lookup(qname string, qtype uint16) (answers, authorities []cache.RR, found bool) {
	z := c.selectZone(qname)
	if z == nil {
		return nil, nil, false
	}

	answers, authorities = c.walk(z, strings.ToLower(qname), qtype, 0, map[string]bool{})
	found = len(answers) > 0 || len(authorities) > 0
	return answers, authorities, found
}

func (c *Catalog) selectZone(qname string) *entry {
	qname = strings.ToLower(qname)
	var best *entry
	bestLen := -1
	for root, z := range c.zones {
		if qname != root && !strings.HasSuffix(qname, "."+root) {
			continue
		}
		if len(root) > bestLen {
			best, bestLen = z, len(root)
		}
	}
	return best
}

func (c *Catalog) walk(z *entry, qname string, qtype uint16, depth int, seen map[string]bool) (answers, authorities []cache.RR) {
	if depth > maxCNAMERestarts {
		return nil, nil
	}

	var cnameTarget string
	for _, s := range suffixChain(qname, z.root) {
		for _, rr := range z.records[s] {
			switch {
			case rr.Type == qtype:
				answers = append(answers, rr)
			case rr.Type == wire.TypeCNAME && qtype != wire.TypeCNAME:
				answers = append(answers, rr)
				if nd, ok := rr.Data.(wire.NameData); ok {
					cnameTarget = nd.Name
				}
			}
			if rr.Type == wire.TypeNS {
				authorities = append(authorities, rr)
			}
		}
	}

	if cnameTarget != "" {
		canonical := strings.ToLower(cnameTarget)
		if !seen[canonical] {
			seen[canonical] = true
			subAnswers, subAuth := c.walk(z, canonical, qtype, depth+1, seen)
			answers = append(answers, subAnswers...)
			authorities = append(authorities, subAuth...)
		}
	}

	return answers, authorities
}

// suffixChain returns qname and each of its ancestors down to and
// including root, most-specific first.
func suffixChain(qname, root string) []string {
	var out []string
	cur := qname
	for {
		out = append(out, cur)
		if cur == root {
			return out
		}
		idx := strings.IndexByte(cur, '.')
		if idx == -1 {
			return out
		}
		cur = cur[idx+1:]
	}
}

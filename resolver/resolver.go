// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

// Package resolver implements the iterative/recursive name-resolution
// state machine of RFC 1034 §5.3.3: walking a referral chain from a
// set of seed authorities to an answer, following CNAME chains,
// avoiding referral cycles, and populating the shared record cache as
// it goes.
package resolver

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/user00265/rdnsd/cache"
	"github.com/user00265/rdnsd/metrics"
	"github.com/user00265/rdnsd/wire"

	"github.com/grafana/regexp"
)

// DefaultTimeout is the per-hint UDP timeout used when a Resolver is
// constructed without an explicit one.
const DefaultTimeout = 5 * time.Second

// maxAliases bounds CNAME alias-list growth so an adversarial referral
// chain or CNAME loop cannot grow the result set forever.
const maxAliases = 16

// hostnamePattern is the conservative syntactic validation gate: one
// or more dot-separated labels, each alphanumeric with internal
// hyphens, no empty labels, no leading/trailing hyphen.
var hostnamePattern = regexp.MustCompile(
	`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*\.?$`,
)

// ValidHostname reports whether qname passes the resolver's syntactic
// gate. A name that fails this check is rejected without any network
// activity (spec §4.4 step 1 / scenario S1).
func ValidHostname(qname string) bool {
	return qname != "" && hostnamePattern.MatchString(qname)
}

// hint is one entry of the referral hint stack: either a resolved
// address ready to query, or a nameserver domain name still needing
// its own address resolution.
type hint struct {
	addr   string
	nsName string
}

// Resolver drives recursive name resolution against a shared cache.
// It never calls back into the cache's owner; the cache is a
// dependency passed in once at construction, consumed one-way.
type Resolver struct {
	cache       *cache.Cache
	seeds       []string
	timeout     time.Duration
	metrics     *metrics.Metrics
	ttlOverride uint32
}

// New creates a Resolver. seeds are nameserver "host:port" addresses
// placed above the compiled-in root servers in every hint stack, so
// they are tried first.
// timeout <= 0 selects DefaultTimeout. ttlOverride, when nonzero,
// replaces the TTL of every record ingested into the cache during
// resolution (the -t/--ttl CLI semantics); zero means cache records
// keep the TTL they arrived with.
func New(c *cache.Cache, seeds []string, timeout time.Duration, ttlOverride uint32) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{cache: c, seeds: seeds, timeout: timeout, ttlOverride: ttlOverride}
}

// SetMetrics attaches a metrics sink recording the cache hit/miss
// outcome of every resolution with a valid hostname, including the
// nested resolutions of glueless nameserver names. Optional; a
// Resolver with none attached simply skips recording.
func (r *Resolver) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Resolve performs one external query's worth of iterative resolution
// for qname, returning its canonical name (always qname, echoed back
// unchanged per the contract), any CNAME aliases traversed, and the
// resolved A addresses. An unresolvable name yields no aliases and no
// addresses, never an error — resolution failure is a result, not an
// exception.
func (r *Resolver) Resolve(ctx context.Context, qname string) (string, []string, []string) {
	return r.resolve(ctx, qname, make(map[string]bool))
}

// resolve is Resolve's recursive worker. resolvedNS is the cycle-
// avoidance set for the entire top-level resolution: it must be
// threaded unchanged into every nested resolve call triggered by a
// glueless NS referral, or a multi-hop referral cycle (NS A -> NS B ->
// NS A) would never be detected, since each level would otherwise
// start from its own empty set.
func (r *Resolver) resolve(ctx context.Context, qname string, resolvedNS map[string]bool) (string, []string, []string) {
	if !ValidHostname(qname) {
		return qname, nil, nil
	}

	if aliases, addrs, ok := r.cacheHit(qname); ok {
		if r.metrics != nil {
			r.metrics.RecordCacheLookup(true)
		}
		return qname, aliases, addrs
	}
	if r.metrics != nil {
		r.metrics.RecordCacheLookup(false)
	}
	aliases := r.cacheHints(qname)

	stack := r.seedHints()
	aliasSet := make(map[string]bool, len(aliases)+1)
	aliasSet[strings.ToLower(qname)] = true
	for _, a := range aliases {
		aliasSet[strings.ToLower(a)] = true
	}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		addr := h.addr
		if addr == "" {
			key := strings.ToLower(h.nsName)
			if resolvedNS[key] {
				continue
			}
			resolvedNS[key] = true

			_, _, nsAddrs := r.resolve(ctx, h.nsName, resolvedNS)
			if len(nsAddrs) == 0 {
				continue
			}
			addr = net.JoinHostPort(nsAddrs[0], "53")
		}

		resp, ok := r.probe(ctx, addr, qname)
		if !ok {
			continue
		}

		r.ingest(resp)

		addresses, newAliases := extractAnswers(resp, aliasSet)
		for _, a := range newAliases {
			if len(aliases) >= maxAliases {
				break
			}
			aliases = append(aliases, a)
		}

		if len(addresses) > 0 {
			return qname, aliases, addresses
		}

		stack = append(stack, r.referralHints(resp)...)
	}

	return qname, aliases, nil
}

// cacheHit checks for an already-cached, unexpired A answer: spec
// §4.4 step 2. A hit short-circuits resolution with zero network
// activity.
func (r *Resolver) cacheHit(qname string) (aliases, addresses []string, ok bool) {
	addrs := r.cache.Lookup(qname, wire.TypeA, wire.ClassIN)
	if len(addrs) == 0 {
		return nil, nil, false
	}
	for _, rr := range addrs {
		if ad, isA := rr.Data.(wire.AData); isA {
			addresses = append(addresses, net.IP(ad.Addr[:]).String())
		}
	}
	return nil, addresses, len(addresses) > 0
}

// cacheHints collects any cached CNAME as an alias hint when there is
// no cached A record yet.
func (r *Resolver) cacheHints(qname string) []string {
	cnames := r.cache.Lookup(qname, wire.TypeCNAME, wire.ClassIN)
	var aliases []string
	for _, rr := range cnames {
		if nd, isName := rr.Data.(wire.NameData); isName {
			aliases = append(aliases, nd.Name)
		}
	}
	return aliases
}

// seedHints builds the initial hint stack: configured seeds on top
// (popped first), root servers underneath.
func (r *Resolver) seedHints() []hint {
	stack := make([]hint, 0, len(r.seeds)+len(RootServers))
	for _, addr := range RootServers {
		stack = append(stack, hint{addr: net.JoinHostPort(addr, "53")})
	}
	for _, addr := range r.seeds {
		stack = append(stack, hint{addr: addr})
	}
	return stack
}

// probe sends one A query for qname to addr and returns its decoded
// response, or ok=false for any timeout, send/receive error, decode
// failure, or transaction-id mismatch — every one of these is a
// non-response the caller simply moves past.
func (r *Resolver) probe(ctx context.Context, addr, qname string) (*wire.Message, bool) {
	id := uint16(rand.Uint32())
	query := &wire.Message{
		Header: wire.Header{
			ID:      id,
			Opcode:  wire.OpcodeQuery,
			RD:      false,
			QDCount: 1,
		},
		Questions: []wire.Question{{Name: qname, Type: wire.TypeA, Class: wire.ClassIN}},
	}
	data, err := wire.Encode(query)
	if err != nil {
		slog.Warn("resolver: failed to encode query", "error", err)
		return nil, false
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, false
	}
	defer conn.Close()

	deadline := time.Now().Add(r.timeout)
	if dl, hasDeadline := ctx.Deadline(); hasDeadline && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(data); err != nil {
		return nil, false
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, false
	}

	resp, err := wire.Decode(buf[:n])
	if err != nil {
		return nil, false
	}
	if resp.Header.ID != id {
		return nil, false
	}
	return resp, true
}

// ingest stamps every RR in a referral response with the current
// wall clock and inserts it into the shared cache, per §4.4 step e.
// When the Resolver was constructed with a nonzero ttlOverride, every
// ingested record's TTL is replaced with it rather than the TTL it
// arrived with.
func (r *Resolver) ingest(resp *wire.Message) {
	now := time.Now().Unix()
	for _, section := range [][]wire.RR{resp.Answers, resp.Authorities, resp.Additionals} {
		for _, rr := range section {
			ttl := rr.TTL
			if r.ttlOverride != 0 {
				ttl = r.ttlOverride
			}
			r.cache.Insert(cache.RR{
				Name:       rr.Name,
				Type:       rr.Type,
				Class:      rr.Class,
				TTL:        ttl,
				Data:       rr.Data,
				AcquiredAt: now,
			})
		}
	}
}

// extractAnswers scans a response's answers and additionals for
// records owned by qname or one of its known aliases: A records
// become addresses, CNAME records extend the alias set (spec §4.4
// step f). aliasSet is mutated in place as new aliases are found so a
// CNAME discovered in additionals still picks up its A record later
// in the same scan.
func extractAnswers(resp *wire.Message, aliasSet map[string]bool) (addresses, newAliases []string) {
	scan := func(section []wire.RR) {
		for _, rr := range section {
			if !aliasSet[strings.ToLower(rr.Name)] {
				continue
			}
			switch rr.Type {
			case wire.TypeA:
				if ad, ok := rr.Data.(wire.AData); ok {
					addresses = append(addresses, net.IP(ad.Addr[:]).String())
				}
			case wire.TypeCNAME:
				if nd, ok := rr.Data.(wire.NameData); ok {
					key := strings.ToLower(nd.Name)
					if !aliasSet[key] {
						aliasSet[key] = true
						newAliases = append(newAliases, nd.Name)
					}
				}
			}
		}
	}
	scan(resp.Answers)
	scan(resp.Additionals)
	return addresses, newAliases
}

// referralHints turns a response's NS authority records into hint
// stack entries, preferring glue addresses delivered in additionals
// over a secondary address lookup.
func (r *Resolver) referralHints(resp *wire.Message) []hint {
	glue := make(map[string]string)
	for _, rr := range resp.Additionals {
		if rr.Type != wire.TypeA {
			continue
		}
		if ad, ok := rr.Data.(wire.AData); ok {
			glue[strings.ToLower(rr.Name)] = net.IP(ad.Addr[:]).String()
		}
	}

	var hints []hint
	for _, rr := range resp.Authorities {
		if rr.Type != wire.TypeNS {
			continue
		}
		nd, ok := rr.Data.(wire.NameData)
		if !ok {
			continue
		}
		if ip, hasGlue := glue[strings.ToLower(nd.Name)]; hasGlue {
			hints = append(hints, hint{addr: net.JoinHostPort(ip, "53")})
		} else {
			hints = append(hints, hint{nsName: nd.Name})
		}
	}
	return hints
}

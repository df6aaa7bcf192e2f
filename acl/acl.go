// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

// Package acl gates which client addresses may send queries against an
// authoritative zone. Each zone in the catalog carries its own ACL
// (inline rules or a rules file); the server consults it, via its
// longest-suffix zone lookup, before answering a query or handing it
// to the recursive resolver on the zone's behalf.
package acl

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// ACL is one zone's query-admission policy: a deny list checked first,
// then an allow list (when present) that must also match, otherwise
// the query is rejected.
type ACL struct {
	Allow []net.IPNet
	Deny  []net.IPNet
}

// parseIPOrCIDR parses s as a CIDR block, falling back to a single
// host address (/32 or /128 depending on family) when it isn't one.
// It reports ok=false for anything that parses as neither.
func parseIPOrCIDR(s string) (ipnet *net.IPNet, ok bool) {
	if _, parsed, err := net.ParseCIDR(s); err == nil {
		return parsed, true
	}

	ip := net.ParseIP(s)
	if ip == nil {
		return nil, false
	}
	if ip4 := ip.To4(); ip4 != nil {
		return &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}, true
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, true
}

// LoadACL reads a rules file of "allow:"/"deny:" section directives
// followed by one CIDR block or bare IP per line. An empty filename
// yields an empty ACL (matches everyone, per Permit's default-allow
// rule), which lets a zone omit an ACL entirely in config.
func LoadACL(filename string) (*ACL, error) {
	a := &ACL{}
	if filename == "" {
		return a, nil
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	mode := "allow"
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "allow:"):
			mode = "allow"
			continue
		case strings.HasPrefix(line, "deny:"):
			mode = "deny"
			continue
		}

		ipnet, ok := parseIPOrCIDR(line)
		if !ok {
			slog.Warn("acl: invalid IP/CIDR", "file", filename, "line", lineNum, "value", line)
			continue
		}
		if mode == "allow" {
			a.Allow = append(a.Allow, *ipnet)
		} else {
			a.Deny = append(a.Deny, *ipnet)
		}
	}

	return a, scanner.Err()
}

// FromRules builds an ACL from the inline allow/deny rule lists a zone
// carries directly in config (ZoneConfig.ACLRule), rather than in a
// separate rules file.
func FromRules(allow, deny []string) (*ACL, error) {
	a := &ACL{}

	for i, rule := range allow {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		ipnet, ok := parseIPOrCIDR(rule)
		if !ok {
			slog.Warn("acl: invalid allow rule", "index", i, "value", rule)
			continue
		}
		a.Allow = append(a.Allow, *ipnet)
	}

	for i, rule := range deny {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		ipnet, ok := parseIPOrCIDR(rule)
		if !ok {
			slog.Warn("acl: invalid deny rule", "index", i, "value", rule)
			continue
		}
		a.Deny = append(a.Deny, *ipnet)
	}

	return a, nil
}

// Permit decides whether a query from ip is admitted against the zone
// this ACL guards: an explicit deny match always loses, an allow list
// (when non-empty) must be matched to win, and a zone with neither
// list configured permits every query.
func (a *ACL) Permit(ip net.IP) bool {
	for _, deny := range a.Deny {
		if deny.Contains(ip) {
			return false
		}
	}

	if len(a.Allow) > 0 {
		for _, allow := range a.Allow {
			if allow.Contains(ip) {
				return true
			}
		}
		return false
	}

	return true
}

// String renders the ACL's rule counts, for diagnostic logging at
// zone load time.
func (a *ACL) String() string {
	return fmt.Sprintf("acl{allow=%d deny=%d}", len(a.Allow), len(a.Deny))
}

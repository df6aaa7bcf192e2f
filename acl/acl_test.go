// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

package acl

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

// TestPermitDenyWinsOverAllow checks that an address on both lists is
// rejected: a zone operator blocking an abusive resolver inside an
// otherwise-trusted network should not have the allow rule win.
func TestPermitDenyWinsOverAllow(t *testing.T) {
	a, err := FromRules(
		[]string{"10.0.0.0/8"},
		[]string{"10.0.0.99/32"},
	)
	if err != nil {
		t.Fatalf("FromRules: %v", err)
	}

	if a.Permit(net.ParseIP("10.0.0.99")) {
		t.Fatal("Permit(10.0.0.99) = true, want false (explicit deny)")
	}
	if !a.Permit(net.ParseIP("10.0.0.5")) {
		t.Fatal("Permit(10.0.0.5) = false, want true (allowed network, no deny match)")
	}
}

// TestPermitAllowListExcludesUnlisted checks that once an allow list
// is configured, a query from outside it is rejected even with no
// matching deny rule — a private zone admitting only its office
// network should not fall open to the rest of the internet.
func TestPermitAllowListExcludesUnlisted(t *testing.T) {
	a, err := FromRules([]string{"192.168.0.0/16"}, nil)
	if err != nil {
		t.Fatalf("FromRules: %v", err)
	}

	if !a.Permit(net.ParseIP("192.168.1.1")) {
		t.Fatal("Permit(192.168.1.1) = false, want true")
	}
	if a.Permit(net.ParseIP("203.0.113.1")) {
		t.Fatal("Permit(203.0.113.1) = true, want false (outside allow list)")
	}
}

// TestPermitNoRulesDefaultAllows checks that a zone with no ACL
// configured (FromRules(nil, nil), the zero value LoadACL("") returns)
// admits every querier — matches aclFor returning nil being treated
// the same way by the server, and Permit's documented default.
func TestPermitNoRulesDefaultAllows(t *testing.T) {
	a, err := FromRules(nil, nil)
	if err != nil {
		t.Fatalf("FromRules: %v", err)
	}
	if !a.Permit(net.ParseIP("198.51.100.7")) {
		t.Fatal("Permit with no rules configured = false, want true")
	}
}

// TestPermitSingleHostRule checks that a bare IP (no CIDR suffix)
// matches only that one address, not its containing block.
func TestPermitSingleHostRule(t *testing.T) {
	a, err := FromRules([]string{"203.0.113.10"}, nil)
	if err != nil {
		t.Fatalf("FromRules: %v", err)
	}
	if !a.Permit(net.ParseIP("203.0.113.10")) {
		t.Fatal("Permit(203.0.113.10) = false, want true (exact host match)")
	}
	if a.Permit(net.ParseIP("203.0.113.11")) {
		t.Fatal("Permit(203.0.113.11) = true, want false (adjacent host, no CIDR configured)")
	}
}

// TestFromRulesSkipsInvalidEntries checks that a malformed rule is
// logged and skipped rather than failing the whole zone load.
func TestFromRulesSkipsInvalidEntries(t *testing.T) {
	a, err := FromRules([]string{"not-an-address", "192.168.0.0/33"}, nil)
	if err != nil {
		t.Fatalf("FromRules: %v", err)
	}
	if len(a.Allow) != 0 {
		t.Fatalf("len(Allow) = %d, want 0 (both entries invalid)", len(a.Allow))
	}
}

// TestLoadACLFromFile exercises the rules-file path end to end: a
// zone operator pointing acl: at a shared file with allow: and deny:
// sections, comments, and blank lines.
func TestLoadACLFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "internal.acl")
	contents := "# internal.example.com resolvers\n" +
		"allow:\n" +
		"10.0.0.0/8\n" +
		"\n" +
		"deny:\n" +
		"10.0.0.99\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a, err := LoadACL(path)
	if err != nil {
		t.Fatalf("LoadACL: %v", err)
	}
	if a.Permit(net.ParseIP("10.0.0.99")) {
		t.Fatal("Permit(10.0.0.99) = true, want false (file deny rule)")
	}
	if !a.Permit(net.ParseIP("10.1.2.3")) {
		t.Fatal("Permit(10.1.2.3) = false, want true (file allow rule)")
	}
	if a.Permit(net.ParseIP("203.0.113.1")) {
		t.Fatal("Permit(203.0.113.1) = true, want false (outside file allow rule)")
	}
}

// TestLoadACLEmptyPathAllowsAll checks that a zone configured with no
// acl: file (ZoneConfig.ACL == "") gets a permissive, not nil, ACL.
func TestLoadACLEmptyPathAllowsAll(t *testing.T) {
	a, err := LoadACL("")
	if err != nil {
		t.Fatalf("LoadACL(\"\"): %v", err)
	}
	if !a.Permit(net.ParseIP("198.51.100.1")) {
		t.Fatal("Permit with empty ACL path = false, want true")
	}
}

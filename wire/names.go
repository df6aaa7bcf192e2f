// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

package wire

import (
	"fmt"
	"strings"
)

var typeNames = map[uint16]string{
	TypeA:     "A",
	TypeNS:    "NS",
	TypeCNAME: "CNAME",
	TypeSOA:   "SOA",
	TypePTR:   "PTR",
	TypeHINFO: "HINFO",
	TypeMX:    "MX",
	TypeTXT:   "TXT",
	TypeAAAA:  "AAAA",
	TypeANY:   "*",
}

var classNames = map[uint16]string{
	ClassIN:  "IN",
	ClassCS:  "CS",
	ClassCH:  "CH",
	ClassHS:  "HS",
	ClassANY: "*",
}

// TypeString renders a type code in its RFC 1035 textual form,
// falling back to "TYPE<n>" for codes outside the recognized registry
// (per §3: unknown codes still round-trip, just opaquely).
func TypeString(t uint16) string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TYPE%d", t)
}

// ClassString renders a class code in its RFC 1035 textual form.
func ClassString(c uint16) string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CLASS%d", c)
}

// TypeFromString parses a textual type code, case-insensitively.
func TypeFromString(s string) (uint16, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for code, name := range typeNames {
		if name == s {
			return code, true
		}
	}
	var n uint16
	if _, err := fmt.Sscanf(s, "TYPE%d", &n); err == nil {
		return n, true
	}
	return 0, false
}

// ClassFromString parses a textual class code, case-insensitively.
func ClassFromString(s string) (uint16, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for code, name := range classNames {
		if name == s {
			return code, true
		}
	}
	var n uint16
	if _, err := fmt.Sscanf(s, "CLASS%d", &n); err == nil {
		return n, true
	}
	return 0, false
}

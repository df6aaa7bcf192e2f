// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

// Package wire implements a bit-exact DNS message codec per RFC 1035:
// header, question, and resource-record encode/decode, including the
// compressed domain-name representation.
package wire

import "strings"

// Recognized RFC 1035 type and class codes. Unrecognized codes round-trip
// as opaque rdata rather than failing to parse.
const (
	TypeA     uint16 = 1
	TypeNS    uint16 = 2
	TypeCNAME uint16 = 5
	TypeSOA   uint16 = 6
	TypePTR   uint16 = 12
	TypeHINFO uint16 = 13
	TypeMX    uint16 = 15
	TypeTXT   uint16 = 16
	TypeAAAA  uint16 = 28
	TypeANY   uint16 = 255
)

const (
	ClassIN  uint16 = 1
	ClassCS  uint16 = 2
	ClassCH  uint16 = 3
	ClassHS  uint16 = 4
	ClassANY uint16 = 255
)

// Opcode and RCode values used by the header flags.
const (
	OpcodeQuery = 0
)

const (
	RCodeNoError  uint8 = 0
	RCodeFormErr  uint8 = 1
	RCodeServFail uint8 = 2
	RCodeNameErr  uint8 = 3
	RCodeNotImp   uint8 = 4
	RCodeRefused  uint8 = 5
)

// Header is the 12-octet DNS message header.
type Header struct {
	ID      uint16
	QR      bool
	Opcode  uint8
	AA      bool
	TC      bool
	RD      bool
	RA      bool
	Z       uint8 // reserved, must be zero; Encode rejects a nonzero value
	RCode   uint8
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Question is one entry of the question section.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// RR is a decoded resource record: name, type, class, ttl, and a
// type-tagged rdata payload. acquired_at is intentionally not part of
// the wire-level RR — it belongs to cache.RR, which carries these same
// fields plus AcquiredAt.
type RR struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  RData
}

// Message is a full DNS message: header plus the four sections.
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []RR
	Authorities []RR
	Additionals []RR
}

// RData is a tagged union over rdata payloads. Each variant carries
// enough information for the codec to reconstruct it verbatim (modulo
// name-compression artifacts). This replaces dynamic dispatch over
// per-type record classes with a closed set of concrete types: Decode
// picks the variant from the RR's Type field, and Encode switches on
// the concrete variant.
type RData interface {
	// isRData marks the closed set of rdata variants; it has no behavior.
	isRData()
}

// AData is the rdata of an A record: a 4-octet IPv4 address.
type AData struct {
	Addr [4]byte
}

func (AData) isRData() {}

// AAAAData is the rdata of an AAAA record: a 16-octet IPv6 address.
type AAAAData struct {
	Addr [16]byte
}

func (AAAAData) isRData() {}

// NameData is the rdata of NS, CNAME, and PTR records: a single
// (possibly compressed on the wire) domain name.
type NameData struct {
	Name string
}

func (NameData) isRData() {}

// OpaqueData is the rdata of any record type this codec does not
// model structurally; it round-trips as an exact byte string.
type OpaqueData struct {
	Bytes []byte
}

func (OpaqueData) isRData() {}

// canonicalName lowercases a name for case-insensitive comparison
// without otherwise altering its label structure.
func canonicalName(name string) string {
	return strings.ToLower(name)
}

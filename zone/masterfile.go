// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

package zone

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/user00265/rdnsd/cache"
	"github.com/user00265/rdnsd/wire"
)

// LoadMasterFile parses the RFC 1035 §5 master-file subset this
// suite supports ($TTL, $ORIGIN, comments, paren continuation,
// whitespace collapsing, NAME [TTL] CLASS TYPE RDATA lines) and
// returns the resource records it yields, stamped with the current
// wall clock as AcquiredAt. Zone catalog storage itself only consumes
// the records this loader produces — it has no opinion on file syntax.
func LoadMasterFile(path, origin string) ([]cache.RR, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	origin = normalizeOrigin(origin)
	defaultTTL := uint32(3600)
	lastName := origin
	now := time.Now().Unix()

	var records []cache.RR

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for rawLine := range joinContinuations(scanner) {
		line := stripComment(rawLine)
		line = collapseWhitespace(strings.TrimSpace(line))
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "$") {
			fields := strings.Fields(line)
			switch strings.ToUpper(fields[0]) {
			case "$TTL":
				if len(fields) > 1 {
					if ttl, err := parseTTL(fields[1]); err == nil {
						defaultTTL = ttl
					}
				}
			case "$ORIGIN":
				if len(fields) > 1 {
					origin = normalizeOrigin(expandName(fields[1], origin))
				}
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		owner := lastName
		idx := 0
		if !startsValue(fields[0]) {
			owner = expandName(fields[0], origin)
			idx = 1
		}
		lastName = owner

		ttl := defaultTTL
		if idx < len(fields) {
			if parsedTTL, err := parseTTL(fields[idx]); err == nil {
				ttl = parsedTTL
				idx++
			}
		}

		if idx < len(fields) && isClassToken(fields[idx]) {
			idx++
		}

		if idx >= len(fields) {
			continue
		}
		recordType := strings.ToUpper(fields[idx])
		idx++
		if idx >= len(fields) {
			continue
		}

		rdata, err := parseRData(recordType, fields[idx:], origin)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if rdata == nil {
			continue
		}

		typ, _ := wire.TypeFromString(recordType)
		records = append(records, cache.RR{
			Name:       strings.ToLower(strings.TrimSuffix(owner, ".")),
			Type:       typ,
			Class:      wire.ClassIN,
			TTL:        ttl,
			Data:       rdata,
			AcquiredAt: now,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// startsValue reports whether the first field of a record line is
// actually a TTL, class, or type token rather than an owner name —
// i.e. the line omits the owner and reuses the previous one.
func startsValue(field string) bool {
	if _, err := parseTTL(field); err == nil {
		return true
	}
	if isClassToken(field) {
		return true
	}
	if _, ok := wire.TypeFromString(field); ok {
		return true
	}
	return false
}

func isClassToken(field string) bool {
	_, ok := wire.ClassFromString(field)
	return ok
}

func parseRData(recordType string, fields []string, origin string) (wire.RData, error) {
	switch recordType {
	case "A":
		ip := net.ParseIP(fields[0]).To4()
		if ip == nil {
			return nil, fmt.Errorf("invalid A address %q", fields[0])
		}
		var addr [4]byte
		copy(addr[:], ip)
		return wire.AData{Addr: addr}, nil

	case "AAAA":
		ip := net.ParseIP(fields[0]).To16()
		if ip == nil || ip.To4() != nil {
			return nil, fmt.Errorf("invalid AAAA address %q", fields[0])
		}
		var addr [16]byte
		copy(addr[:], ip)
		return wire.AAAAData{Addr: addr}, nil

	case "NS", "CNAME", "PTR":
		return wire.NameData{Name: strings.TrimSuffix(expandName(fields[0], origin), ".")}, nil

	case "MX":
		if len(fields) < 2 {
			return nil, fmt.Errorf("MX record requires preference and exchange")
		}
		pref, err := strconv.ParseUint(fields[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid MX preference %q", fields[0])
		}
		exchange, err := wire.EncodeNamePlain(strings.TrimSuffix(expandName(fields[1], origin), "."))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 2, 2+len(exchange))
		buf[0], buf[1] = byte(pref>>8), byte(pref)
		buf = append(buf, exchange...)
		return wire.OpaqueData{Bytes: buf}, nil

	case "TXT":
		text := strings.Join(fields, " ")
		text = strings.Trim(text, "\"")
		if len(text) > 255 {
			text = text[:255]
		}
		buf := make([]byte, 0, len(text)+1)
		buf = append(buf, byte(len(text)))
		buf = append(buf, text...)
		return wire.OpaqueData{Bytes: buf}, nil

	case "HINFO":
		if len(fields) < 2 {
			return nil, fmt.Errorf("HINFO record requires CPU and OS fields")
		}
		cpu := strings.Trim(fields[0], "\"")
		os_ := strings.Trim(strings.Join(fields[1:], " "), "\"")
		buf := []byte{byte(len(cpu))}
		buf = append(buf, cpu...)
		buf = append(buf, byte(len(os_)))
		buf = append(buf, os_...)
		return wire.OpaqueData{Bytes: buf}, nil

	case "SOA":
		return parseSOA(fields, origin)

	default:
		return nil, nil
	}
}

func parseSOA(fields []string, origin string) (wire.RData, error) {
	if len(fields) < 7 {
		return nil, fmt.Errorf("SOA record requires mname rname serial refresh retry expire minimum")
	}
	mname, err := wire.EncodeNamePlain(strings.TrimSuffix(expandName(fields[0], origin), "."))
	if err != nil {
		return nil, err
	}
	rname, err := wire.EncodeNamePlain(strings.TrimSuffix(expandName(fields[1], origin), "."))
	if err != nil {
		return nil, err
	}

	var nums [5]uint32
	for i := 0; i < 5; i++ {
		v, err := parseTTL(fields[2+i])
		if err != nil {
			return nil, fmt.Errorf("invalid SOA numeric field %q", fields[2+i])
		}
		nums[i] = v
	}

	buf := make([]byte, 0, len(mname)+len(rname)+20)
	buf = append(buf, mname...)
	buf = append(buf, rname...)
	for _, n := range nums {
		buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
	return wire.OpaqueData{Bytes: buf}, nil
}

// expandName resolves a zone-file name token against origin: "@"
// means origin itself, a trailing dot means already-absolute, anything
// else is relative and gets origin appended.
func expandName(token, origin string) string {
	if token == "@" {
		return origin
	}
	if strings.HasSuffix(token, ".") {
		return token
	}
	if origin == "" || origin == "." {
		return token + "."
	}
	return token + "." + origin
}

func normalizeOrigin(origin string) string {
	if origin == "" {
		return "."
	}
	if !strings.HasSuffix(origin, ".") {
		return origin + "."
	}
	return origin
}

// parseTTL parses a duration with an optional s/m/h/d/w suffix into
// seconds, or a bare integer, matching the external zone-file format.
func parseTTL(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("empty TTL")
	}
	multiplier := uint32(1)
	switch s[len(s)-1] {
	case 's', 'S':
		s = s[:len(s)-1]
	case 'm', 'M':
		multiplier = 60
		s = s[:len(s)-1]
	case 'h', 'H':
		multiplier = 3600
		s = s[:len(s)-1]
	case 'd', 'D':
		multiplier = 86400
		s = s[:len(s)-1]
	case 'w', 'W':
		multiplier = 604800
		s = s[:len(s)-1]
	}
	if s == "" {
		return 0, fmt.Errorf("empty TTL value")
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n) * multiplier, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		return line[:i]
	}
	return line
}

var wsCollapser = func() func(string) string {
	return func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
}()

func collapseWhitespace(s string) string {
	return wsCollapser(s)
}

// joinContinuations yields logical lines, merging parenthesized
// continuations (e.g. a multi-line SOA record) into a single line.
func joinContinuations(scanner *bufio.Scanner) func(func(string) bool) {
	return func(yield func(string) bool) {
		var pending strings.Builder
		depth := 0
		for scanner.Scan() {
			raw := stripComment(scanner.Text())
			for _, r := range raw {
				switch r {
				case '(':
					depth++
					continue
				case ')':
					if depth > 0 {
						depth--
					}
					continue
				}
				pending.WriteRune(r)
			}
			if depth > 0 {
				pending.WriteByte(' ')
				continue
			}
			line := pending.String()
			pending.Reset()
			if !yield(line) {
				return
			}
		}
		if pending.Len() > 0 {
			yield(pending.String())
		}
	}
}

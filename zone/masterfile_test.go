package zone

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/user00265/rdnsd/wire"
)

func writeZoneFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write zone file: %v", err)
	}
	return path
}

// TestLoadMasterFileBasicARecord tests a plain owner/TTL/class/type/rdata line.
func TestLoadMasterFileBasicARecord(t *testing.T) {
	path := writeZoneFile(t, "www.example.com. 3600 IN A 192.0.2.1\n")

	records, err := LoadMasterFile(path, "example.com.")
	if err != nil {
		t.Fatalf("failed to load master file: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rr := records[0]
	if rr.Name != "www.example.com" || rr.Type != wire.TypeA || rr.TTL != 3600 {
		t.Errorf("unexpected record: %+v", rr)
	}
	ad, ok := rr.Data.(wire.AData)
	if !ok || net.IP(ad.Addr[:]).String() != "192.0.2.1" {
		t.Errorf("unexpected rdata: %+v", rr.Data)
	}

	t.Log("✓ basic A record parsed")
}

// TestLoadMasterFileTTLDirectiveAndOwnerReuse tests $TTL and the
// "reuse previous owner" convention for a line with no leading name.
func TestLoadMasterFileTTLDirectiveAndOwnerReuse(t *testing.T) {
	content := "$TTL 1h\n" +
		"host1.example.com. IN A 192.0.2.10\n" +
		"         IN A 192.0.2.11\n"
	path := writeZoneFile(t, content)

	records, err := LoadMasterFile(path, "example.com.")
	if err != nil {
		t.Fatalf("failed to load master file: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, rr := range records {
		if rr.Name != "host1.example.com" {
			t.Errorf("expected owner reuse, got %q", rr.Name)
		}
		if rr.TTL != 3600 {
			t.Errorf("expected $TTL 1h to resolve to 3600s, got %d", rr.TTL)
		}
	}
}

// TestLoadMasterFileOriginDirective tests that $ORIGIN changes how
// relative names expand for subsequent lines.
func TestLoadMasterFileOriginDirective(t *testing.T) {
	content := "$ORIGIN sub.example.com.\n" +
		"www 3600 IN A 192.0.2.20\n"
	path := writeZoneFile(t, content)

	records, err := LoadMasterFile(path, "example.com.")
	if err != nil {
		t.Fatalf("failed to load master file: %v", err)
	}
	if len(records) != 1 || records[0].Name != "www.sub.example.com" {
		t.Fatalf("expected $ORIGIN to apply, got %+v", records)
	}
}

// TestLoadMasterFileCommentsAndBlankLines tests that comments and
// blank lines are ignored rather than producing spurious records.
func TestLoadMasterFileCommentsAndBlankLines(t *testing.T) {
	content := "; this is a comment\n\n" +
		"www.example.com. 3600 IN A 192.0.2.30 ; trailing comment\n\n"
	path := writeZoneFile(t, content)

	records, err := LoadMasterFile(path, "example.com.")
	if err != nil {
		t.Fatalf("failed to load master file: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

// TestLoadMasterFileParenContinuation tests that a parenthesized SOA
// record spanning multiple physical lines is joined correctly.
func TestLoadMasterFileParenContinuation(t *testing.T) {
	content := "example.com. 3600 IN SOA ns1.example.com. hostmaster.example.com. (\n" +
		"  2024010101 ; serial\n" +
		"  3600       ; refresh\n" +
		"  900        ; retry\n" +
		"  604800     ; expire\n" +
		"  300 )      ; minimum\n"
	path := writeZoneFile(t, content)

	records, err := LoadMasterFile(path, "example.com.")
	if err != nil {
		t.Fatalf("failed to load master file: %v", err)
	}
	if len(records) != 1 || records[0].Type != wire.TypeSOA {
		t.Fatalf("expected 1 SOA record, got %+v", records)
	}
}

// TestLoadMasterFileNonexistentFile tests that a missing file surfaces
// an error rather than returning an empty record set silently.
func TestLoadMasterFileNonexistentFile(t *testing.T) {
	_, err := LoadMasterFile(filepath.Join(t.TempDir(), "missing.zone"), "example.com.")
	if err == nil {
		t.Fatal("expected an error loading a nonexistent zone file")
	}
}

// TestLoadMasterFileNSRecord tests that an NS record's rdata is
// captured as a NameData value.
func TestLoadMasterFileNSRecord(t *testing.T) {
	path := writeZoneFile(t, "example.com. 3600 IN NS ns1.example.com.\n")

	records, err := LoadMasterFile(path, "example.com.")
	if err != nil {
		t.Fatalf("failed to load master file: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	nd, ok := records[0].Data.(wire.NameData)
	if !ok || nd.Name != "ns1.example.com" {
		t.Errorf("unexpected NS rdata: %+v", records[0].Data)
	}
}

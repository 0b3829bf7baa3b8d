package naming

import (
	"testing"
	"time"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	ts := time.Date(2026, 7, 30, 14, 30, 22, 0, time.UTC)
	key := Generate("primary", "appdb", ts, ExtGz)

	parsed, ok := Parse(key)
	if !ok {
		t.Fatalf("Parse(%q) failed to match generated key", key)
	}
	if parsed.SourceName != "primary" {
		t.Errorf("SourceName = %q, want %q", parsed.SourceName, "primary")
	}
	if parsed.Database != "appdb" {
		t.Errorf("Database = %q, want %q", parsed.Database, "appdb")
	}
	if !parsed.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", parsed.Timestamp, ts)
	}
	if len(parsed.UUID8) != 8 {
		t.Errorf("UUID8 = %q, want length 8", parsed.UUID8)
	}
	if parsed.Ext != ExtGz {
		t.Errorf("Ext = %q, want %q", parsed.Ext, ExtGz)
	}
}

func TestParseRejectsUnrelatedKeys(t *testing.T) {
	cases := []string{
		"",
		"not-a-backup-key.txt",
		"primary-appdb-2026-07-30-143022.gz",          // missing uuid8
		"primary-appdb-2026-07-30-143022-deadbeef.txt", // bad extension
	}
	for _, c := range cases {
		if _, ok := Parse(c); ok {
			t.Errorf("Parse(%q) unexpectedly matched", c)
		}
	}
}

func TestMatches(t *testing.T) {
	ts := time.Now().UTC()
	key := Generate("primary", "appdb", ts, ExtDump)
	parsed, ok := Parse(key)
	if !ok {
		t.Fatalf("Parse(%q) failed", key)
	}
	if !parsed.Matches("primary", "appdb") {
		t.Errorf("expected Matches(primary, appdb) to be true")
	}
	if parsed.Matches("other", "appdb") {
		t.Errorf("expected Matches(other, appdb) to be false")
	}
}

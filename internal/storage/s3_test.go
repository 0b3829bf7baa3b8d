package storage

import (
	"testing"
	"time"
)

func TestS3FullKeyPrependsPrefix(t *testing.T) {
	cases := []struct {
		prefix string
		key    string
		want   string
	}{
		{"", "primary-appdb-2026-01-02-030405-deadbeef.gz", "primary-appdb-2026-01-02-030405-deadbeef.gz"},
		{"backups", "primary-appdb-2026-01-02-030405-deadbeef.gz", "backups/primary-appdb-2026-01-02-030405-deadbeef.gz"},
		{"backups/", "primary-appdb-2026-01-02-030405-deadbeef.gz", "backups/primary-appdb-2026-01-02-030405-deadbeef.gz"},
	}
	for _, c := range cases {
		s := &S3{prefix: c.prefix}
		if got := s.fullKey(c.key); got != c.want {
			t.Errorf("fullKey(prefix=%q, %q) = %q, want %q", c.prefix, c.key, got, c.want)
		}
	}
}

func TestS3PrefixWithSlash(t *testing.T) {
	if got := (&S3{prefix: ""}).prefixWithSlash(); got != "" {
		t.Errorf("prefixWithSlash() with no prefix = %q, want empty", got)
	}
	if got := (&S3{prefix: "backups"}).prefixWithSlash(); got != "backups/" {
		t.Errorf("prefixWithSlash() = %q, want %q", got, "backups/")
	}
	if got := (&S3{prefix: "backups/"}).prefixWithSlash(); got != "backups/" {
		t.Errorf("prefixWithSlash() with trailing slash = %q, want %q", got, "backups/")
	}
}

func TestS3ListStripsPrefixFromKeys(t *testing.T) {
	s := &S3{prefix: "backups"}
	full := s.fullKey("primary-appdb-2026-01-02-030405-deadbeef.gz")
	got := full[len(s.prefixWithSlash()):]
	if got != "primary-appdb-2026-01-02-030405-deadbeef.gz" {
		t.Errorf("stripping prefixWithSlash from fullKey = %q, want original key back", got)
	}
}

func TestDerefInt64(t *testing.T) {
	if got := derefInt64(nil); got != 0 {
		t.Errorf("derefInt64(nil) = %d, want 0", got)
	}
	n := int64(42)
	if got := derefInt64(&n); got != 42 {
		t.Errorf("derefInt64(&42) = %d, want 42", got)
	}
}

func TestDerefTime(t *testing.T) {
	if got := derefTime(nil); !got.IsZero() {
		t.Errorf("derefTime(nil) = %v, want zero value", got)
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := derefTime(&now); !got.Equal(now) {
		t.Errorf("derefTime(&now) = %v, want %v", got, now)
	}
}

func TestAwsString(t *testing.T) {
	p := awsString("bucket-key")
	if p == nil || *p != "bucket-key" {
		t.Errorf("awsString(%q) did not round-trip through the pointer", "bucket-key")
	}
}

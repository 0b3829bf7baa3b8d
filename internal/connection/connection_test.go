package connection

import (
	"strings"
	"testing"
)

func TestParseServerVersion(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"PostgreSQL 16.2 on x86_64-pc-linux-gnu, compiled by gcc", 16, false},
		{"PostgreSQL 9.6.24 on x86_64-pc-linux-gnu", 9, false},
		{"totally unrelated string", 0, true},
	}
	for _, c := range cases {
		got, err := ParseServerVersion(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseServerVersion(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseServerVersion(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseServerVersion(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSanitizeDSNRedactsPassword(t *testing.T) {
	dsn := "host=localhost port=5432 user=postgres password=s3cr3t dbname=appdb sslmode=prefer"
	got := sanitizeDSN(dsn)
	if got == dsn {
		t.Fatalf("sanitizeDSN did not change the DSN")
	}
	if want := "password=***"; !strings.Contains(got, want) {
		t.Fatalf("sanitizeDSN(%q) = %q, want it to contain %q", dsn, got, want)
	}
	if strings.Contains(got, "s3cr3t") {
		t.Fatalf("sanitizeDSN(%q) leaked the password: %q", dsn, got)
	}
}

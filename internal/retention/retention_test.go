package retention

import (
	"testing"
	"time"

	"pgbackup/internal/naming"
)

func TestParse(t *testing.T) {
	cases := []struct {
		expr    string
		want    Spec
		wantErr bool
	}{
		{"30d", Spec{30, Days}, false},
		{"12w", Spec{12, Weeks}, false},
		{"6m", Spec{6, Months}, false},
		{"2y", Spec{2, Years}, false},
		{"0d", Spec{}, true},
		{"d", Spec{}, true},
		{"30x", Spec{}, true},
	}
	for _, c := range cases {
		got, err := Parse(c.expr)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) expected error, got nil", c.expr)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", c.expr, err)
			continue
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.expr, got, c.want)
		}
	}
}

func TestSelectExpiredMonotonicity(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	var keys []string
	for i := 1; i <= 60; i++ {
		ts := now.Add(-time.Duration(i) * 24 * time.Hour)
		keys = append(keys, naming.Generate("primary", "appdb", ts, naming.ExtGz))
	}

	r1, _ := Parse("10d")
	r2, _ := Parse("40d")

	expired1 := SelectExpired(now, keys, r1)
	expired2 := SelectExpired(now, keys, r2)

	if len(expired2) >= len(expired1) {
		t.Fatalf("expected widening retention to shrink expired set: len(10d)=%d len(40d)=%d", len(expired1), len(expired2))
	}

	set1 := map[string]bool{}
	for _, k := range expired1 {
		set1[k] = true
	}
	for _, k := range expired2 {
		if !set1[k] {
			t.Errorf("expired(40d) contains key not in expired(10d): %s", k)
		}
	}
}

func TestSelectExpiredSkipsUnrecognizedKeys(t *testing.T) {
	now := time.Now().UTC()
	keys := []string{"not-a-backup-key.txt", "README.md"}
	expired := SelectExpired(now, keys, Spec{Count: 1, Unit: Days})
	if len(expired) != 0 {
		t.Errorf("expected no expired keys for unrecognized names, got %v", expired)
	}
}

// Package retention implements spec §4.4's RetentionSpec grammar and the
// SelectExpired decision used by Cleanup. Rewritten from the teacher's
// internal/retention/retention.go (which scans a local directory plus
// .meta.json/.sha256 sidecar files and deletes past a fixed RetentionDays
// cutoff) into a pure function over key strings parsed with naming.Parse, so the same
// policy applies identically whether the Backend is Local or S3.
package retention

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"pgbackup/internal/naming"
)

// Unit is one of the four retention grammar units from spec §6.
type Unit byte

const (
	Days   Unit = 'd'
	Weeks  Unit = 'w'
	Months Unit = 'm'
	Years  Unit = 'y'
)

// Spec is a parsed "Nd|Nw|Nm|Ny" retention expression.
type Spec struct {
	Count int
	Unit  Unit
}

var specPattern = regexp.MustCompile(`^(\d+)([dwmy])$`)

// Parse decodes a retention expression like "30d", "12w", "6m", "2y".
// Months are treated as 30 days and years as 365 days, matching the
// teacher's own fixed-day RetentionDays semantics generalized across units.
func Parse(expr string) (Spec, error) {
	m := specPattern.FindStringSubmatch(expr)
	if m == nil {
		return Spec{}, fmt.Errorf("retention: invalid expression %q, want N followed by d/w/m/y", expr)
	}
	count, err := strconv.Atoi(m[1])
	if err != nil || count <= 0 {
		return Spec{}, fmt.Errorf("retention: invalid count in %q", expr)
	}
	return Spec{Count: count, Unit: Unit(m[2][0])}, nil
}

// Duration converts the spec to an equivalent time.Duration cutoff window.
func (s Spec) Duration() time.Duration {
	switch s.Unit {
	case Days:
		return time.Duration(s.Count) * 24 * time.Hour
	case Weeks:
		return time.Duration(s.Count) * 7 * 24 * time.Hour
	case Months:
		return time.Duration(s.Count) * 30 * 24 * time.Hour
	case Years:
		return time.Duration(s.Count) * 365 * 24 * time.Hour
	default:
		return 0
	}
}

// SelectExpired returns the keys whose encoded timestamp is older than
// now minus the retention window. Keys that fail to parse (not produced
// by naming.Generate) are left untouched — Cleanup never deletes objects
// it doesn't recognize as its own artifacts.
//
// Monotonicity: widening the retention window (a larger Duration) can
// only shrink the expired set, never grow it — R1 <= R2 implies
// expired(R2) subseteq expired(R1), since the cutoff moves strictly
// further into the past as the window widens.
func SelectExpired(now time.Time, keys []string, spec Spec) []string {
	cutoff := now.Add(-spec.Duration())
	var expired []string
	for _, key := range keys {
		parsed, ok := naming.Parse(key)
		if !ok {
			continue
		}
		if parsed.Timestamp.Before(cutoff) {
			expired = append(expired, key)
		}
	}
	return expired
}

// Package naming implements the storage-key grammar from spec §6:
//
//	{source_name}-{database}-{yyyy}-{mm}-{dd}-{HHMMSS}-{uuid8}.{ext}
//
// Grounded on the teacher's internal/backup/engine.go (BackupSingle's
// timestamped filenames, db_<name>_<ts>.dump) and internal/restore/formats.go
// (extension-based archive format detection), generalized into a strict,
// round-trippable grammar so List/Cleanup can recover every field without
// a sidecar metadata file.
package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Extension is the archive's compression/format suffix.
type Extension string

const (
	ExtGz   Extension = "gz"
	ExtDump Extension = "dump"
)

// Key is the parsed form of a storage key produced by Generate.
type Key struct {
	SourceName string
	Database   string
	Timestamp  time.Time
	UUID8      string
	Ext        Extension
}

// keyPattern matches exactly the grammar in spec §6. Source name and
// database are restricted to letters, digits, underscore and dot; a hyphen
// is the field separator and is not accepted inside either name, so a key
// that Generate builds from a hyphenated name does not parse.
var keyPattern = regexp.MustCompile(
	`^([A-Za-z0-9_.]+)-([A-Za-z0-9_.]+)-(\d{4})-(\d{2})-(\d{2})-(\d{6})-([0-9a-f]{8})\.(gz|dump)$`,
)

// Generate builds a storage key for a fresh backup artifact, timestamped
// at t (normally time.Now().UTC()) with a random uuid8 suffix.
func Generate(sourceName, database string, t time.Time, ext Extension) string {
	id := uuid.New().String()
	uuid8 := strings.ReplaceAll(id, "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s-%s.%s",
		sourceName, database, t.UTC().Format("2006-01-02-150405"), uuid8, string(ext))
}

// Parse recovers the fields encoded in a key produced by Generate. Keys
// that don't match the grammar return ok=false so List can silently skip
// unrelated objects in a shared bucket/directory, per spec §4.4.
func Parse(key string) (Key, bool) {
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return Key{}, false
	}

	year, _ := strconv.Atoi(m[3])
	month, _ := strconv.Atoi(m[4])
	day, _ := strconv.Atoi(m[5])
	hh, _ := strconv.Atoi(m[6][0:2])
	mm, _ := strconv.Atoi(m[6][2:4])
	ss, _ := strconv.Atoi(m[6][4:6])

	ts := time.Date(year, time.Month(month), day, hh, mm, ss, 0, time.UTC)

	return Key{
		SourceName: m[1],
		Database:   m[2],
		Timestamp:  ts,
		UUID8:      m[7],
		Ext:        Extension(m[8]),
	}, true
}

// Matches reports whether key belongs to the given source/database pair,
// used by List and Cleanup to scope a Backend listing to one logical
// database.
func (k Key) Matches(sourceName, database string) bool {
	return k.SourceName == sourceName && k.Database == database
}

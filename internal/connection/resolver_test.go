package connection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pgbackup/internal/logger"
)

// fakeBinary writes an executable shell script to dir/name that prints
// version on --version, mimicking pg_dump/pg_restore's version banner
// closely enough for clientMajorVersion's regex to parse.
func fakeBinary(t *testing.T, dir, name, version string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\necho \"" + name + " (PostgreSQL) " + version + "\"\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestResolveFailsClosedWithUnverifiableCacheAndNoSource(t *testing.T) {
	cacheDir := t.TempDir()
	versionDir := filepath.Join(cacheDir, "16")
	if err := os.MkdirAll(versionDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// A binary present in the cache with no .sha256 sidecar at all.
	if err := os.WriteFile(filepath.Join(versionDir, "pg_dump"), []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatalf("write cache entry: %v", err)
	}

	r := &Resolver{CacheDir: cacheDir, Source: nil, log: &logger.NullLogger{}}

	// fromPath will fail (pg_dump/pg_restore aren't actually on PATH in
	// the test environment), forcing the cache path, which must fail
	// closed since there's no sidecar and no Source to re-fetch from.
	_, err := r.Resolve(context.Background(), 16)
	if err == nil {
		t.Fatalf("expected Resolve to fail closed on an unverifiable cache entry")
	}
	if !errors.Is(err, ErrChecksumUnavailable) {
		t.Fatalf("expected error to wrap ErrChecksumUnavailable, got: %v", err)
	}
}

func TestCachedPairValidRejectsMissingSidecar(t *testing.T) {
	dir := t.TempDir()
	path := fakeBinary(t, dir, "pg_dump", "16.2")

	r := &Resolver{log: &logger.NullLogger{}}
	if r.cachedPairValid(path) {
		t.Fatalf("expected cachedPairValid to reject a binary with no checksum sidecar")
	}
}

func TestClientMajorVersionParsesBanner(t *testing.T) {
	dir := t.TempDir()
	path := fakeBinary(t, dir, "pg_dump", "15.4")

	major, err := clientMajorVersion(path)
	if err != nil {
		t.Fatalf("clientMajorVersion: %v", err)
	}
	if major != 15 {
		t.Fatalf("clientMajorVersion = %d, want 15", major)
	}
}

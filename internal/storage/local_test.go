package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"pgbackup/internal/config"
	"pgbackup/internal/logger"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	root := t.TempDir()
	l, err := NewLocal(&config.StorageConfig{Kind: config.StorageLocal, RootPath: root}, &logger.NullLogger{})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func TestLocalWriteReadRoundTrip(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	w, err := l.Writer(ctx, "source-db-2026-01-02-030405-deadbeef.gz")
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}
	if _, err := w.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := l.Reader(ctx, "source-db-2026-01-02-030405-deadbeef.gz")
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestLocalWriterDoesNotExposePartialFileBeforeClose(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	w, err := l.Writer(ctx, "key.gz")
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}
	if _, err := w.Write([]byte("partial")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := l.Stat(ctx, "key.gz"); err == nil {
		t.Fatalf("expected Stat to fail before Close makes the file visible")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := l.Stat(ctx, "key.gz"); err != nil {
		t.Fatalf("Stat after Close: %v", err)
	}
}

func TestLocalResolveRejectsPathTraversal(t *testing.T) {
	l := newTestLocal(t)
	if _, err := l.resolve("../../etc/passwd"); err == nil {
		t.Fatalf("expected path traversal key to be rejected")
	}
}

func TestLocalListFiltersByPrefix(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	for _, key := range []string{"a-db-1.gz", "a-db-2.gz", "b-db-1.gz"} {
		w, err := l.Writer(ctx, key)
		if err != nil {
			t.Fatalf("Writer(%s): %v", key, err)
		}
		w.Write([]byte("x"))
		w.Close()
	}

	artifacts, err := l.List(ctx, "a-db-", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("expected 2 artifacts with prefix a-db-, got %d", len(artifacts))
	}
}

func TestLocalDeleteIsIdempotent(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	if err := l.Delete(ctx, "never-existed.gz"); err != nil {
		t.Fatalf("Delete of missing key should not error, got: %v", err)
	}
}

func TestLocalTestRoundTripsWithoutLeavingArtifact(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	if err := l.Test(ctx); err != nil {
		t.Fatalf("Test: %v", err)
	}
	entries, err := filepath.Glob(filepath.Join(l.root, "*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("Test left artifacts behind: %v", entries)
	}
}

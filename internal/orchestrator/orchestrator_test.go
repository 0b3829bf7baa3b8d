package orchestrator

import (
	"context"
	"io"
	"testing"
	"time"

	"pgbackup/internal/config"
	"pgbackup/internal/naming"
	"pgbackup/internal/retention"
	"pgbackup/internal/storage"
)

// fakeBackend is an in-memory storage.Backend used to test List/Cleanup's
// key-scoping logic without a real filesystem or S3 bucket.
type fakeBackend struct {
	objects map[string][]byte
	deleted []string
}

func newFakeBackend() *fakeBackend { return &fakeBackend{objects: map[string][]byte{}} }

func (f *fakeBackend) Writer(ctx context.Context, key string) (io.WriteCloser, error) {
	return nil, nil
}
func (f *fakeBackend) Reader(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, nil
}
func (f *fakeBackend) List(ctx context.Context, prefix string, limit int) ([]storage.Artifact, error) {
	var out []storage.Artifact
	for k := range f.objects {
		out = append(out, storage.Artifact{Key: k, SizeBytes: int64(len(f.objects[k]))})
	}
	return out, nil
}
func (f *fakeBackend) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}
func (f *fakeBackend) Stat(ctx context.Context, key string) (storage.Artifact, error) {
	return storage.Artifact{Key: key, SizeBytes: int64(len(f.objects[key]))}, nil
}
func (f *fakeBackend) Test(ctx context.Context) error { return nil }
func (f *fakeBackend) Name() string                   { return "fake" }

func TestListScopesToSourceAndDatabase(t *testing.T) {
	backend := newFakeBackend()
	now := time.Now().UTC()
	backend.objects[naming.Generate("primary", "appdb", now, naming.ExtGz)] = []byte("a")
	backend.objects[naming.Generate("primary", "otherdb", now, naming.ExtGz)] = []byte("b")
	backend.objects[naming.Generate("secondary", "appdb", now, naming.ExtGz)] = []byte("c")
	backend.objects["unrelated-file.txt"] = []byte("d")

	o := &Orchestrator{
		SourceName: "primary",
		Database:   &config.DatabaseConfig{Database: "appdb"},
		Backend:    backend,
	}

	artifacts, err := o.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected 1 scoped artifact, got %d: %v", len(artifacts), artifacts)
	}
}

func TestCleanupDryRunDoesNotDelete(t *testing.T) {
	backend := newFakeBackend()
	old := time.Now().UTC().Add(-90 * 24 * time.Hour)
	key := naming.Generate("primary", "appdb", old, naming.ExtGz)
	backend.objects[key] = []byte("a")

	o := &Orchestrator{
		SourceName: "primary",
		Database:   &config.DatabaseConfig{Database: "appdb"},
		Backend:    backend,
	}

	spec, err := retention.Parse("30d")
	if err != nil {
		t.Fatalf("parse retention: %v", err)
	}

	expired, err := o.Cleanup(context.Background(), spec, true)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired key, got %d", len(expired))
	}
	if len(backend.deleted) != 0 {
		t.Fatalf("dry run must not delete, but deleted %v", backend.deleted)
	}
	if _, ok := backend.objects[key]; !ok {
		t.Fatalf("dry run must leave the object in place")
	}
}

// Package storage implements spec §4.3's Storage Backend abstraction: a
// uniform Writer/Reader/List/Delete/Stat/Test contract satisfied by both a
// Local filesystem backend and an S3-compatible backend, so the pipeline
// never needs to know which one it's talking to.
//
// Grounded on the teacher's internal/cloud/interface.go (Backend interface,
// BackupInfo, Config, NewBackend factory), generalized from a
// cloud-only abstraction to one that also covers the local filesystem, and
// from file-to-file Upload/Download to true streaming per §4.5.
package storage

import (
	"context"
	"io"
	"time"

	"pgbackup/internal/config"
	"pgbackup/internal/logger"
)

// Artifact describes one stored backup object, the Stat/List return shape.
type Artifact struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
}

// Backend is the uniform storage contract from spec §4.3.
type Backend interface {
	// Writer opens a streaming destination for key. Bytes written are not
	// guaranteed durable until Close returns nil.
	Writer(ctx context.Context, key string) (io.WriteCloser, error)

	// Reader opens a streaming source for key.
	Reader(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns artifacts whose key has the given prefix, sorted by
	// key. limit <= 0 means unlimited.
	List(ctx context.Context, prefix string, limit int) ([]Artifact, error)

	// Delete removes key. Deleting a key that doesn't exist is not an
	// error, matching the teacher's idempotent cleanup semantics.
	Delete(ctx context.Context, key string) error

	// Stat returns metadata for a single key.
	Stat(ctx context.Context, key string) (Artifact, error)

	// Test verifies the backend is reachable and writable without
	// leaving a visible artifact behind, backing the Orchestrator's
	// test_connection operation.
	Test(ctx context.Context) error

	// Name identifies the backend kind for logging ("local", "s3").
	Name() string
}

// New builds a Backend from a StorageConfig, dispatching on its Kind the
// way the teacher's cloud.NewBackend dispatches on Config.Provider.
func New(cfg *config.StorageConfig, log logger.Logger) (Backend, error) {
	switch cfg.Kind {
	case config.StorageLocal:
		return NewLocal(cfg, log)
	case config.StorageS3:
		return NewS3(cfg, log)
	default:
		return nil, &config.ConfigError{Field: "kind", Reason: "unsupported storage kind"}
	}
}

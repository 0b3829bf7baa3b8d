// Package orchestrator implements spec §4.6: the single library-level
// entry point — backup, restore, list, cleanup, test_connection — that
// any front end (this repo's cobra CLI, or the out-of-scope TUI/GUI
// collaborators named in spec §1) drives instead of talking to Pipeline,
// Storage, and Connection directly.
//
// Grounded on the teacher's cmd/backup.go, cmd/restore.go, cmd/cleanup.go,
// which each wire engine+config+logger ad hoc per subcommand; collapsed
// here into one reusable type so the wiring happens once.
package orchestrator

import (
	"context"
	"fmt"
	"net"
	"time"

	"pgbackup/internal/cleanup"
	"pgbackup/internal/config"
	"pgbackup/internal/connection"
	"pgbackup/internal/logger"
	"pgbackup/internal/metrics"
	"pgbackup/internal/naming"
	"pgbackup/internal/pipeline"
	"pgbackup/internal/retention"
	"pgbackup/internal/security"
	"pgbackup/internal/storage"
	"pgbackup/internal/tunnel"
)

// Orchestrator ties a source database, a storage backend, and the shared
// resolver/metrics/audit infrastructure together behind the five
// operations spec §4.6 names.
type Orchestrator struct {
	SourceName string
	Database   *config.DatabaseConfig
	Backend    storage.Backend

	Resolver *connection.Resolver
	Metrics  *metrics.Collector
	Log      logger.Logger
	Audit    *security.AuditLogger
}

func (o *Orchestrator) pipeline() *pipeline.Pipeline {
	return &pipeline.Pipeline{Resolver: o.Resolver, Backend: o.Backend, Log: o.Log}
}

// BackupOptions configures a single backup run, per spec §4.6's
// backup(db, storage, opts) signature.
type BackupOptions struct {
	// CompressionLevel is the gzip level wrapping the custom-format dump,
	// 0 (no compression) through 9 (best compression); spec default is 6.
	CompressionLevel int
}

// DefaultCompressionLevel is spec §4.6's compression_level default.
const DefaultCompressionLevel = 6

// Backup runs a full backup of Database to Backend, recording metrics and
// an audit trail around the pipeline call.
func (o *Orchestrator) Backup(ctx context.Context, opts BackupOptions) (string, error) {
	user := security.GetCurrentUser()
	o.audit(func() { o.Audit.LogBackupStart(user, o.Database.Database, "logical") })

	start := time.Now()
	key, err := o.pipeline().Backup(ctx, o.SourceName, o.Database, opts.CompressionLevel)
	duration := time.Since(start).Seconds()

	if err != nil {
		o.record("backup", "error", duration)
		o.audit(func() { o.Audit.LogBackupFailed(user, o.Database.Database, err) })
		return "", fmt.Errorf("orchestrator: backup %s: %w", o.Database.Database, err)
	}

	o.record("backup", "success", duration)
	if o.Metrics != nil {
		if art, statErr := o.Backend.Stat(ctx, key); statErr == nil {
			o.Metrics.AddBytesStreamed("backup", o.Database.Database, art.SizeBytes)
		}
	}
	o.audit(func() {
		size := int64(0)
		if art, statErr := o.Backend.Stat(ctx, key); statErr == nil {
			size = art.SizeBytes
		}
		o.Audit.LogBackupComplete(user, o.Database.Database, key, size)
	})

	if o.Log != nil {
		o.Log.Info("orchestrator: backup complete", "database", o.Database.Database, "key", key, "duration", duration)
	}
	return key, nil
}

// Restore runs a full restore of key into Database.
func (o *Orchestrator) Restore(ctx context.Context, key string, opts pipeline.RestoreOptions) error {
	user := security.GetCurrentUser()
	o.audit(func() { o.Audit.LogRestoreStart(user, o.Database.Database, key) })

	start := time.Now()
	err := o.pipeline().Restore(ctx, o.Database, key, opts)
	duration := time.Since(start).Seconds()

	if err != nil {
		o.record("restore", "error", duration)
		o.audit(func() { o.Audit.LogRestoreFailed(user, o.Database.Database, err) })
		return fmt.Errorf("orchestrator: restore %s from %s: %w", o.Database.Database, key, err)
	}

	o.record("restore", "success", duration)
	o.audit(func() { o.Audit.LogRestoreComplete(user, o.Database.Database, time.Duration(duration*float64(time.Second))) })

	if o.Log != nil {
		o.Log.Info("orchestrator: restore complete", "database", o.Database.Database, "key", key, "duration", duration)
	}
	return nil
}

// List returns every backup artifact recorded for this source/database
// pair, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]storage.Artifact, error) {
	prefix := o.SourceName + "-" + o.Database.Database + "-"
	artifacts, err := o.Backend.List(ctx, prefix, 0)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list %s: %w", o.Database.Database, err)
	}

	var scoped []storage.Artifact
	for _, a := range artifacts {
		parsed, ok := naming.Parse(a.Key)
		if !ok || !parsed.Matches(o.SourceName, o.Database.Database) {
			continue
		}
		scoped = append(scoped, a)
	}

	for i, j := 0, len(scoped)-1; i < j; i, j = i+1, j-1 {
		scoped[i], scoped[j] = scoped[j], scoped[i]
	}
	return scoped, nil
}

// Cleanup deletes every artifact for this source/database pair expired
// under spec, returning the deleted keys. Ahead of the retention pass it
// makes a best-effort sweep for pg_dump/pg_restore processes orphaned by a
// prior run that never reaped its own children (a crash, a kill -9 past
// the point KillCommandGroup could run); a failed sweep is logged, not
// fatal, since it's a courtesy, not the operation proper.
func (o *Orchestrator) Cleanup(ctx context.Context, spec retention.Spec, dryRun bool) ([]string, error) {
	if !dryRun {
		sweepLog := o.Log
		if sweepLog == nil {
			sweepLog = &logger.NullLogger{}
		}
		if err := cleanup.KillOrphanedProcesses(sweepLog); err != nil && o.Log != nil {
			o.Log.Warn("orchestrator: orphaned process sweep failed", "error", err)
		}
	}

	artifacts, err := o.List(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(artifacts))
	for i, a := range artifacts {
		keys[i] = a.Key
	}

	expired := retention.SelectExpired(time.Now().UTC(), keys, spec)
	if dryRun {
		if o.Log != nil {
			o.Log.Info("orchestrator: cleanup dry run", "database", o.Database.Database, "would_delete", len(expired))
		}
		return expired, nil
	}

	var deleted []string
	for _, key := range expired {
		if err := o.Backend.Delete(ctx, key); err != nil {
			if o.Log != nil {
				o.Log.Warn("orchestrator: cleanup failed to delete key", "key", key, "error", err)
			}
			continue
		}
		deleted = append(deleted, key)
	}

	if o.Log != nil {
		o.Log.Info("orchestrator: cleanup complete", "database", o.Database.Database, "deleted", len(deleted))
	}
	return deleted, nil
}

// ConnectionCheck is the result of TestConnection: spec §4.6 requires this
// operation to never throw for an unreachable database, instead reporting
// Reachable=false with a diagnostic Detail.
type ConnectionCheck struct {
	Reachable bool
	Detail    string
}

// TestConnection exercises both the database connection and the storage
// backend without performing a real backup or restore, backing the
// test_connection operation. The returned error is reserved for context
// cancellation; every other failure (tunnel, database, storage) comes back
// as ConnectionCheck{Reachable: false, Detail: ...} instead.
func (o *Orchestrator) TestConnection(ctx context.Context) (ConnectionCheck, error) {
	host, port := o.Database.Host, o.Database.Port

	if o.Database.UsesTunnel() {
		t, err := tunnel.Open(ctx, o.Database.Tunnel, o.Log)
		if err != nil {
			if ctx.Err() != nil {
				return ConnectionCheck{}, ctx.Err()
			}
			return ConnectionCheck{Detail: fmt.Sprintf("tunnel: %v", err)}, nil
		}
		defer t.Close()
		h, p, err := splitHostPort(t.LocalAddr)
		if err != nil {
			return ConnectionCheck{Detail: fmt.Sprintf("tunnel address: %v", err)}, nil
		}
		host, port = h, p
	}

	user := security.GetCurrentUser()
	if _, err := connection.Probe(ctx, o.Database, host, port, o.Log); err != nil {
		if ctx.Err() != nil {
			return ConnectionCheck{}, ctx.Err()
		}
		o.audit(func() { o.Audit.LogConnectionAttempt(user, fmt.Sprintf("%s:%d", host, port), false, err) })
		return ConnectionCheck{Detail: fmt.Sprintf("database: %v", err)}, nil
	}
	o.audit(func() { o.Audit.LogConnectionAttempt(user, fmt.Sprintf("%s:%d", host, port), true, nil) })
	if err := o.Backend.Test(ctx); err != nil {
		if ctx.Err() != nil {
			return ConnectionCheck{}, ctx.Err()
		}
		return ConnectionCheck{Detail: fmt.Sprintf("storage: %v", err)}, nil
	}
	return ConnectionCheck{Reachable: true, Detail: "ok"}, nil
}

func splitHostPort(addr string) (string, int, error) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	var port int
	if _, err := fmt.Sscanf(p, "%d", &port); err != nil {
		return "", 0, err
	}
	return h, port, nil
}

func (o *Orchestrator) record(operation, result string, durationSeconds float64) {
	if o.Metrics != nil {
		o.Metrics.RecordOperation(operation, o.Database.Database, result, durationSeconds)
	}
}

func (o *Orchestrator) audit(fn func()) {
	if o.Audit != nil {
		fn()
	}
}

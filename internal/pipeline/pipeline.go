// Package pipeline implements spec §4.5: the streaming dump/compress/
// store chain for backup, and the fetch/decompress/restore chain for
// restore, with bounded memory (no full-payload buffering) and
// cooperative, reverse-order teardown on cancellation.
//
// Grounded on the teacher's internal/backup/engine.go
// (executeWithStreamingCompression's pg_dump | gzip pipe composition and
// its stderr-draining goroutine) and internal/restore/engine.go
// (restorePostgreSQLSQL's gunzip | psql composition), generalized to
// stream through a storage.Backend instead of a local file and to retain
// a bounded stderr tail for diagnosis (spec §7's DumpFailed/RestoreFailed).
package pipeline

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"time"

	"pgbackup/internal/cleanup"
	"pgbackup/internal/config"
	"pgbackup/internal/connection"
	"pgbackup/internal/logger"
	"pgbackup/internal/naming"
	"pgbackup/internal/pgerr"
	"pgbackup/internal/storage"
	"pgbackup/internal/tunnel"
)

const stderrTailBytes = 8 * 1024

// Pipeline executes backup and restore jobs against one database and
// storage backend, resolving pg_dump/pg_restore and opening/tearing down
// the optional SSH tunnel itself so callers (the Orchestrator) don't need
// to sequence those steps by hand.
type Pipeline struct {
	Resolver *connection.Resolver
	Backend  storage.Backend
	Log      logger.Logger
}

// connect opens the tunnel (if configured) and probes the server,
// returning the dial address the rest of the job should use and a
// teardown func that closes the tunnel, honoring §5's reverse-order
// teardown (callers defer teardown() after stream/process are already
// closed).
func (p *Pipeline) connect(ctx context.Context, dbCfg *config.DatabaseConfig, job *Job) (host string, port int, teardown func(), err error) {
	host, port = dbCfg.Host, dbCfg.Port
	teardown = func() {}

	if dbCfg.UsesTunnel() {
		job.setStage(StageConnectingTunnel)
		t, terr := tunnel.Open(ctx, dbCfg.Tunnel, p.Log)
		if terr != nil {
			return "", 0, teardown, terr
		}
		lhost, lport, serr := splitHostPort(t.LocalAddr)
		if serr != nil {
			t.Close()
			return "", 0, teardown, pgerr.Connection(serr)
		}
		host, port = lhost, lport
		teardown = func() { t.Close() }
	}
	return host, port, teardown, nil
}

// Backup runs the full backup job for dbCfg, storing the resulting
// artifact under a key generated from sourceName/dbCfg.Database, and
// returns that key. compressionLevel is a gzip level 0 (stored, no
// compression) through 9 (best compression); values outside that range
// are clamped.
func (p *Pipeline) Backup(ctx context.Context, sourceName string, dbCfg *config.DatabaseConfig, compressionLevel int) (string, error) {
	job := newJob()

	host, port, teardownTunnel, err := p.connect(ctx, dbCfg, job)
	if err != nil {
		job.fail(err)
		return "", err
	}
	defer teardownTunnel()

	job.setStage(StageVerifyingSource)
	server, err := connection.Probe(ctx, dbCfg, host, port, p.Log)
	if err != nil {
		job.fail(err)
		return "", err
	}

	job.setStage(StageResolvingBinaries)
	bins, err := p.Resolver.Resolve(ctx, server.MajorVersion)
	if err != nil {
		job.fail(err)
		return "", err
	}

	key := naming.Generate(sourceName, dbCfg.Database, time.Now().UTC(), naming.ExtGz)

	job.setStage(StageStreaming)
	if err := p.runBackupStream(ctx, dbCfg, host, port, bins, key, compressionLevel, job); err != nil {
		job.fail(err)
		return "", err
	}

	job.setStage(StageFinalizing)
	job.setStage(StageDone)
	return key, nil
}

func (p *Pipeline) runBackupStream(ctx context.Context, dbCfg *config.DatabaseConfig, host string, port int, bins *connection.BinaryPair, key string, compressionLevel int, job *Job) (err error) {
	writer, err := p.Backend.Writer(ctx, key)
	if err != nil {
		return err
	}
	// The writer is closed after pg_dump has been waited on, and before the
	// caller's deferred tunnel teardown. A failed Close fails the job, and a
	// failed job deletes the key on a best-effort basis, since Close
	// publishes whatever was written.
	defer func() {
		if cerr := writer.Close(); err == nil && cerr != nil {
			err = pgerr.Storage(pgerr.StorageTransient, fmt.Errorf("pipeline: close writer for %s: %w", key, cerr))
		}
		if err != nil {
			p.Backend.Delete(context.Background(), key)
		}
	}()

	cmd := exec.CommandContext(ctx, bins.DumpPath,
		"--format=custom",
		"--no-owner",
		"--no-privileges",
		"-h", host,
		"-p", fmt.Sprintf("%d", port),
		"-U", dbCfg.Username,
		"-d", dbCfg.Database,
	)
	cmd.Env = append(cmd.Env, "PGPASSWORD="+dbCfg.PasswordFromEnv())
	cleanup.SetProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return pgerr.Connection(fmt.Errorf("pipeline: pg_dump stdout pipe: %w", err))
	}
	stderrTail := newStderrRing(stderrTailBytes)
	cmd.Stderr = stderrTail

	if err := cmd.Start(); err != nil {
		return pgerr.Connection(fmt.Errorf("pipeline: start pg_dump: %w", err))
	}
	defer cleanup.KillCommandGroup(cmd)

	level := compressionLevel
	if level < gzip.NoCompression {
		level = gzip.NoCompression
	}
	if level > gzip.BestCompression {
		level = gzip.BestCompression
	}
	gz, err := gzip.NewWriterLevel(writer, level)
	if err != nil {
		return pgerr.Storage(pgerr.StorageTransient, fmt.Errorf("pipeline: create gzip writer: %w", err))
	}
	countingWriter := &countingWriter{w: gz, job: job}

	copyErr := copyWithCancel(ctx, countingWriter, stdout)

	gzErr := gz.Close()
	waitErr := cmd.Wait()

	if copyErr != nil {
		return classifyStreamErr(ctx, copyErr)
	}
	if gzErr != nil {
		return pgerr.Storage(pgerr.StorageTransient, fmt.Errorf("pipeline: finalize gzip stream: %w", gzErr))
	}
	if waitErr != nil {
		exitCode := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return pgerr.DumpFailed(exitCode, stderrTail.String())
	}
	return nil
}

// RestoreOptions configures restore behavior the way the teacher's
// restore.Options (Clean, NoOwner, SingleTransaction) does.
type RestoreOptions struct {
	DropDatabaseFirst bool
	CreateIfMissing   bool
}

// Restore runs the full restore job, streaming key out of the backend,
// through gunzip for a .gz artifact (this tool's own gzip-wrapped custom
// format) or directly for an externally supplied, uncompressed .dump
// archive, into pg_restore either way.
func (p *Pipeline) Restore(ctx context.Context, dbCfg *config.DatabaseConfig, key string, opts RestoreOptions) error {
	job := newJob()

	parsedKey, ok := naming.Parse(key)
	if !ok {
		err := pgerr.Configuration(fmt.Errorf("pipeline: %q is not a recognized backup key", key))
		job.fail(err)
		return err
	}

	host, port, teardownTunnel, err := p.connect(ctx, dbCfg, job)
	if err != nil {
		job.fail(err)
		return err
	}
	defer teardownTunnel()

	job.setStage(StageVerifyingSource)
	server, err := connection.Probe(ctx, dbCfg, host, port, p.Log)
	if err != nil {
		job.fail(err)
		return err
	}

	job.setStage(StageResolvingBinaries)
	bins, err := p.Resolver.Resolve(ctx, server.MajorVersion)
	if err != nil {
		job.fail(err)
		return err
	}

	if opts.DropDatabaseFirst {
		if err := connection.DropDatabase(ctx, dbCfg, host, port, p.Log); err != nil {
			job.fail(err)
			return err
		}
	}
	if opts.CreateIfMissing {
		if err := connection.CreateDatabaseIfMissing(ctx, dbCfg, host, port, p.Log); err != nil {
			job.fail(err)
			return err
		}
	}

	job.setStage(StageStreaming)
	if err := p.runRestoreStream(ctx, dbCfg, host, port, bins, parsedKey.Ext, key, job); err != nil {
		job.fail(err)
		return err
	}

	job.setStage(StageDone)
	return nil
}

func (p *Pipeline) runRestoreStream(ctx context.Context, dbCfg *config.DatabaseConfig, host string, port int, bins *connection.BinaryPair, ext naming.Extension, key string, job *Job) error {
	reader, err := p.Backend.Reader(ctx, key)
	if err != nil {
		return err
	}
	defer reader.Close()

	var source io.Reader = reader
	if ext == naming.ExtGz {
		gzr, err := gzip.NewReader(reader)
		if err != nil {
			return pgerr.Storage(pgerr.StorageIntegrity, fmt.Errorf("pipeline: %q is not a valid gzip stream: %w", key, err))
		}
		defer gzr.Close()
		source = gzr
	}
	// ext == naming.ExtDump reads the backend's bytes straight through:
	// an uncompressed custom-format dump supplied from outside this tool.

	args := []string{"--no-owner", "--no-privileges", "-h", host, "-p", fmt.Sprintf("%d", port), "-U", dbCfg.Username, "-d", dbCfg.Database}
	cmd := exec.CommandContext(ctx, bins.RestorePath, args...)
	cmd.Env = append(cmd.Env, "PGPASSWORD="+dbCfg.PasswordFromEnv())
	cleanup.SetProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return pgerr.Connection(fmt.Errorf("pipeline: restore stdin pipe: %w", err))
	}
	stderrTail := newStderrRing(stderrTailBytes)
	cmd.Stderr = stderrTail

	if err := cmd.Start(); err != nil {
		return pgerr.Connection(fmt.Errorf("pipeline: start %s: %w", bins.RestorePath, err))
	}
	defer cleanup.KillCommandGroup(cmd)

	countingReader := &countingReader{r: source, job: job}
	copyErr := copyToStdinWithCancel(ctx, stdin, countingReader)
	stdin.Close()

	waitErr := cmd.Wait()

	if copyErr != nil {
		return classifyStreamErr(ctx, copyErr)
	}
	if waitErr != nil {
		exitCode := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return pgerr.RestoreFailed(exitCode, stderrTail.String())
	}
	return nil
}

type countingWriter struct {
	w   io.Writer
	job *Job
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.job.addBytes(int64(n))
	}
	return n, err
}

type countingReader struct {
	r   io.Reader
	job *Job
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.job.addBytes(int64(n))
	}
	return n, err
}

// copyWithCancel copies src into dst, stopping promptly if ctx is
// cancelled instead of waiting for the next blocking Read/Write to
// notice, per §5's cooperative cancellation requirement.
func copyWithCancel(ctx context.Context, dst io.Writer, src io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(dst, src)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func copyToStdinWithCancel(ctx context.Context, dst io.WriteCloser, src io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(dst, src)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func classifyStreamErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return pgerr.Cancelled(ctx.Err())
	}
	return pgerr.Storage(pgerr.StorageTransient, err)
}

func splitHostPort(addr string) (string, int, error) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	var port int
	if _, err := fmt.Sscanf(p, "%d", &port); err != nil {
		return "", 0, fmt.Errorf("pipeline: parse tunnel local port %q: %w", p, err)
	}
	return h, port, nil
}

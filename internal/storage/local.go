package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pgbackup/internal/checks"
	"pgbackup/internal/config"
	"pgbackup/internal/logger"
	"pgbackup/internal/pgerr"
	"pgbackup/internal/security"
)

// Local is the filesystem Storage Backend, writing under a root directory.
// Grounded on the teacher's internal/security/paths.go (CleanPath,
// ValidateBackupPath) for key safety, and internal/checks/disk_check.go
// for Test()'s disk-space probe.
type Local struct {
	root      string
	log       logger.Logger
	diskCache *checks.DiskSpaceCache
}

// NewLocal builds a Local backend rooted at cfg.RootPath, creating the
// directory if it doesn't already exist. Per spec §6 ("Local: files under
// root_path/{prefix?}/<key>"), a non-empty cfg.Prefix nests every key
// under that subdirectory of root_path, the same grouping role
// StorageConfig.Prefix plays for the S3 backend's key prefix.
func NewLocal(cfg *config.StorageConfig, log logger.Logger) (*Local, error) {
	root, err := security.ValidateBackupPath(cfg.RootPath)
	if err != nil {
		return nil, &config.ConfigError{Field: "local.root_path", Reason: err.Error()}
	}
	if cfg.Prefix != "" {
		cleanedPrefix, err := security.CleanPath(cfg.Prefix)
		if err != nil {
			return nil, &config.ConfigError{Field: "local.prefix", Reason: err.Error()}
		}
		root = filepath.Join(root, cleanedPrefix)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("storage: create root dir %s: %w", root, err)
	}
	return &Local{root: root, log: log, diskCache: checks.NewDiskSpaceCache(30 * time.Second)}, nil
}

func (l *Local) Name() string { return "local" }

// resolve turns a storage key into an absolute path, rejecting any key
// that would escape the root directory (path traversal), per
// internal/security/paths.go's CleanPath invariant.
func (l *Local) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage: key must not be empty")
	}
	cleaned, err := security.CleanPath(key)
	if err != nil {
		return "", pgerr.Storage(pgerr.StorageForbidden, err)
	}
	full := filepath.Join(l.root, cleaned)
	if !strings.HasPrefix(full, l.root+string(filepath.Separator)) && full != l.root {
		return "", pgerr.Storage(pgerr.StorageForbidden, fmt.Errorf("storage: key %q escapes storage root", key))
	}
	return full, nil
}

// localWriteCloser buffers writes to a sibling temp file and renames it
// into place on Close, so a reader never observes a partially-written
// artifact — the same atomic-install discipline the binary resolver uses.
type localWriteCloser struct {
	file      *os.File
	tmpPath   string
	finalPath string
	log       logger.Logger
}

func (w *localWriteCloser) Write(p []byte) (int, error) { return w.file.Write(p) }

func (w *localWriteCloser) Close() error {
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		os.Remove(w.tmpPath)
		return fmt.Errorf("storage: fsync %s: %w", w.tmpPath, err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("storage: close %s: %w", w.tmpPath, err)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("storage: rename into place %s: %w", w.finalPath, err)
	}
	// Sidecar checksum is best-effort: a backup that succeeded but whose
	// checksum failed to write is still a usable artifact, just one Reader
	// can't integrity-check later.
	if sum, err := security.ChecksumFile(w.finalPath); err == nil {
		if err := security.SaveChecksum(w.finalPath, sum); err != nil && w.log != nil {
			w.log.Warn("storage: failed to save checksum sidecar", "path", w.finalPath, "error", err)
		}
	}
	return nil
}

func (l *Local) Writer(ctx context.Context, key string) (io.WriteCloser, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, pgerr.Storage(pgerr.StorageForbidden, fmt.Errorf("storage: create parent dir: %w", err))
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, pgerr.Storage(pgerr.StorageTransient, fmt.Errorf("storage: create temp file: %w", err))
	}
	return &localWriteCloser{file: tmp, tmpPath: tmp.Name(), finalPath: path, log: l.log}, nil
}

// Reader opens key for reading after verifying its checksum sidecar, if one
// was saved. LoadAndVerifyChecksum treats a missing sidecar as "nothing to
// verify" rather than an error, so artifacts written before this check
// existed, or restored from elsewhere, still open normally.
func (l *Local) Reader(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := security.LoadAndVerifyChecksum(path); err != nil {
		return nil, pgerr.Storage(pgerr.StorageIntegrity, fmt.Errorf("storage: checksum verification failed for %s: %w", key, err))
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pgerr.Storage(pgerr.StorageNotFound, fmt.Errorf("storage: %s not found: %w", key, err))
		}
		return nil, pgerr.Storage(pgerr.StorageForbidden, err)
	}
	return f, nil
}

func (l *Local) List(ctx context.Context, prefix string, limit int) ([]Artifact, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, pgerr.Storage(pgerr.StorageTransient, fmt.Errorf("storage: list %s: %w", l.root, err))
	}

	var artifacts []Artifact
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".sha256") || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Key:          e.Name(),
			SizeBytes:    info.Size(),
			LastModified: info.ModTime(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Key < artifacts[j].Key })
	if limit > 0 && len(artifacts) > limit {
		artifacts = artifacts[:limit]
	}
	return artifacts, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return pgerr.Storage(pgerr.StorageTransient, fmt.Errorf("storage: delete %s: %w", key, err))
	}
	os.Remove(path + ".sha256")
	return nil
}

func (l *Local) Stat(ctx context.Context, key string) (Artifact, error) {
	path, err := l.resolve(key)
	if err != nil {
		return Artifact{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Artifact{}, pgerr.Storage(pgerr.StorageNotFound, fmt.Errorf("storage: %s not found: %w", key, err))
		}
		return Artifact{}, pgerr.Storage(pgerr.StorageForbidden, err)
	}
	return Artifact{Key: key, SizeBytes: info.Size(), LastModified: info.ModTime()}, nil
}

// Test verifies the root directory is writable and has sufficient space,
// using the teacher's disk-space check, then performs a real write/delete
// round trip rather than trusting the space check alone.
func (l *Local) Test(ctx context.Context) error {
	check := l.diskCache.Get(l.root)
	if check.Critical {
		return pgerr.Storage(pgerr.StorageTransient, fmt.Errorf("storage: insufficient disk space at %s (%.1f%% used)", l.root, check.UsedPercent))
	}

	probeKey := ".pgbackup-test-connection"
	w, err := l.Writer(ctx, probeKey)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("ok")); err != nil {
		return pgerr.Storage(pgerr.StorageForbidden, err)
	}
	if err := w.Close(); err != nil {
		return err
	}
	return l.Delete(ctx, probeKey)
}

// Binary resolver half of spec §4.2: locating a pg_dump/pg_restore pair
// compatible with a given server major version, caching a downloaded pair
// under an atomically-installed, checksum-verified cache entry.
//
// Grounded on the teacher's internal/database/postgresql.go
// ValidateBackupTools (exec.LookPath probing) and internal/security/
// checksum.go (SHA-256 verification, the .sha256 sidecar format), combined
// into the atomic temp+fsync+rename cache-install pattern spec §4.2
// requires.
package connection

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"pgbackup/internal/logger"
	"pgbackup/internal/pgerr"
	"pgbackup/internal/security"
)

// ErrChecksumUnavailable is returned when a cached binary's checksum can't
// be verified and no network path exists to re-verify or re-download it.
// Per spec §9's decided Open Question, the resolver fails closed rather
// than trusting an unverifiable binary.
var ErrChecksumUnavailable = fmt.Errorf("connection: cached binary checksum unavailable and no network path to verify it")

// BinaryPair is the resolved pg_dump/pg_restore pair for a server version.
type BinaryPair struct {
	DumpPath    string
	RestorePath string
}

// BinarySource supplies a downloadable pg_dump/pg_restore build plus its
// expected SHA-256 checksum for a given major version. Production
// deployments implement this against an internal artifact mirror; it is
// an interface here so the resolver's caching/verification logic is
// independent of where builds actually come from.
type BinarySource interface {
	// Fetch streams the single named binary ("pg_dump" or "pg_restore")
	// for the given major version to w, and returns its expected sha256
	// checksum (hex-encoded).
	Fetch(ctx context.Context, major int, tool string, w io.Writer) (checksum string, err error)
}

// HTTPBinarySource fetches prebuilt pg_dump/pg_restore binaries and their
// checksums from a base URL laid out as
// "<baseURL>/<major>/<tool>-<GOOS>-<GOARCH>(.sha256)".
type HTTPBinarySource struct {
	BaseURL string
	Client  *http.Client
}

func (s *HTTPBinarySource) url(major int, tool string) string {
	return fmt.Sprintf("%s/%d/%s-%s-%s", s.BaseURL, major, tool, runtime.GOOS, runtime.GOARCH)
}

func (s *HTTPBinarySource) Fetch(ctx context.Context, major int, tool string, w io.Writer) (string, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	checksumURL := s.url(major, tool) + ".sha256"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checksumURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch checksum: unexpected status %s", resp.Status)
	}
	sumBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	checksum := string(regexp.MustCompile(`[0-9a-f]{64}`).Find(sumBytes))
	if checksum == "" {
		return "", fmt.Errorf("fetch checksum: no sha256 found in response")
	}

	binURL := s.url(major, tool)
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, binURL, nil)
	if err != nil {
		return "", err
	}
	resp2, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch binary: unexpected status %s", resp2.Status)
	}
	if _, err := io.Copy(w, resp2.Body); err != nil {
		return "", err
	}

	return checksum, nil
}

// Resolver locates pg_dump/pg_restore binaries compatible with a given
// server major version, preferring the binaries already on PATH and
// falling back to a versioned, checksum-verified cache directory.
type Resolver struct {
	CacheDir string
	Source   BinarySource
	log      logger.Logger
}

// NewResolver builds a Resolver caching under <user cache dir>/pgbackup/pg.
func NewResolver(source BinarySource, log logger.Logger) (*Resolver, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("connection: resolve user cache dir: %w", err)
	}
	return &Resolver{
		CacheDir: filepath.Join(base, "pgbackup", "pg"),
		Source:   source,
		log:      log,
	}, nil
}

// Resolve returns a pg_dump/pg_restore pair whose client major version is
// greater than or equal to serverMajor, per §4.2's compatibility policy.
// It checks PATH first; if the tools there are too old or absent, it
// installs a matching pair into the version-scoped cache directory.
func (r *Resolver) Resolve(ctx context.Context, serverMajor int) (*BinaryPair, error) {
	pair, tooOld, pathClientMajor := r.fromPath(serverMajor)
	if pair != nil {
		return pair, nil
	}

	versionDir := filepath.Join(r.CacheDir, strconv.Itoa(serverMajor))
	dumpPath := filepath.Join(versionDir, "pg_dump")
	restorePath := filepath.Join(versionDir, "pg_restore")

	cacheEntryExists := pathExists(dumpPath) || pathExists(restorePath)

	if r.cachedPairValid(dumpPath) && r.cachedPairValid(restorePath) {
		return &BinaryPair{DumpPath: dumpPath, RestorePath: restorePath}, nil
	}

	if r.Source == nil {
		if cacheEntryExists {
			// A cache entry is present but failed verification, and there
			// is no network path to re-fetch or re-verify it. Fail
			// closed rather than executing an unverifiable binary.
			return nil, pgerr.Connection(ErrChecksumUnavailable)
		}
		if tooOld {
			// Spec §4.2: only an older client is available locally and
			// there's no network path to fetch a compatible one — this is
			// a compatibility failure, distinct from "no client at all".
			return nil, pgerr.VersionMismatch(pathClientMajor, serverMajor)
		}
		return nil, pgerr.Connection(fmt.Errorf(
			"connection: no pg_dump/pg_restore on PATH compatible with server major version %d, and no binary source configured", serverMajor))
	}

	if err := os.MkdirAll(versionDir, 0755); err != nil {
		return nil, pgerr.Connection(fmt.Errorf("connection: create cache dir: %w", err))
	}
	release, err := acquireVersionLock(ctx, versionDir)
	if err != nil {
		return nil, pgerr.Connection(err)
	}
	defer release()

	// Re-check after acquiring the lock: another resolver may have
	// finished installing this version while we were waiting.
	if r.cachedPairValid(dumpPath) && r.cachedPairValid(restorePath) {
		return &BinaryPair{DumpPath: dumpPath, RestorePath: restorePath}, nil
	}

	if err := r.installFromSource(ctx, serverMajor, versionDir); err != nil {
		return nil, err
	}

	return &BinaryPair{DumpPath: dumpPath, RestorePath: restorePath}, nil
}

// lockStaleAfter bounds how long a version-directory lock file is honored
// before it's treated as abandoned by a crashed resolver and reclaimed.
const lockStaleAfter = 5 * time.Minute

// acquireVersionLock blocks until it holds the exclusive lock file for
// versionDir, so concurrent jobs resolving the same uncached server major
// version install it once instead of racing independent downloads into the
// same cache directory (spec §5 Shared Resources: "Writes use a lock file
// so only one resolver fetches a given version at a time"). The lock is a
// plain O_EXCL-created file rather than flock(2), so the same mechanism
// works unmodified on every platform this tool builds for.
func acquireVersionLock(ctx context.Context, versionDir string) (release func(), err error) {
	lockPath := filepath.Join(versionDir, ".lock")
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file %s: %w", lockPath, err)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			os.Remove(lockPath)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// fromPath probes the pg_dump/pg_restore on PATH, grounded on the teacher's
// ValidateBackupTools LookPath check generalized with a version gate. It
// distinguishes "nothing on PATH" from "found, but its major version is
// older than the server's" (tooOld), since spec §4.2 treats the latter as
// a specific VersionMismatch failure rather than a generic absence.
func (r *Resolver) fromPath(serverMajor int) (pair *BinaryPair, tooOld bool, clientMajor int) {
	dumpPath, err := exec.LookPath("pg_dump")
	if err != nil {
		return nil, false, 0
	}
	restorePath, err := exec.LookPath("pg_restore")
	if err != nil {
		return nil, false, 0
	}

	major, err := clientMajorVersion(dumpPath)
	if err != nil {
		return nil, false, 0
	}
	if major < serverMajor {
		return nil, true, major
	}

	return &BinaryPair{DumpPath: dumpPath, RestorePath: restorePath}, false, major
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var clientVersionPattern = regexp.MustCompile(`\)\s+(\d+)(?:\.\d+)?`)

func clientMajorVersion(binPath string) (int, error) {
	out, err := exec.Command(binPath, "--version").Output()
	if err != nil {
		return 0, err
	}
	m := clientVersionPattern.FindStringSubmatch(string(out))
	if m == nil {
		return 0, fmt.Errorf("connection: could not parse client version from %q", string(out))
	}
	major, _ := strconv.Atoi(m[1])
	return major, nil
}

// cachedPairValid checks a cache entry exists, is executable, and its
// sidecar .sha256 matches. Unlike security.LoadAndVerifyChecksum's
// optional-verification default (used for backup archives, where a
// missing sidecar just skips the check), a cache binary with no sidecar
// at all is treated as unverifiable and rejected — fail closed per spec
// §9, never "trust it because we can't check".
func (r *Resolver) cachedPairValid(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	checksum, err := security.LoadChecksum(path)
	if err != nil {
		if r.log != nil {
			r.log.Warn("connection: cached binary has no verifiable checksum, rejecting", "path", path, "error", err)
		}
		return false
	}
	if err := security.VerifyChecksum(path, checksum); err != nil {
		if r.log != nil {
			r.log.Warn("connection: cached binary failed checksum verification", "path", path, "error", err)
		}
		return false
	}
	return true
}

// installFromSource downloads pg_dump and pg_restore independently into
// temp files, verifies each checksum, and only then fsyncs and renames
// each into place — a cache entry is never visible to other callers in a
// partially-written or unverified state.
func (r *Resolver) installFromSource(ctx context.Context, major int, versionDir string) error {
	for _, tool := range []string{"pg_dump", "pg_restore"} {
		if err := r.installOne(ctx, major, versionDir, tool); err != nil {
			return err
		}
	}

	if r.log != nil {
		r.log.Info("connection: installed pg_dump/pg_restore into cache", "version_dir", versionDir, "server_major", major)
	}
	return nil
}

func (r *Resolver) installOne(ctx context.Context, major int, versionDir, tool string) error {
	tmp, err := os.CreateTemp(versionDir, ".download-"+tool+"-*")
	if err != nil {
		return pgerr.Connection(fmt.Errorf("connection: create temp file: %w", err))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	checksum, err := r.Source.Fetch(ctx, major, tool, tmp)
	if err != nil {
		tmp.Close()
		return pgerr.Connection(fmt.Errorf("connection: fetch %s: %w", tool, err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return pgerr.Connection(fmt.Errorf("connection: fsync downloaded %s: %w", tool, err))
	}
	if err := tmp.Close(); err != nil {
		return pgerr.Connection(fmt.Errorf("connection: close downloaded %s: %w", tool, err))
	}

	if err := security.VerifyChecksum(tmpPath, checksum); err != nil {
		return pgerr.Connection(fmt.Errorf("connection: downloaded %s failed checksum verification: %w", tool, err))
	}

	destPath := filepath.Join(versionDir, tool)
	if err := os.Chmod(tmpPath, 0755); err != nil {
		return pgerr.Connection(fmt.Errorf("connection: chmod downloaded %s: %w", tool, err))
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return pgerr.Connection(fmt.Errorf("connection: install downloaded %s: %w", tool, err))
	}
	if err := security.SaveChecksum(destPath, checksum); err != nil {
		return pgerr.Connection(fmt.Errorf("connection: save checksum sidecar for %s: %w", tool, err))
	}
	return nil
}

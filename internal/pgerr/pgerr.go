// Package pgerr defines the error taxonomy from spec §7: a small set of
// typed errors every pipeline stage can classify its failures into, plus
// a Stage wrapper that tags which stage of the pipeline an error came
// from. Grounded on the teacher's internal/config.ConfigError (a single
// typed config error) and internal/restore's version-compatibility errors,
// generalized to the full taxonomy the spec names.
package pgerr

import (
	"errors"
	"fmt"

	"pgbackup/internal/checks"
)

// Kind identifies one of the taxonomy's top-level categories.
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindConnection     Kind = "connection"
	KindCompatibility  Kind = "compatibility"
	KindExternalTool   Kind = "external_tool"
	KindStorage        Kind = "storage"
	KindCancelled      Kind = "cancelled"
)

// StorageSubkind refines KindStorage per §7.
type StorageSubkind string

const (
	StorageNotFound   StorageSubkind = "not_found"
	StorageForbidden  StorageSubkind = "forbidden"
	StorageTransient  StorageSubkind = "transient"
	StorageIntegrity  StorageSubkind = "integrity"
)

// Error is the common shape for every taxonomy error: a kind, an
// optional storage subkind, the stage that produced it, and the
// underlying cause.
type Error struct {
	Kind    Kind
	Storage StorageSubkind
	Stage   string
	Cause   error
	// Hint is an optional actionable suggestion attached by
	// internal/checks.ClassifyError, the way the teacher's error-hint
	// mapping annotates raw pg_dump/pg_restore failures.
	Hint string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	if e.Hint != "" {
		msg = fmt.Sprintf("%s (hint: %s)", msg, e.Hint)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// WithStage returns a copy of the error tagged with the given stage name,
// keeping the original cause. The pipeline does not call it: the errors it
// returns leave Stage empty.
func (e *Error) WithStage(stage string) *Error {
	cp := *e
	cp.Stage = stage
	return &cp
}

func newErr(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Configuration wraps an invalid-input error (bad DatabaseConfig,
// StorageConfig, or RetentionSpec).
func Configuration(cause error) *Error { return newErr(KindConfiguration, cause) }

// Connection wraps a failure to reach the database or its tunnel.
func Connection(cause error) *Error { return newErr(KindConnection, cause) }

// VersionMismatch wraps a client/server PostgreSQL major-version
// incompatibility detected before a dump or restore is attempted.
func VersionMismatch(clientMajor, serverMajor int) *Error {
	return newErr(KindCompatibility, fmt.Errorf(
		"client pg_dump/pg_restore major version %d is older than server major version %d",
		clientMajor, serverMajor))
}

// DumpFailed wraps a non-zero pg_dump exit, carrying the bounded stderr
// tail §7 requires for diagnosis without unbounded memory growth, and an
// actionable hint classified from that tail.
func DumpFailed(exitCode int, stderrTail string) *Error {
	e := newErr(KindExternalTool, fmt.Errorf(
		"pg_dump exited %d, stderr tail:\n%s", exitCode, stderrTail))
	e.Hint = checks.ClassifyError(stderrTail).Hint
	return e
}

// RestoreFailed wraps a non-zero pg_restore exit with its stderr tail and
// a classified hint.
func RestoreFailed(exitCode int, stderrTail string) *Error {
	e := newErr(KindExternalTool, fmt.Errorf(
		"pg_restore exited %d, stderr tail:\n%s", exitCode, stderrTail))
	e.Hint = checks.ClassifyError(stderrTail).Hint
	return e
}

// Storage wraps a failure from the Storage Backend, refined by subkind.
func Storage(sub StorageSubkind, cause error) *Error {
	return &Error{Kind: KindStorage, Storage: sub, Cause: cause}
}

// Cancelled wraps context.Canceled/DeadlineExceeded surfacing from a
// pipeline stage, so callers can distinguish "user cancelled" from a real
// failure without inspecting the underlying context error directly.
func Cancelled(cause error) *Error { return newErr(KindCancelled, cause) }

// Is allows errors.Is(err, &pgerr.Error{Kind: pgerr.KindStorage}) style
// matching by Kind, and by StorageSubkind too when the target sets one.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		if other.Storage != "" {
			return e.Kind == other.Kind && e.Storage == other.Storage
		}
		return e.Kind == other.Kind
	}
	return false
}

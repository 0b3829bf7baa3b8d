// Package connection implements spec §4.2: probing a PostgreSQL server for
// its version and reachability, and resolving a pg_dump/pg_restore binary
// pair compatible with that version.
//
// Probe is grounded on the teacher's internal/database/postgresql.go
// (buildDSN's localhost/socket handling, SSL mode mapping) but built on
// jackc/pgx/v5's pgxpool directly instead of database/sql+lib/pq — the
// teacher declares pgx/v5 in go.mod but never imports it; this finally
// gives that dependency a job.
package connection

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pgbackup/internal/config"
	"pgbackup/internal/logger"
	"pgbackup/internal/pgerr"
)

// ServerInfo describes the PostgreSQL server a DatabaseConfig points at.
type ServerInfo struct {
	MajorVersion int
	FullVersion  string
}

var versionPattern = regexp.MustCompile(`PostgreSQL\s+(\d+)(?:\.(\d+))?`)

// ParseServerVersion extracts the major version from a `SELECT version()`
// string, e.g. "PostgreSQL 16.2 on x86_64-pc-linux-gnu...". Grounded on
// the teacher's internal/restore/version_check.go ParsePostgreSQLVersion.
func ParseServerVersion(full string) (int, error) {
	m := versionPattern.FindStringSubmatch(full)
	if m == nil {
		return 0, fmt.Errorf("connection: could not parse PostgreSQL version from %q", full)
	}
	var major int
	fmt.Sscanf(m[1], "%d", &major)
	return major, nil
}

// dsn builds a libpq connection string for the given host/port; callers
// pass a tunnel's local endpoint there when one is active, per §4.1.
func dsn(cfg *config.DatabaseConfig, host string, port int) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=10",
		host, port, cfg.Username, cfg.PasswordFromEnv(), cfg.Database, sslmode,
	)
}

// sanitizeDSN redacts the password for logging, mirroring the teacher's
// postgresql.go sanitizeDSN.
func sanitizeDSN(dsnStr string) string {
	re := regexp.MustCompile(`password=\S+`)
	return re.ReplaceAllString(dsnStr, "password=***")
}

// Probe opens a short-lived connection pool to verify the database is
// reachable and to read its server version. host/port are the address to
// dial — the caller passes the tunnel's LocalAddr when one is active,
// otherwise cfg.Host/cfg.Port directly.
func Probe(ctx context.Context, cfg *config.DatabaseConfig, host string, port int, log logger.Logger) (*ServerInfo, error) {
	connStr := dsn(cfg, host, port)
	if log != nil {
		log.Debug("connection: probing database", "dsn", sanitizeDSN(connStr))
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, pgerr.Configuration(fmt.Errorf("connection: parse dsn: %w", err))
	}
	poolCfg.MaxConns = 1
	poolCfg.MinConns = 0

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, pgerr.Connection(fmt.Errorf("connection: open pool: %w", err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return nil, pgerr.Connection(fmt.Errorf("connection: ping %s:%d: %w", host, port, err))
	}

	var full string
	if err := pool.QueryRow(ctx, "SELECT version()").Scan(&full); err != nil {
		return nil, pgerr.Connection(fmt.Errorf("connection: query version: %w", err))
	}

	major, err := ParseServerVersion(full)
	if err != nil {
		return nil, pgerr.Connection(err)
	}

	return &ServerInfo{MajorVersion: major, FullVersion: full}, nil
}

// DropDatabase drops the target database and terminates existing backends
// first, the administrative operation restore's drop_database option
// needs. It connects to the "postgres" maintenance database rather than
// the target, since PostgreSQL cannot drop a database it is connected to.
func DropDatabase(ctx context.Context, cfg *config.DatabaseConfig, host string, port int, log logger.Logger) error {
	maint := *cfg
	maint.Database = "postgres"

	connStr := dsn(&maint, host, port)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return pgerr.Connection(fmt.Errorf("connection: open maintenance pool: %w", err))
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx,
		`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`,
		cfg.Database,
	); err != nil {
		return pgerr.Connection(fmt.Errorf("connection: terminate backends on %s: %w", cfg.Database, err))
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(`DROP DATABASE IF EXISTS %s`, quoteIdent(cfg.Database))); err != nil {
		return pgerr.Connection(fmt.Errorf("connection: drop database %s: %w", cfg.Database, err))
	}
	if log != nil {
		log.Info("connection: dropped database", "database", cfg.Database)
	}
	return nil
}

// CreateDatabaseIfMissing creates the target database when it doesn't
// already exist, used by restore's create_if_missing option.
func CreateDatabaseIfMissing(ctx context.Context, cfg *config.DatabaseConfig, host string, port int, log logger.Logger) error {
	maint := *cfg
	maint.Database = "postgres"

	connStr := dsn(&maint, host, port)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return pgerr.Connection(fmt.Errorf("connection: open maintenance pool: %w", err))
	}
	defer pool.Close()

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, cfg.Database).Scan(&exists); err != nil {
		return pgerr.Connection(fmt.Errorf("connection: check database exists: %w", err))
	}
	if exists {
		return nil
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(`CREATE DATABASE %s OWNER %s`, quoteIdent(cfg.Database), quoteIdent(cfg.Username))); err != nil {
		return pgerr.Connection(fmt.Errorf("connection: create database %s: %w", cfg.Database, err))
	}
	if log != nil {
		log.Info("connection: created database", "database", cfg.Database)
	}
	return nil
}

// quoteIdent double-quotes a PostgreSQL identifier, escaping embedded
// quotes, since database names can't be parameterized in DDL statements.
func quoteIdent(name string) string {
	escaped := ""
	for _, r := range name {
		if r == '"' {
			escaped += `""`
		} else {
			escaped += string(r)
		}
	}
	return `"` + escaped + `"`
}

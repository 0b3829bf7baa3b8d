// Package config defines the value types the rest of pgbackup is built on:
// the database to read from or write to, and the storage backend to stream
// to or from. Retention specs are parsed in internal/retention. These are
// accepted as already-parsed values — persistence of configuration (files,
// flags, env vars) is a front-end concern, handled in cmd/.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// ConfigError is a typed configuration error, the way the teacher's
// internal/config.ConfigError flags invalid settings before any connection
// is attempted.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// TunnelConfig describes an optional SSH port-forward used to reach a
// database that only listens on a private network.
type TunnelConfig struct {
	SSHHost    string
	SSHPort    int
	SSHUser    string
	SSHKeyPath string
	// RemoteHost/RemotePort are the database's address as seen from the
	// SSH server; usually "localhost" and the database port.
	RemoteHost string
	RemotePort int
}

func (t *TunnelConfig) enabled() bool {
	return t != nil && t.SSHHost != ""
}

// Validate checks the tunnel config is internally consistent.
func (t *TunnelConfig) Validate() error {
	if t == nil {
		return nil
	}
	if t.SSHHost == "" {
		return nil
	}
	if t.SSHUser == "" {
		return &ConfigError{Field: "tunnel.ssh_user", Reason: "must not be empty when ssh_host is set"}
	}
	if t.SSHKeyPath == "" {
		return &ConfigError{Field: "tunnel.ssh_key_path", Reason: "must not be empty when ssh_host is set"}
	}
	if t.SSHPort == 0 {
		t.SSHPort = 22
	}
	if t.RemotePort <= 0 || t.RemotePort > 65535 {
		return &ConfigError{Field: "tunnel.remote_port", Reason: "must be between 1 and 65535"}
	}
	if t.RemoteHost == "" {
		t.RemoteHost = "localhost"
	}
	return nil
}

// DatabaseConfig identifies a single PostgreSQL database to back up or
// restore into, per spec §3.
type DatabaseConfig struct {
	ID       string
	Name     string
	Host     string
	Port     int
	Username string
	Password string
	Database string
	SSLMode  string
	Tunnel   *TunnelConfig
}

// Validate enforces §3's DatabaseConfig invariants.
func (d *DatabaseConfig) Validate() error {
	if d.Database == "" {
		return &ConfigError{Field: "database", Reason: "must not be empty"}
	}
	if d.Host == "" {
		return &ConfigError{Field: "host", Reason: "must not be empty"}
	}
	if d.Port <= 0 || d.Port > 65535 {
		return &ConfigError{Field: "port", Reason: "must be between 1 and 65535"}
	}
	if d.Username == "" {
		return &ConfigError{Field: "username", Reason: "must not be empty"}
	}
	if d.SSLMode == "" {
		d.SSLMode = "prefer"
	}
	if err := d.Tunnel.Validate(); err != nil {
		return err
	}
	return nil
}

// UsesTunnel reports whether this database must be reached through an SSH
// tunnel rather than directly.
func (d *DatabaseConfig) UsesTunnel() bool {
	return d.Tunnel.enabled()
}

// PasswordFromEnv resolves the password from PGPASSWORD when not set
// explicitly, mirroring the teacher's getEnvString fallback pattern and
// pg_dump/psql's own precedence for credentials.
func (d *DatabaseConfig) PasswordFromEnv() string {
	if d.Password != "" {
		return d.Password
	}
	return os.Getenv("PGPASSWORD")
}

// StorageKind distinguishes the two supported Storage Backend variants.
type StorageKind int

const (
	StorageLocal StorageKind = iota
	StorageS3
)

func (k StorageKind) String() string {
	switch k {
	case StorageLocal:
		return "local"
	case StorageS3:
		return "s3"
	default:
		return "unknown"
	}
}

// StorageConfig is the tagged Local | S3 variant described in spec §3.
// Exactly one of the two payloads is used, selected by Kind.
type StorageConfig struct {
	ID   string
	Name string
	Kind StorageKind

	// Local fields
	RootPath string

	// S3 fields
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
	UseSSL    bool
	PathStyle bool
}

// Validate enforces §3's "exactly one storage variant populated" invariant.
func (s *StorageConfig) Validate() error {
	switch s.Kind {
	case StorageLocal:
		if s.RootPath == "" {
			return &ConfigError{Field: "local.root_path", Reason: "must not be empty"}
		}
	case StorageS3:
		if s.BucketFromEnv() == "" {
			return &ConfigError{Field: "s3.bucket", Reason: "must not be empty (flag --s3-bucket or S3_BUCKET)"}
		}
		if s.RegionFromEnv() == "" && s.EndpointFromEnv() == "" {
			return &ConfigError{Field: "s3.region", Reason: "must set region or a custom endpoint (flag or S3_REGION/S3_ENDPOINT)"}
		}
	default:
		return &ConfigError{Field: "kind", Reason: "must be local or s3"}
	}
	return nil
}

// firstEnv returns the first non-empty value among the named environment
// variables, checked in order.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// AccessKeyFromEnv and SecretKeyFromEnv resolve credentials in the order
// spec §6 names: the explicit config value (set from a CLI flag), then
// this tool's own S3_* environment variables, then the AWS SDK's ambient
// AWS_* variables (and, beyond that, the SDK's own default provider chain
// — instance role, shared config file — applied by storage.NewS3 when
// these both come back empty).
func (s *StorageConfig) AccessKeyFromEnv() string {
	if s.AccessKey != "" {
		return s.AccessKey
	}
	if v := firstEnv("S3_ACCESS_KEY_ID", "S3_ACCESS_KEY"); v != "" {
		return v
	}
	return os.Getenv("AWS_ACCESS_KEY_ID")
}

func (s *StorageConfig) SecretKeyFromEnv() string {
	if s.SecretKey != "" {
		return s.SecretKey
	}
	if v := firstEnv("S3_SECRET_ACCESS_KEY", "S3_SECRET_KEY"); v != "" {
		return v
	}
	return os.Getenv("AWS_SECRET_ACCESS_KEY")
}

// BucketFromEnv, RegionFromEnv, and EndpointFromEnv fall back to S3_BUCKET,
// S3_REGION, and S3_ENDPOINT respectively when the config wasn't set
// explicitly (e.g. by a CLI flag).
func (s *StorageConfig) BucketFromEnv() string {
	if s.Bucket != "" {
		return s.Bucket
	}
	return os.Getenv("S3_BUCKET")
}

func (s *StorageConfig) RegionFromEnv() string {
	if s.Region != "" {
		return s.Region
	}
	return os.Getenv("S3_REGION")
}

func (s *StorageConfig) EndpointFromEnv() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return os.Getenv("S3_ENDPOINT")
}

// getEnvString/getEnvInt/getEnvBool mirror the teacher's config env-var
// helpers, used by DatabaseFromEnv/StorageFromEnv when building
// DatabaseConfig/StorageConfig from the process environment.
func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// DatabaseFromEnv builds a DatabaseConfig from PGHOST/PGPORT/PGUSER/
// PGDATABASE/PGSSLMODE-style environment variables, the way pg_dump itself
// resolves its connection parameters.
func DatabaseFromEnv() *DatabaseConfig {
	return &DatabaseConfig{
		Host:     getEnvString("PGHOST", "localhost"),
		Port:     getEnvInt("PGPORT", 5432),
		Username: getEnvString("PGUSER", "postgres"),
		Database: getEnvString("PGDATABASE", ""),
		Password: os.Getenv("PGPASSWORD"),
		SSLMode:  getEnvString("PGSSLMODE", "prefer"),
	}
}

// StorageFromEnv builds a local filesystem StorageConfig from BACKUP_DIR,
// the teacher's default storage location.
func StorageFromEnv() *StorageConfig {
	return &StorageConfig{
		Kind:     StorageLocal,
		RootPath: getEnvString("BACKUP_DIR", "./backups"),
	}
}

// isLoopback reports whether host is the literal name "localhost" or a
// loopback IP address; no DNS lookup is made.
func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsLoopback reports whether d.Host is a loopback address, per isLoopback.
func (d *DatabaseConfig) IsLoopback() bool {
	return isLoopback(d.Host)
}

// Package cmd is the thin cobra CLI surface over internal/orchestrator.
// Grounded on the teacher's cmd/root.go (global flag registration,
// package-level cfg/log singletons set by Execute) and cmd/backup.go's
// subcommand shape, narrowed from the teacher's multi-database-type,
// multi-mode surface down to the five Orchestrator operations spec §4.6
// names: backup, restore, list, cleanup, test-connection.
package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"pgbackup/internal/config"
	"pgbackup/internal/logger"
	"pgbackup/internal/metrics"
	"pgbackup/internal/security"
)

// Flag-backed values shared by every subcommand's PreRunE, mirroring the
// teacher's package-level cfg/log singletons set once in Execute.
var (
	dbCfg      config.DatabaseConfig
	tunnelCfg  config.TunnelConfig
	useTunnel  bool
	storageCfg config.StorageConfig
	storageDir string

	sourceName string

	log         logger.Logger
	auditLogger *security.AuditLogger
	metricsCol  *metrics.Collector
)

var rootCmd = &cobra.Command{
	Use:   "pgbackup",
	Short: "Streaming PostgreSQL logical backup and restore",
	Long: `pgbackup streams pg_dump/pg_restore directly to and from a pluggable
storage backend (local filesystem or an S3-compatible bucket), without
buffering the whole dump in memory, and manages the naming and retention
of the resulting artifacts.

For help with a specific command, use: pgbackup [command] --help`,
}

// Execute adds all subcommands to the root command and runs it against ctx.
// version is reported by `pgbackup --version`; main sets it from its
// ldflags-populated build info.
func Execute(ctx context.Context, l logger.Logger, version string) error {
	log = l
	auditLogger = security.NewAuditLogger(log, true)
	metricsCol = metrics.NewCollector(prometheus.DefaultRegisterer)

	rootCmd.Version = version

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dbCfg.Host, "host", "localhost", "Database host")
	pf.IntVar(&dbCfg.Port, "port", 5432, "Database port")
	pf.StringVar(&dbCfg.Username, "user", "postgres", "Database user")
	pf.StringVar(&dbCfg.Password, "password", "", "Database password (falls back to PGPASSWORD)")
	pf.StringVar(&dbCfg.SSLMode, "ssl-mode", "prefer", "SSL mode (disable|prefer|require|verify-ca|verify-full)")
	pf.StringVar(&sourceName, "source-name", "default", "Logical name of this source, used in backup keys")

	pf.BoolVar(&useTunnel, "tunnel", false, "Reach the database through an SSH tunnel")
	pf.StringVar(&tunnelCfg.SSHHost, "tunnel-ssh-host", "", "SSH server host for the tunnel")
	pf.IntVar(&tunnelCfg.SSHPort, "tunnel-ssh-port", 22, "SSH server port for the tunnel")
	pf.StringVar(&tunnelCfg.SSHUser, "tunnel-ssh-user", "", "SSH user for the tunnel")
	pf.StringVar(&tunnelCfg.SSHKeyPath, "tunnel-ssh-key", "", "Path to the SSH private key for the tunnel")
	pf.StringVar(&tunnelCfg.RemoteHost, "tunnel-remote-host", "localhost", "Database host as seen from the SSH server")
	pf.IntVar(&tunnelCfg.RemotePort, "tunnel-remote-port", 5432, "Database port as seen from the SSH server")

	var storageKind string
	pf.StringVar(&storageKind, "storage", "local", "Storage backend kind (local|s3)")
	pf.StringVar(&storageDir, "storage-path", "./backups", "Local storage root path (storage=local)")
	pf.StringVar(&storageCfg.Bucket, "s3-bucket", "", "S3 bucket name (storage=s3, falls back to S3_BUCKET)")
	pf.StringVar(&storageCfg.Region, "s3-region", "", "S3 region (storage=s3, falls back to S3_REGION)")
	pf.StringVar(&storageCfg.Endpoint, "s3-endpoint", "", "S3-compatible endpoint, e.g. for MinIO (storage=s3, falls back to S3_ENDPOINT)")
	pf.StringVar(&storageCfg.AccessKey, "s3-access-key", "", "S3 access key (falls back to S3_ACCESS_KEY_ID/S3_ACCESS_KEY, then AWS_ACCESS_KEY_ID)")
	pf.StringVar(&storageCfg.SecretKey, "s3-secret-key", "", "S3 secret key (falls back to S3_SECRET_ACCESS_KEY/S3_SECRET_KEY, then AWS_SECRET_ACCESS_KEY)")
	pf.StringVar(&storageCfg.Prefix, "s3-prefix", "", "Key prefix within the bucket (storage=s3)")
	pf.BoolVar(&storageCfg.PathStyle, "s3-path-style", false, "Use path-style S3 addressing (required by most MinIO setups)")
	pf.BoolVar(&storageCfg.UseSSL, "s3-use-ssl", true, "Not read by the S3 backend: TLS follows the scheme given in --s3-endpoint")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if useTunnel {
			dbCfg.Tunnel = &tunnelCfg
		}
		switch storageKind {
		case "local":
			storageCfg.Kind = config.StorageLocal
			storageCfg.RootPath = storageDir
		case "s3":
			storageCfg.Kind = config.StorageS3
		default:
			return fmt.Errorf("pgbackup: unknown --storage kind %q (want local or s3)", storageKind)
		}
		return nil
	}

	rootCmd.AddCommand(backupCmd, restoreCmd, listCmd, cleanupCmd, testConnectionCmd)
	return rootCmd.ExecuteContext(ctx)
}

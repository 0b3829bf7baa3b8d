package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pgbackup/internal/orchestrator"
)

var backupCompressionLevel int

var backupCmd = &cobra.Command{
	Use:   "backup [database]",
	Short: "Stream a logical backup of a database to the configured storage backend",
	Long: `Runs pg_dump --format=custom, gzips its output, and streams the result
directly to the configured storage backend (local filesystem or S3) without
buffering the whole dump in memory.

Example:
  pgbackup backup appdb --storage s3 --s3-bucket my-backups --s3-region us-east-1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := buildOrchestrator(args[0])
		if err != nil {
			os.Exit(exitCode(err))
		}

		key, err := o.Backup(cmd.Context(), orchestrator.BackupOptions{CompressionLevel: backupCompressionLevel})
		if err != nil {
			log.Error("backup failed", "database", args[0], "error", err)
			os.Exit(exitCode(err))
		}

		fmt.Println(key)
		return nil
	},
}

func init() {
	backupCmd.Flags().IntVar(&backupCompressionLevel, "compression-level", orchestrator.DefaultCompressionLevel, "gzip compression level, 0 (none) through 9 (best)")
}

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"pgbackup/internal/pipeline"
	"pgbackup/internal/security"
)

var (
	restoreDropFirst bool
	restoreCreate    bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore [database] [key]",
	Short: "Stream a backup artifact back into a database",
	Long: `Streams a stored artifact out of the storage backend, decompresses it
if it is gzip-compressed, and replays it through pg_restore. The artifact's
key extension selects how it's read: .gz for this tool's own gzip-wrapped
custom-format dumps, .dump for an externally supplied, uncompressed
custom-format dump.

Example:
  pgbackup restore appdb primary-appdb-2026-07-29-120301-a1b2c3d4.gz`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := security.ValidateArtifactKey(args[1]); err != nil {
			log.Error("restore failed", "database", args[0], "key", args[1], "error", err)
			os.Exit(exitCode(err))
		}

		o, err := buildOrchestrator(args[0])
		if err != nil {
			os.Exit(exitCode(err))
		}

		opts := pipeline.RestoreOptions{
			DropDatabaseFirst: restoreDropFirst,
			CreateIfMissing:   restoreCreate,
		}
		if err := o.Restore(cmd.Context(), args[1], opts); err != nil {
			log.Error("restore failed", "database", args[0], "key", args[1], "error", err)
			os.Exit(exitCode(err))
		}
		return nil
	},
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreDropFirst, "drop-first", false, "Drop the target database before restoring")
	restoreCmd.Flags().BoolVar(&restoreCreate, "create-if-missing", false, "Create the target database if it does not exist")
}

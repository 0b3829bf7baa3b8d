package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pgbackup/internal/retention"
)

var (
	retentionFlag string
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [database]",
	Short: "Delete backup artifacts older than the retention window",
	Long: `Deletes artifacts for the given database whose age exceeds the
retention window (e.g. "30d", "6m", "1y"). Pass --dry-run to see what would
be deleted without deleting anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := retention.Parse(retentionFlag)
		if err != nil {
			log.Error("invalid retention spec", "spec", retentionFlag, "error", err)
			os.Exit(2)
		}

		o, err := buildOrchestrator(args[0])
		if err != nil {
			os.Exit(exitCode(err))
		}

		affected, err := o.Cleanup(cmd.Context(), spec, cleanupDryRun)
		if err != nil {
			log.Error("cleanup failed", "database", args[0], "error", err)
			os.Exit(exitCode(err))
		}

		for _, key := range affected {
			fmt.Println(key)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().StringVar(&retentionFlag, "retention", "30d", `Retention window: "Nd", "Nw", "Nm", or "Ny"`)
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Report what would be deleted without deleting it")
}

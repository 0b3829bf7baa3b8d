package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection [database]",
	Short: "Verify the database and storage backend are both reachable",
	Long: `Opens the SSH tunnel if one is configured, probes the database
server, and exercises the storage backend's Test operation, without
performing a backup or restore.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := buildOrchestrator(args[0])
		if err != nil {
			os.Exit(exitCode(err))
		}

		check, err := o.TestConnection(cmd.Context())
		if err != nil {
			// An unreachable database or storage backend comes back as
			// check.Reachable == false, not an error; only context
			// cancellation reaches this branch.
			log.Error("test-connection failed", "database", args[0], "error", err)
			os.Exit(exitCode(err))
		}

		fmt.Printf("reachable=%t detail=%q\n", check.Reachable, check.Detail)
		if !check.Reachable {
			os.Exit(3)
		}
		return nil
	},
}

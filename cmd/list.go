package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [database]",
	Short: "List backup artifacts for a database, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := buildOrchestrator(args[0])
		if err != nil {
			os.Exit(exitCode(err))
		}

		artifacts, err := o.List(cmd.Context())
		if err != nil {
			log.Error("list failed", "database", args[0], "error", err)
			os.Exit(exitCode(err))
		}

		for _, a := range artifacts {
			fmt.Printf("%s\t%d\t%s\n", a.Key, a.SizeBytes, a.LastModified.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	},
}

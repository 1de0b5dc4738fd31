// Command peoplehub runs the people registry: the HTTP API, the enrichment
// worker and the operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "peoplehub",
		Short: "People registry with asynchronous enrichment",
		Long: `peoplehub stores people with their e-mail addresses and friendships and
enriches every new person with gender, age and nationality inferred from
the public genderize.io, agify.io and nationalize.io services.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "peoplehub v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Start the HTTP API. In inline queue mode the server also runs enrichment in-process.",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "worker",
		Short: "Consume the Redis enrichment queue",
		RunE:  runWorker,
	})

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().Bool("status", false, "Print migration status and exit")
	migrateCmd.Flags().Bool("rollback", false, "Roll back the latest applied migration")
	rootCmd.AddCommand(migrateCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "enrich [person-id]",
		Short: "Run enrichment for one person synchronously",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnrich,
	})

	return rootCmd
}

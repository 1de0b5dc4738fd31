package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/people-hub/peoplehub/internal/infrastructure/persistence/postgres"
	"github.com/people-hub/peoplehub/pkg/logger"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if err := a.connectDatabase(ctx, false); err != nil {
		return err
	}
	migrator := postgres.NewMigrator(a.db)

	status, _ := cmd.Flags().GetBool("status")
	rollback, _ := cmd.Flags().GetBool("rollback")

	switch {
	case status:
		migrations, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
		for _, m := range migrations {
			applied := "pending"
			if m.IsApplied {
				applied = m.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, applied)
		}
		return w.Flush()

	case rollback:
		if err := migrator.Rollback(ctx); err != nil {
			return err
		}
		a.log.Info("latest migration rolled back")
		return nil

	default:
		n, err := migrator.Migrate(ctx)
		if err != nil {
			return err
		}
		a.log.Info("migrations applied", logger.Int("count", n))
		return nil
	}
}

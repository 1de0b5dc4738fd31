package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/pkg/logger"
)

// runEnrich re-runs enrichment for one person, bypassing the queue.
func runEnrich(cmd *cobra.Command, args []string) error {
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid person id %q", args[0])
	}
	id := person.ID(n)

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
	if err := a.connectRedis(ctx); err != nil {
		return err
	}

	coordinator, err := a.newCoordinator(ctx)
	if err != nil {
		return err
	}
	if err := coordinator.Enrich(ctx, id); err != nil {
		return fmt.Errorf("enrich person %d: %w", id, err)
	}

	p, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	a.log.Info("enrichment finished", logger.PersonID(id.Int64()))
	fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\tgender=%s age=%s nationality=%s\n",
		p.ID, p.DisplayName(), orUnknown(string(p.Gender)), ageString(p.Age), orUnknown(string(p.Nationality)))
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func ageString(age *int) string {
	if age == nil {
		return "unknown"
	}
	return strconv.Itoa(*age)
}

package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/funnelpulse/pkg/analytics"
)

func newBackfillCommand() *Command {
	cmd := &Command{
		Name:        "backfill",
		Description: "Aggregate a range of past days through the server",
		Flags:       flag.NewFlagSet("backfill", flag.ContinueOnError),
	}

	remote := addClientFlags(cmd.Flags)
	start := cmd.Flags.String("start", "", "First date (YYYY-MM-DD)")
	end := cmd.Flags.String("end", "", "Last date (YYYY-MM-DD), inclusive")
	workers := cmd.Flags.Int("workers", 4, "Days aggregated concurrently")
	maxDays := cmd.Flags.Int("max-days", analytics.MaxRangeDays, "Longest range accepted, in days")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *start == "" || *end == "" {
			return fmt.Errorf("start and end are required")
		}
		if *workers < 1 {
			return fmt.Errorf("workers must be at least 1")
		}

		dates, err := analytics.DateRange(*start, *end, time.UTC, *maxDays)
		if err != nil {
			return err
		}
		if len(dates) == 0 {
			return fmt.Errorf("end %s is before start %s", *end, *start)
		}

		logger := remote.logger()
		c := remote.client(logger)

		type dayResult struct {
			score  int
			alerts int
			err    error
		}
		results := make([]dayResult, len(dates))

		var g errgroup.Group
		g.SetLimit(*workers)
		for i, date := range dates {
			g.Go(func() error {
				resp, err := c.Aggregate(context.Background(), date)
				if err != nil {
					results[i].err = err
					logger.WithField("date", date).WithError(err).Warn("Backfill day failed")
					return nil
				}
				results[i].score = resp.Metrics.PerformanceScore
				results[i].alerts = len(resp.Alerts)
				logger.WithField("date", date).Debug("Backfill day aggregated")
				return nil
			})
		}
		_ = g.Wait()

		var errs []error
		fmt.Fprintf(stdout, "%-12s %-6s %s\n", "DATE", "SCORE", "ALERTS")
		for i, date := range dates {
			r := results[i]
			if r.err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", date, r.err))
				fmt.Fprintf(stdout, "%-12s %-6s %s\n", date, "-", "failed")
				continue
			}
			fmt.Fprintf(stdout, "%-12s %-6d %d\n", date, r.score, r.alerts)
		}

		logger.WithField("days", len(dates)).WithField("failed", len(errs)).Info("Backfill complete")
		return errors.Join(errs...)
	}
	return cmd
}

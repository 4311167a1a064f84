package cli

import (
	"context"
	"flag"
	"fmt"
)

func newAggregateCommand() *Command {
	cmd := &Command{
		Name:        "aggregate",
		Description: "Aggregate one day of raw telemetry and check alerts",
		Flags:       flag.NewFlagSet("aggregate", flag.ContinueOnError),
	}

	remote := addClientFlags(cmd.Flags)
	date := cmd.Flags.String("date", "", "Date to aggregate (YYYY-MM-DD); empty means today on the server")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		logger := remote.logger()

		resp, err := remote.client(logger).Aggregate(context.Background(), *date)
		if err != nil {
			return fmt.Errorf("aggregation failed: %w", err)
		}

		logger.WithField("date", resp.Metrics.Date).
			WithField("performance_score", resp.Metrics.PerformanceScore).
			WithField("alerts", len(resp.Alerts)).
			Info("Aggregation complete")
		return printJSON(resp)
	}
	return cmd
}

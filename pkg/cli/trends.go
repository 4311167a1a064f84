package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
)

func newTrendsCommand() *Command {
	cmd := &Command{
		Name:        "trends",
		Description: "Show the trend report for recent days",
		Flags:       flag.NewFlagSet("trends", flag.ContinueOnError),
	}

	remote := addClientFlags(cmd.Flags)
	days := cmd.Flags.Int("days", 7, "Number of days to analyze, counting today")
	asJSON := cmd.Flags.Bool("json", false, "Print the raw JSON report")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *days < 1 {
			return fmt.Errorf("days must be at least 1")
		}

		report, err := remote.client(remote.logger()).Trends(context.Background(), *days)
		if err != nil {
			return fmt.Errorf("failed to fetch trends: %w", err)
		}
		if *asJSON {
			return printJSON(report)
		}

		fmt.Fprintf(stdout, "Trend report (%s)\n", report.Period)
		fmt.Fprintf(stdout, "  Sessions:        %+.1f%%\n", report.Metrics.SessionsTrend)
		fmt.Fprintf(stdout, "  CTA CTR:         %+.1f%%\n", report.Metrics.CTACTRTrend)
		fmt.Fprintf(stdout, "  Form completion: %+.1f%%\n", report.Metrics.FormCompletionTrend)
		fmt.Fprintf(stdout, "  Engagement:      %+.1f%%\n", report.Metrics.EngagementTrend)
		printList("Insights", report.Insights)
		printList("Recommendations", report.Recommendations)
		if len(report.Anomalies) > 0 {
			fmt.Fprintf(stdout, "Anomalies:\n")
			for _, a := range report.Anomalies {
				fmt.Fprintf(stdout, "  - %s %s: %.2f std devs (%s)\n", a.Date, a.Metric, a.Deviation, a.Severity)
			}
		}
		return nil
	}
	return cmd
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(stdout, "%s:\n  - %s\n", title, strings.Join(items, "\n  - "))
}

package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/platinummonkey/funnelpulse/pkg/analytics"
)

func newExportCommand() *Command {
	cmd := &Command{
		Name:        "export",
		Description: "Export stored daily metrics as json, csv or ndjson",
		Flags:       flag.NewFlagSet("export", flag.ContinueOnError),
	}

	remote := addClientFlags(cmd.Flags)
	start := cmd.Flags.String("start", "", "First date (YYYY-MM-DD)")
	end := cmd.Flags.String("end", "", "Last date (YYYY-MM-DD), inclusive")
	format := cmd.Flags.String("format", "json", "Export format: json, csv or ndjson")
	out := cmd.Flags.String("out", "", "Output file; empty writes to stdout")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *start == "" || *end == "" {
			return fmt.Errorf("start and end are required")
		}
		exportFormat, err := analytics.ParseExportFormat(*format)
		if err != nil {
			return err
		}

		logger := remote.logger()
		body, err := remote.client(logger).Export(context.Background(), *start, *end, exportFormat)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		if *out == "" {
			_, err := stdout.Write(body)
			return err
		}
		if err := os.WriteFile(*out, body, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", *out, err)
		}
		logger.WithField("file", *out).WithField("bytes", len(body)).Info("Export written")
		return nil
	}
	return cmd
}

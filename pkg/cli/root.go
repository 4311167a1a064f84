package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// stdout receives command output; tests swap it for a buffer
var stdout io.Writer = os.Stdout

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "funnelctl",
		Description: "funnelctl - operator CLI for the funnel telemetry server",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("funnelctl", flag.ExitOnError),
	}

	// Add subcommands
	root.Subcommands["aggregate"] = newAggregateCommand()
	root.Subcommands["trends"] = newTrendsCommand()
	root.Subcommands["export"] = newExportCommand()
	root.Subcommands["backfill"] = newBackfillCommand()

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the command with explicit arguments
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	if strings.EqualFold(args[0], "-h") || strings.EqualFold(args[0], "--help") || args[0] == "help" {
		return c.usage()
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(stdout, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(stdout, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(stdout, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout redirects command output into a buffer for the test
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "funnelctl", root.Name)
	assert.NotNil(t, root.Flags)

	expectedCommands := []string{"aggregate", "trends", "export", "backfill"}
	for _, name := range expectedCommands {
		require.Contains(t, root.Subcommands, name)
		assert.Equal(t, name, root.Subcommands[name].Name)
		assert.NotNil(t, root.Subcommands[name].Run)
	}
	assert.Len(t, root.Subcommands, len(expectedCommands))
}

func TestCommandUsage(t *testing.T) {
	out := captureStdout(t)

	require.NoError(t, NewRootCommand().usage())

	output := out.String()
	assert.Contains(t, output, "Usage: funnelctl <command> [args]")
	assert.Contains(t, output, "Commands:")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("aggregate")), bytes.Index(out.Bytes(), []byte("backfill")))
	assert.Contains(t, output, "export")
	assert.Contains(t, output, "trends")
}

func TestCommandExecute_Help(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--HELP"}, {"help"}} {
		out := captureStdout(t)
		require.NoError(t, NewRootCommand().ExecuteArgs(args))
		assert.Contains(t, out.String(), "Usage: funnelctl")
	}
}

func TestCommandExecute_UnknownCommand(t *testing.T) {
	err := NewRootCommand().ExecuteArgs([]string{"nonexistent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: nonexistent")
}

func TestCommandExecute_SubcommandWithArgs(t *testing.T) {
	root := NewRootCommand()

	var receivedArgs []string
	root.Subcommands["test"] = &Command{
		Name: "test",
		Run: func(args []string) error {
			receivedArgs = args
			return nil
		},
	}

	require.NoError(t, root.ExecuteArgs([]string{"test", "arg1", "-flag"}))
	assert.Equal(t, []string{"arg1", "-flag"}, receivedArgs)
}

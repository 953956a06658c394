package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestRootCmd_RequiresHost(t *testing.T) {
	require.Error(t, execute(t))
	require.Error(t, execute(t, "a", "b"))
}

func TestRootCmd_FlagsReachConfig(t *testing.T) {
	err := execute(t, "--page-size", "0", "box")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page_size must be positive")
}

func TestRootCmd_EnvReachesConfig(t *testing.T) {
	t.Setenv("RSYNC_TUI_OUTPUT_LINES", "-1")
	err := execute(t, "box")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output_lines must be positive")
}

func TestRootCmd_Version(t *testing.T) {
	require.NoError(t, execute(t, "--version"))
}

package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootRejectsArguments(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"x"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), `"x"`)
}

func TestRootDebugFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, flag)
	require.Equal(t, "false", flag.DefValue)
}

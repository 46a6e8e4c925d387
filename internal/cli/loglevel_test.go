package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevelCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		cmd := GetRootCmd()
		commands := cmd.Commands()

		found := false
		for _, c := range commands {
			if c.Name() == "log-level" {
				found = true
				break
			}
		}
		assert.True(t, found, "log-level command should exist")
	})

	t.Run("help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"log-level", "--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "DEBUG")
		assert.Contains(t, helpText, "DISABLE")
	})

	t.Run("requires a level argument", func(t *testing.T) {
		resetFlags(t)
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"log-level"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)
		cmd.SetErr(output)

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 1 arg")
	})
}

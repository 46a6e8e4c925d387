package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecallCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		cmd := GetRootCmd()
		commands := cmd.Commands()

		found := false
		for _, c := range commands {
			if c.Name() == "recall" {
				found = true
				break
			}
		}
		assert.True(t, found, "recall command should exist")
	})

	t.Run("help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"recall", "--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "what it remembers")
		assert.Contains(t, helpText, "--deep")
	})

	t.Run("deep flag defaults to false", func(t *testing.T) {
		deepFlag := recallCmd.Flags().Lookup("deep")
		require.NotNil(t, deepFlag)
		assert.Equal(t, "false", deepFlag.DefValue)
	})

	t.Run("requires an interest argument", func(t *testing.T) {
		resetFlags(t)
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"recall"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)
		cmd.SetErr(output)

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 1 arg")
	})
}

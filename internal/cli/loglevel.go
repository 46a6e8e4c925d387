package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// logLevelCmd represents the log-level command
var logLevelCmd = &cobra.Command{
	Use:   "log-level <level>",
	Short: "Change a running backend's log level",
	Long: `Change the log level of the project's running backend.

Levels: DEBUG, INFO, WARNING, ERROR, CRITICAL, DISABLE. The change
lasts until the backend exits.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogLevel,
}

func init() {
	rootCmd.AddCommand(logLevelCmd)
}

func runLogLevel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	project, err := resolveProject()
	if err != nil {
		return err
	}

	c, err := newClient(cfg, project)
	if err != nil {
		return err
	}
	defer c.Close()

	message, err := c.SetLogLevel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Println(message)
	return nil
}

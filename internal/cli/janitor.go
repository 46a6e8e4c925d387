package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/mnemo/pkg/janitor"
)

// janitorCmd represents the janitor command
var janitorCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Sweep stale backend state now",
	Long: `Run one janitor sweep over the state directory.

Removes lock files whose backend process is gone and per-project
runtime directories untouched for longer than the retention window.
Running backends do this on a schedule; the command is for cleaning
up without one.`,
	RunE: runJanitor,
}

func init() {
	rootCmd.AddCommand(janitorCmd)
}

func runJanitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	retention := time.Duration(cfg.Janitor.RetentionDays) * 24 * time.Hour
	report, err := janitor.Sweep(cfg.StateDir, retention)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d stale lock(s) and %d runtime dir(s)\n", report.StaleLocks, report.RemovedDirs)
	return nil
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/mnemo/pkg/lockfile"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the backend for a project",
	Long: `Stop the memory backend for a project gracefully.
Sends SIGTERM to the backend and escalates to SIGKILL after the timeout.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 10, "timeout in seconds to wait for the backend to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	project, err := resolveProject()
	if err != nil {
		return err
	}

	lockPath, err := lockfile.Path(cfg.StateDir, project)
	if err != nil {
		return err
	}

	info, err := lockfile.ReadInfo(lockPath)
	if err != nil {
		fmt.Println("No backend running for this project")
		return nil
	}
	if !lockfile.ProcessAlive(info.PID) {
		if err := lockfile.Remove(lockPath); err != nil {
			return fmt.Errorf("remove stale lock: %w", err)
		}
		fmt.Println("No backend running for this project")
		return nil
	}

	if err := lockfile.Terminate(info.PID, time.Duration(stopTimeout)*time.Second); err != nil {
		return fmt.Errorf("stop backend: %w", err)
	}
	if err := lockfile.Remove(lockPath); err != nil {
		return fmt.Errorf("remove lock: %w", err)
	}

	fmt.Printf("Backend stopped (PID %d)\n", info.PID)
	return nil
}

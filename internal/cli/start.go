package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/mnemo/pkg/lockfile"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the backend for a project",
	Long: `Start the memory backend for a project in the background.

If a healthy backend is already running this just reports it; a stale
lock left by a dead or wedged backend is cleaned up first.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
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

	if err := c.Connect(cmd.Context()); err != nil {
		return err
	}
	health, err := c.CheckHealth(cmd.Context())
	if err != nil {
		return err
	}

	lockPath, err := lockfile.Path(cfg.StateDir, project)
	if err != nil {
		return err
	}
	info, err := lockfile.ReadInfo(lockPath)
	if err != nil {
		return fmt.Errorf("backend came up but left no lock info: %w", err)
	}

	fmt.Println("Backend running")
	fmt.Printf("  Project: %s\n", project)
	fmt.Printf("  PID: %d\n", info.PID)
	fmt.Printf("  Port: %d\n", info.Port)
	fmt.Printf("  Active tasks: %d\n", health.ActiveTasks)
	return nil
}

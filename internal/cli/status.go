package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/mnemo/pkg/lockfile"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend status for a project",
	Long:  `Show whether a memory backend is running for the project and what it is doing.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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
		fmt.Println("Status: stopped")
		return nil
	}
	if !lockfile.ProcessAlive(info.PID) {
		fmt.Println("Status: stopped")
		return nil
	}

	fmt.Println("Status: running")
	fmt.Printf("PID: %d\n", info.PID)
	fmt.Printf("Port: %d\n", info.Port)

	if fileInfo, err := os.Stat(lockPath); err == nil {
		fmt.Printf("Uptime: %s\n", formatDuration(time.Since(fileInfo.ModTime())))
	}

	// Ask the backend directly rather than through a client, which
	// would spawn a fresh backend if this one died mid-report.
	health, err := probeHealth(cmd.Context(), info.Port)
	if err != nil {
		fmt.Println("Health: unresponsive")
		return nil
	}
	fmt.Printf("Health: %s\n", health.Status)
	fmt.Printf("Active tasks: %d\n", health.ActiveTasks)
	return nil
}

type healthStatus struct {
	Status      string `json:"status"`
	ActiveTasks int    `json:"active_tasks"`
}

func probeHealth(ctx context.Context, port int) (healthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return healthStatus{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return healthStatus{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return healthStatus{}, fmt.Errorf("health returned HTTP %d", resp.StatusCode)
	}

	var health healthStatus
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return healthStatus{}, err
	}
	return health, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

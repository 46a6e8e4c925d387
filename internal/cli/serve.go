package cli

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/mnemo/internal/logger"
	"github.com/harun/mnemo/pkg/backend"
	"github.com/harun/mnemo/pkg/llm"
	"github.com/harun/mnemo/pkg/lockfile"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend in the foreground",
	Long: `Run the memory backend for one project in the foreground.

The backend serves recall and memorize over loopback HTTP, publishes
its port through the project lock file, and exits on its own once no
client has talked to it for the idle timeout. start spawns this
command detached; running it by hand is mostly useful for debugging.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	project, err := resolveProject()
	if err != nil {
		return err
	}

	logPath := cfg.Logging.File
	if logPath == "" {
		runtimeDir, err := lockfile.RuntimeDir(cfg.StateDir, project)
		if err != nil {
			return err
		}
		logPath = filepath.Join(runtimeDir, lockfile.LogFileName)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      logPath,
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	defer lg.Close()

	provider, err := llm.NewProvider(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return backend.Run(ctx, backend.Config{
		ProjectDir:       project,
		StateDir:         cfg.StateDir,
		Provider:         provider,
		Model:            cfg.LLM.Model,
		FastModel:        cfg.LLM.FastModel,
		OracleTimeout:    time.Duration(cfg.LLM.OracleTimeoutSec) * time.Second,
		IdleTimeout:      time.Duration(cfg.Backend.IdleTimeoutSec) * time.Second,
		CheckInterval:    time.Duration(cfg.Backend.CheckIntervalSec) * time.Second,
		ShutdownGrace:    time.Duration(cfg.Backend.ShutdownGraceSec) * time.Second,
		JanitorSchedule:  cfg.Janitor.Schedule,
		JanitorRetention: time.Duration(cfg.Janitor.RetentionDays) * 24 * time.Hour,
		ApplyLogLevel: func(level string) {
			if err := logger.SetLevel(level); err != nil {
				lg.Warn().Str("level", level).Msg("Ignoring unknown log level")
			}
		},
		Logger: lg.GetZerolog(),
	})
}

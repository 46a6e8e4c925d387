package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/mnemo/internal/config"
	"github.com/harun/mnemo/internal/logger"
	"github.com/harun/mnemo/pkg/client"
)

const version = "0.1.0"

var (
	cfgFile    string
	logLevel   string
	projectDir string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Mnemo - Project-scoped agent memory",
	Long: `Mnemo keeps keyword-addressed memories for a project and serves
recall and memorize through a per-project backend process. The backend
starts on demand, listens on loopback only, and shuts itself down once
no client has talked to it for a while.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mnemo/mnemo.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().StringVar(&projectDir, "project", "", "project directory (default is the current directory)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the config file and applies the --log-level override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// resolveProject returns the absolute project directory the command
// operates on.
func resolveProject() (string, error) {
	dir := projectDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve project directory: %w", err)
	}
	return abs, nil
}

// buildServeCommand is how a spawned backend inherits this invocation's
// config and project flags.
func buildServeCommand(project string) ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	command := []string{exe, "serve", "--project", project}
	if cfgFile != "" {
		command = append(command, "--config", cfgFile)
	}
	if logLevel != "" {
		command = append(command, "--log-level", logLevel)
	}
	return command, nil
}

// cliLogger returns a console logger for client-side commands. Client
// plumbing stays quiet unless --log-level asks for more.
func cliLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if logLevel != "" {
		if parsed, err := logger.ParseLevel(logLevel); err == nil {
			level = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()
}

// newClient builds a frontend client wired to spawn this same binary.
func newClient(cfg *config.Config, project string) (*client.Client, error) {
	serveCommand, err := buildServeCommand(project)
	if err != nil {
		return nil, err
	}
	return client.New(client.Config{
		ProjectDir:        project,
		StateDir:          cfg.StateDir,
		ServeCommand:      serveCommand,
		HeartbeatInterval: time.Duration(cfg.Client.HeartbeatSec) * time.Second,
		SpawnAttempts:     cfg.Client.SpawnAttempts,
		SpawnPollDelay:    time.Duration(cfg.Client.SpawnPollMs) * time.Millisecond,
		Logger:            cliLogger(),
	})
}

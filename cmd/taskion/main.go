// Command taskion tracks courses and tasks in a local SQLite database and
// keeps them in sync with a Notion workspace.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/taskion/taskion/internal/config"
	"github.com/taskion/taskion/internal/logging"
	"github.com/taskion/taskion/internal/ui"
)

var (
	configPath string
	dbPath     string
	logLevel   string

	// Resolved in PersistentPreRunE.
	cfg    *config.Config
	loader *config.Loader
	logger = zerolog.Nop()
	out    = ui.NewPrinter(os.Stdout)
)

var rootCmd = &cobra.Command{
	Use:   "taskion",
	Short: "Course and task tracker with Notion sync",
	Long: `taskion keeps courses and tasks in a local SQLite database and syncs
them with two Notion databases.

Local edits are queued and pushed on the next sync; remote edits are pulled
unless a newer local edit is waiting. Run 'taskion init' to write a config
file, then 'taskion serve' for the HTTP API and the periodic sync.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	flags.StringVar(&dbPath, "db", "", "SQLite database path (overrides database.path)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
}

// loadConfig resolves configuration and the logger before every command.
func loadConfig(cmd *cobra.Command, _ []string) error {
	bootstrap, err := logging.New(logging.Config{Level: logLevel})
	if err != nil {
		return err
	}

	loader = config.NewLoader(configPath, bootstrap)
	if cmd == initCmd {
		loader.AllowMissing()
	}
	flags := cmd.Root().PersistentFlags()
	if err := loader.BindFlag("database.path", flags.Lookup("db")); err != nil {
		return err
	}
	if err := loader.BindFlag("log.level", flags.Lookup("log-level")); err != nil {
		return err
	}

	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	logger, err = logging.New(logging.Config{
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
	})
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		ui.NewPrinter(os.Stderr).Error("%v", err)
		os.Exit(1)
	}
}

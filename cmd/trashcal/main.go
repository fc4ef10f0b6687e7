package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"trashcal/internal/config"
	appLog "trashcal/internal/log"
	"trashcal/internal/migrate"
	"trashcal/internal/store"
)

// version is stamped at build time (-ldflags "-X main.version=...") and
// doubles as the schedule migration marker.
var version = "0.1.0-dev"

// rootFlags holds the persistent CLI flags.
type rootFlags struct {
	configPath string
	debug      bool
}

var flags rootFlags

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "trashcal",
		Short:        "Household waste collection calendar and reminders",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", config.DefaultPath(), "Path to config file")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newTodayCmd(),
		newWeekCmd(),
		newMonthCmd(),
		newUpcomingCmd(),
		newDayCmd(),
		newMigrateCmd(),
		newImportICSCmd(),
		newExportICSCmd(),
		newExtractCmd(),
		newSettingsCmd(),
		newHashPasswordCmd(),
	)
	return root
}

// env is what every subcommand works against: the loaded config and an
// open, migrated settings store.
type env struct {
	cfg      *config.Config
	backend  store.Backend
	settings *store.Settings
	loc      *time.Location
}

type envOptions struct {
	skipMigrate bool
}

func openEnv(ctx context.Context, opts envOptions) (*env, error) {
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return nil, err
	}
	if !flags.debug {
		appLog.SetLevel(appLog.ParseLevel(cfg.Log.Level))
	}
	if cfg.Log.File != "" {
		if err := appLog.OpenFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups); err != nil {
			appLog.Error("failed to open log file; logging to stderr only", err, "path", cfg.Log.File)
		}
	}
	if err := cfg.Validate(); err != nil {
		appLog.Error("config has invalid values", err, "config_path", flags.configPath)
	}

	backend, err := store.Open(cfg.Store, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open %s store in %s: %w", cfg.Store, cfg.DataDir, err)
	}
	e := &env{cfg: cfg, backend: backend, settings: store.NewSettings(backend), loc: cfg.Location()}

	if !opts.skipMigrate {
		if _, err := migrate.NewMigrator(e.settings).MigrateIfNeeded(ctx, version); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *env) Close() {
	if err := e.backend.Close(); err != nil {
		appLog.Error("failed to close store", err)
	}
	_ = appLog.Close()
}

// now is the current time in the configured zone.
func (e *env) now() time.Time {
	return time.Now().In(e.loc)
}

// Package main provides the sentinel terminal client entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sentinel/internal/config"
	"sentinel/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Logger for the non-interactive command surface
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "SENTINEL - terminal dialogue session",
	Long: `sentinel runs a timed dialogue session with SENTINEL, the global
oversight system. Three recruitment emails are waiting; the connection
command you answer them with decides which side of the conversation you
are on.

Run without arguments to open the mailbox and connect.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The interactive session has its own UI and file logger.
		if cmd.Use == "sentinel" && cmd.CalledAs() == "sentinel" {
			return nil
		}
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive()
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the saved session",
	Long:  "Deletes the saved session snapshot. The next launch starts from the mailbox.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := store.NewLocalStore(cfg.Store.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open save store: %w", err)
		}
		defer db.Close()

		if err := db.Delete(cfg.Store.SaveKey); err != nil {
			return fmt.Errorf("failed to delete save: %w", err)
		}
		logger.Info("save deleted", zap.String("key", cfg.Store.SaveKey))
		fmt.Println("Saved session discarded.")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			cfg = config.DefaultConfig()
		}
		fmt.Printf("%s v%s\n", cfg.Name, cfg.Version)
	},
}

// loadConfig reads the YAML config when present and falls back to the
// compiled-in defaults otherwise.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
	}
	return cfg, nil
}

// stateDir returns the directory the save database lives in; logs go there
// too.
func stateDir(cfg *config.Config) string {
	dir := filepath.Dir(cfg.Store.DatabasePath)
	if dir == "" || dir == "." {
		dir = "data"
	}
	return dir
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sentinel.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

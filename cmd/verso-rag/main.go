// Package main is the verso-rag CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verso-reads/verso-rag/internal/config"
	"github.com/verso-reads/verso-rag/pkg/utils"
)

var version = "dev"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "verso-rag",
		Short: "Document retrieval core for verso-reads",
		Long: `verso-rag indexes library documents into chunk embeddings and retrieves
the passages most relevant to a question about one document.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file path (default: <user config dir>/verso-reads/config.yaml)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(flags),
		newIndexCmd(flags),
		newContextCmd(flags),
		newAskCmd(flags),
		newDeleteCmd(flags),
		newStatusCmd(flags),
		newKeyCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads config from path. Without an explicit path, config.yaml in the current
// directory wins over the per-user default so "verso-rag serve" from a project dir picks up
// the project's config. Missing files fall back to defaults. Returns the config and the
// path that was looked up.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = config.DefaultConfigPath()
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, config.DefaultConfigName)
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads config and builds the logger for a command.
func setup(flags *globalFlags) (*config.Config, *zap.Logger, error) {
	cfg, resolvedPath, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || flags.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedPath), zap.Bool("debug", debugMode))
	return cfg, logger, nil
}

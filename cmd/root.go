// Package cmd provides the CLI commands for Kernel Studio.
//
// Commands:
//   - serve: HTTP API server (kernels, ingest, chat, graph)
//   - migrate: apply database migrations and exit
//   - version: version information
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kernelworks/kernelstudio/internal/config"
	"github.com/kernelworks/kernelstudio/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "kernelstudio",
	Short: "Kernel Studio - retrieval-grounded chat over document kernels",
	Long: `Kernel Studio manages per-tenant knowledge kernels: ingest documents,
retrieve the most relevant chunks, and answer questions grounded in
what the kernel actually contains. Queries the kernel cannot support
are refused instead of invented.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads and validates configuration, then installs the
// configured logger as both the returned logger and slog default.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)

	return cfg, logger, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

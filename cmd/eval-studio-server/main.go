// Package main provides the evaluation harness server binary.
// The server exposes the suite, run, and document catalog REST API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evalstudio/eval-studio/internal/config"
	"github.com/evalstudio/eval-studio/internal/pkg/logger"
	"github.com/evalstudio/eval-studio/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "eval-studio-server",
		Short: "Eval Studio Server - retrieval evaluation harness API",
		Long: `Eval Studio Server runs the retrieval evaluation harness.

The server exposes a REST API for:
  - evaluation suites and their question sets
  - async evaluation runs comparing BM25 and hierarchical retrieval
  - the published document catalog

Examples:
  eval-studio-server                       # Start with defaults on :8090
  eval-studio-server --port 9000           # Custom HTTP port
  eval-studio-server -c eval-studio.yaml   # Load a config file`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().IntP("port", "p", 0, "HTTP server port (overrides config)")
	rootCmd.Flags().String("host", "", "server host (overrides config)")
	rootCmd.Flags().String("store", "", "store directory (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("eval-studio-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	storePath, _ := cmd.Flags().GetString("store")

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("port") {
		appCfg.Port = port
	}
	if host != "" {
		appCfg.Host = host
	}
	if storePath != "" {
		appCfg.Store.Path = storePath
	}

	logLevel := appCfg.Log.Level
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel, appCfg.Log.Format)

	log.Info("Starting Eval Studio Server",
		"version", version,
		"host", appCfg.Host,
		"port", appCfg.Port,
		"store", appCfg.Store.Path,
	)

	srv, err := server.New(appCfg, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", "signal", sig)
	}

	return srv.Stop(context.Background())
}

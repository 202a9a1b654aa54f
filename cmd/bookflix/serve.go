package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/config"
	"github.com/vmishra/bookflix/internal/home"
	"github.com/vmishra/bookflix/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Bookflix server",
	Long: `Start the Bookflix HTTP server.

This starts the REST API, the WebSocket endpoints, the job workers,
and the orchestrator that drives book processing in the background.
PostgreSQL must be reachable; Redis is optional (an in-process queue
is used when it is absent).

Examples:
  bookflix serve                   # Start on the configured port (8000)
  bookflix serve --port 3000       # Start on a custom port
  bookflix serve --host 127.0.0.1  # Bind to localhost only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Load configuration with hot-reload
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cm.WatchConfig()

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			ConfigManager: cm,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: from config)")

	rootCmd.AddCommand(serveCmd)
}

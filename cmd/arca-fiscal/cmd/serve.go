package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/arca-fiscal/internal/server"
)

var (
	serverAddr     string
	serverDebug    bool
	requestTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server in front of the ARCA client.

The API provides endpoints for:
  - POST /api/v1/fiscalize               - Authorize a draft
  - POST /api/v1/validate                - Validate a draft without contacting ARCA
  - GET  /api/v1/last-authorized?pos=&type= - Last authorized number
  - GET  /api/v1/ticket/:service         - Access ticket status
  - POST /api/v1/ticket/:service/renew   - Force a new access ticket
  - GET  /health                         - Health check

Requests to /api/v1 must carry X-API-Key when API_KEY is configured.

Examples:
  # Start server on the configured address
  arca-fiscal serve

  # Start on a custom port in debug mode
  arca-fiscal serve --address :9090 --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (env: SERVER_ADDRESS)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&requestTimeout, "request-timeout", 2*time.Minute, "Upper bound for one API request")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	config := &server.Config{
		Address:        cfg.Server.Address,
		APIKey:         cfg.Server.APIKey,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RequestTimeout: requestTimeout,
		Debug:          cfg.Server.Debug || serverDebug,
	}
	if serverAddr != "" {
		config.Address = serverAddr
	}

	srv := server.NewServer(config, client.Service(), logger)

	logger.WithField("address", config.Address).Info("Starting server")
	if config.APIKey == "" {
		logger.Warn("API key not configured, /api/v1 is open")
	}

	if err := srv.RunContext(ctx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

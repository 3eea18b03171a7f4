// Package serve runs the HTTP API
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ecobridge/cmd/root"
	"ecobridge/internal/config"
	"ecobridge/internal/logging"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var address string

// Cmd represents the serve command
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and admin HTTP API",
	Long: `Run the HTTP API: the EcoCash SMS webhook, order administration, proof-of-payment
upload and fee queries. Stops gracefully on SIGINT or SIGTERM.`,
	RunE: serveFunc,
}

func init() {
	Cmd.Flags().StringVar(&address, "addr", "", "Listen address (overrides server.address)")
}

func serveFunc(cmd *cobra.Command, args []string) error {
	c, err := root.NewContainer()
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			root.Log.WithError(err).Warn("Failed to close container")
		}
	}()

	cfg := c.GetConfig()
	if address == "" {
		address = cfg.Server.Address
	}
	srv := &http.Server{
		Addr:              address,
		Handler:           c.Router(),
		ReadHeaderTimeout: config.Seconds(cfg.Server.ReadTimeoutSeconds),
		ReadTimeout:       config.Seconds(cfg.Server.ReadTimeoutSeconds),
		// OCR and trading API calls run inside the request.
		WriteTimeout: config.Seconds(cfg.Server.WriteTimeoutSeconds),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, srv, root.Log)
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, srv *http.Server, logger logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", logging.F("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

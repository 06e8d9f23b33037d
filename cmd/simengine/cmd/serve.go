package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xplagiax/simengine/internal/server"
)

// shutdownGrace bounds the drain of in-flight requests on SIGTERM.
const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP similarity service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer eng.cleanup()

			addr := listenAddr
			if addr == "" {
				addr = eng.cfg.ListenAddr
			}

			srv := server.New(eng.svc, eng.logger)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(addr)
			}()

			select {
			case <-ctx.Done():
				eng.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				_ = srv.Echo().Shutdown(shutdownCtx)
				// Persist before exit; the debounced saver may hold work.
				if err := eng.svc.Save(); err != nil {
					eng.logger.Warn("final save failed", slog.String("error", err.Error()))
				}
				return nil
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides config)")
	return cmd
}

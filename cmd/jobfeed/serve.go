package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/jobfeed/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only query API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := app.Bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Cfg.Port),
		Handler:           app.BuildRouter(a.Cfg, a.Server()),
		ReadTimeout:       a.Cfg.HTTPReadTimeout,
		WriteTimeout:      a.Cfg.HTTPWriteTimeout,
		IdleTimeout:       a.Cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", a.Cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-cmd.Context().Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.ServerShutdownTimeout)
	defer cancel()
	return srvHTTP.Shutdown(shutdownCtx)
}

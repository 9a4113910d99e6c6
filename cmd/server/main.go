package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/C0neF/gomoku-project/internal/config"
	"github.com/C0neF/gomoku-project/internal/logging"
	"github.com/C0neF/gomoku-project/internal/room"
	"github.com/C0neF/gomoku-project/internal/server"
	"github.com/C0neF/gomoku-project/internal/signaling"
	"github.com/C0neF/gomoku-project/internal/version"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:     "gomoku-server",
	Short:   "Signaling server for gomoku rooms",
	Version: version.Version,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(flagConfig)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.ServerConfig) error {
	hub := signaling.NewHub(room.NewDirectory())
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.NewRouter(hub, server.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			SendQueue:      cfg.SendQueue,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("starting signaling server", "addr", cfg.Addr, "version", version.Version)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked websockets are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func main() {
	flush, err := logging.Init("info")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer flush()

	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "Path to a YAML config file")
	rootCmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("server failed", "error", err)
		stop()
		flush()
		os.Exit(1)
	}
}

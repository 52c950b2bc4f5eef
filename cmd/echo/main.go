package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ent0n29/echo/internal/app"
	"github.com/ent0n29/echo/internal/config"
	"github.com/ent0n29/echo/internal/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:          "echo",
		Short:        "Echo - an empathetic conversational assistant",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files merged into the environment (missing files are ignored)")

	load := func() (config.Config, zerolog.Logger, error) {
		if err := config.LoadDotEnv(envFiles...); err != nil {
			return config.Config{}, zerolog.Nop(), err
		}
		cfg, err := config.Load()
		if err != nil {
			return config.Config{}, zerolog.Nop(), fmt.Errorf("config error: %w", err)
		}
		logger, err := logging.New(cfg.Log)
		if err != nil {
			return config.Config{}, zerolog.Nop(), fmt.Errorf("logger init failed: %w", err)
		}
		return cfg, logger, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "chat",
		Short: "Talk to Echo from the terminal",
		Long:  "Interactive text chat. Type /clear to forget the conversation and /quit to leave.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			built, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := built.Cleanup(); err != nil {
					logger.Warn().Err(err).Msg("cleanup failed")
				}
			}()
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), built.Pipeline, built.Memory, built.Persona.Name())
		},
	})

	return root
}

func serve(parent context.Context, cfg config.Config, logger zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("cleanup failed")
		}
	}()
	for _, c := range built.Status.Checks {
		logger.Info().Str("component", c.ID).Str("status", c.Status).Str("detail", c.Detail).Msg("component status")
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	built.Sessions.StartJanitor(ctx, 5*time.Second)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.BindAddr).Str("persona", built.Persona.Name()).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

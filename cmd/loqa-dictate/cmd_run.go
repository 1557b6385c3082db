package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-dictate/internal/runtime"
	"github.com/spf13/cobra"
)

func newRunCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the dictation runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDictation(cmd, flags)
		},
	}
}

func runDictation(cmd *cobra.Command, flags *globalFlags) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Telemetry, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := runtime.New(cfg, logger, runtime.WithStdout(cmd.OutOrStdout()))
	if err := rt.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

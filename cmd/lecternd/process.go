package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lectern/internal/artifact"
	"lectern/internal/claim"
	"lectern/internal/ledger"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/worker"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <task-id>",
		Short: "Claim and process a single task by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return processTask(cmd, ctx, args[0])
		},
	}
}

func processTask(cmd *cobra.Command, ctx *commandContext, taskID string) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	artifacts, err := artifact.NewFS(cfg.Paths.ArtifactDir)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	claims := claim.NewManager(store, cfg.Worker, logger)
	orchestrator := pipeline.New(cfg, pipeline.Deps{
		Ledger: store,
		Store:  artifacts,
		Claims: claims,
		Logger: logger,
	})
	w := worker.New(cfg, claims, orchestrator, logger)

	outcome, err := w.RunOnce(signalCtx, taskID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outcome.Status == "" {
		fmt.Fprintf(out, "Task %s was superseded by another worker\n", taskID)
		return nil
	}
	fmt.Fprintf(out, "Task %s finished with status %s\n", outcome.TaskID, outcome.Status)
	if outcome.Reason != "" {
		fmt.Fprintf(out, "Reason: %s\n", outcome.Reason)
	}
	return nil
}

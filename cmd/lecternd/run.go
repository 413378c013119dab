package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"lectern/internal/api"
	"lectern/internal/artifact"
	"lectern/internal/claim"
	"lectern/internal/deps"
	"lectern/internal/ledger"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/worker"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the background worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerProcess(cmd, ctx)
		},
	}
}

func runWorkerProcess(cmd *cobra.Command, ctx *commandContext) error {
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

	statuses, err := deps.Verify(cfg)
	if err != nil {
		return err
	}
	for _, status := range statuses {
		if !status.Available {
			logger.Warn("optional binary unavailable",
				logging.String("name", status.Name),
				logging.String("detail", status.Detail))
		}
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "lecternd.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return errors.New("another lecternd instance is already running")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release instance lock", logging.Error(err))
		}
	}()

	store, err := ledger.Open(cfg)
	if err != nil {
		logger.Error("open ledger", logging.Error(err))
		return err
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

	apiServer := api.NewServer(cfg.Paths.APIBind, store, w, logger)
	if apiServer != nil {
		if err := apiServer.Start(signalCtx); err != nil {
			return fmt.Errorf("start api server: %w", err)
		}
		defer apiServer.Stop()
	}

	logger.Info("lecternd started",
		logging.String("owner", w.Owner()),
		logging.String("ledger", store.Path()),
		logging.String("artifacts", artifacts.Root()),
		logging.String("lock", lockPath))

	if err := w.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("lecternd shutting down")
	return nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lectern/internal/artifact"
	"lectern/internal/ledger"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var ownerID string

	cmd := &cobra.Command{
		Use:   "enqueue <file>",
		Short: "Copy a local media file into the artifact store and queue it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueueFile(cmd, ctx, args[0], ownerID)
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner identifier recorded on the task")
	return cmd
}

func enqueueFile(cmd *cobra.Command, ctx *commandContext, sourcePath, ownerID string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(sourcePath)
	if err != nil {
		return fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a media file", absPath)
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

	taskID := uuid.NewString()
	filename := filepath.Base(absPath)
	inputKey := artifact.InputKey(taskID, filename)

	if _, err := artifacts.Store(cmd.Context(), inputKey, absPath); err != nil {
		return fmt.Errorf("store input artifact: %w", err)
	}

	task := &ledger.Task{
		ID:       taskID,
		OwnerID:  ownerID,
		Filename: filename,
		InputKey: inputKey,
	}
	if err := store.Enqueue(cmd.Context(), task); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Queued task %s\n", taskID)
	fmt.Fprintf(out, "Input stored at %s\n", inputKey)
	return nil
}

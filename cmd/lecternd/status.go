package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lectern/internal/deps"
	"lectern/internal/ledger"
)

const (
	ansiReset = "\x1b[0m"
	ansiBlue  = "\x1b[34m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue totals and recent tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd, ctx, statusFilter)
		},
	}

	cmd.Flags().StringVar(&statusFilter, "filter", "", "Limit the task list to one status (queued, claimed, in_progress, done, failed)")
	return cmd
}

func showStatus(cmd *cobra.Command, ctx *commandContext, statusFilter string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	var filters []ledger.Status
	if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
		status, ok := ledger.ParseStatus(trimmed)
		if !ok {
			return fmt.Errorf("unknown status %q", trimmed)
		}
		filters = append(filters, status)
	}

	summary, err := store.Summary(cmd.Context())
	if err != nil {
		return fmt.Errorf("read queue summary: %w", err)
	}
	tasks, err := store.List(cmd.Context(), filters...)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	printSection(out, "Queue", colorize)
	fmt.Fprintln(out, renderTable(
		[]string{"Total", "Queued", "Claimed", "In Progress", "Done", "Failed"},
		[][]string{{
			strconv.Itoa(summary.Total),
			strconv.Itoa(summary.Queued),
			strconv.Itoa(summary.Claimed),
			strconv.Itoa(summary.InProgress),
			strconv.Itoa(summary.Done),
			strconv.Itoa(summary.Failed),
		}},
	))

	printSection(out, "Tools", colorize)
	toolRows := make([][]string, 0, 3)
	for _, status := range deps.CheckBinaries(deps.ForConfig(cfg)) {
		availability := "ok"
		if !status.Available {
			availability = status.Detail
		}
		toolRows = append(toolRows, []string{status.Name, status.Command, availability})
	}
	fmt.Fprintln(out, renderTable([]string{"Tool", "Command", "Availability"}, toolRows))

	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks recorded")
		return nil
	}

	printSection(out, "Tasks", colorize)
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			task.ID,
			task.Filename,
			string(task.Status),
			strconv.Itoa(task.Attempts),
			task.UpdatedAt.Local().Format(time.DateTime),
			task.ErrorMessage,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "File", "Status", "Attempts", "Updated", "Error"},
		rows,
	))
	return nil
}

func printSection(out io.Writer, title string, colorize bool) {
	line := fmt.Sprintf("== %s ==", title)
	if colorize {
		line = ansiBlue + line + ansiReset
	}
	fmt.Fprintln(out, line)
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	configPath := filepath.Join(base, "lectern.toml")
	body := fmt.Sprintf(`[paths]
data_dir = %q
work_dir = %q
log_dir = %q
artifact_dir = %q
api_bind = ""
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "work"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "artifacts"),
	)
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	output, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(output, target) {
		t.Fatalf("expected output to mention %s, got %q", target, output)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	if !strings.Contains(string(data), "[paths]") {
		t.Fatalf("sample config missing paths section: %q", string(data))
	}

	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when target already exists")
	}
}

func TestConfigValidateReportsPath(t *testing.T) {
	configPath := writeTestConfig(t)

	output, err := runCLI(t, "--config", configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(output, configPath) {
		t.Fatalf("expected output to mention %s, got %q", configPath, output)
	}
	if !strings.Contains(output, "Configuration valid") {
		t.Fatalf("expected validation confirmation, got %q", output)
	}
}

func TestEnqueueThenStatusListsTask(t *testing.T) {
	configPath := writeTestConfig(t)

	mediaPath := filepath.Join(t.TempDir(), "lecture.mp4")
	if err := os.WriteFile(mediaPath, []byte("fake media"), 0o644); err != nil {
		t.Fatalf("write media file: %v", err)
	}

	output, err := runCLI(t, "--config", configPath, "enqueue", mediaPath)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(output, "Queued task ") {
		t.Fatalf("expected queued confirmation, got %q", output)
	}

	output, err = runCLI(t, "--config", configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(output, "lecture.mp4") {
		t.Fatalf("expected task listing to include the filename, got %q", output)
	}
	if !strings.Contains(output, "queued") {
		t.Fatalf("expected queued status in listing, got %q", output)
	}
}

func TestEnqueueRejectsDirectories(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, "--config", configPath, "enqueue", t.TempDir()); err == nil {
		t.Fatal("expected error for directory input")
	}
}

func TestProcessUnknownTaskFails(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, "--config", configPath, "process", "no-such-task"); err == nil {
		t.Fatal("expected error for unknown task id")
	}
}

package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"lectern/internal/config"
)

// Requirement defines an external binary the pipeline shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// ForConfig builds the requirement list for the configured toolchain. The
// transcription binary is optional since the pipeline degrades to a
// transcript-free document when it is unavailable.
func ForConfig(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Tools.FFmpeg,
			Description: "Audio extraction and frame sampling",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Tools.FFprobe,
			Description: "Container and stream inspection",
		},
		{
			Name:        "Transcriber",
			Command:     cfg.Transcribe.Binary,
			Description: "Speech-to-text engine",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Verify checks the configured toolchain and returns an error naming every
// missing required binary. Missing optional binaries are reported in the
// returned statuses but do not fail the check.
func Verify(cfg *config.Config) ([]Status, error) {
	statuses := CheckBinaries(ForConfig(cfg))
	var missing []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Command)
		}
	}
	if len(missing) > 0 {
		return statuses, fmt.Errorf("required binaries not found: %s", strings.Join(missing, ", "))
	}
	return statuses, nil
}

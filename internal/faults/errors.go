package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFetch marks a missing or corrupt input artifact. Fatal.
	ErrFetch = errors.New("fetch error")
	// ErrDecode marks an unsupported or corrupt media container. Fatal.
	ErrDecode = errors.New("decode error")
	// ErrTranscription marks a speech-to-text failure. Non-fatal; the
	// pipeline degrades to an empty transcript.
	ErrTranscription = errors.New("transcription error")
	// ErrFrameExtraction marks an input with no usable visual content. Fatal.
	ErrFrameExtraction = errors.New("frame extraction error")
	// ErrAssembly marks a document construction failure. Fatal.
	ErrAssembly = errors.New("assembly error")
	// ErrUpload marks an artifact upload failure after bounded retries. Fatal.
	ErrUpload = errors.New("upload error")
	// ErrLeaseConflict marks a lost optimistic-concurrency race. Never
	// surfaced to a task; the claimer moves on to the next candidate.
	ErrLeaseConflict = errors.New("lease conflict")
	// ErrLedgerWrite marks an unacknowledged ledger transition.
	ErrLedgerWrite = errors.New("ledger write error")
)

// MaxReasonLength bounds the failure reason recorded in the task ledger.
const MaxReasonLength = 500

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrLedgerWrite
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Fatal reports whether a stage error must fail the whole task. Transcription
// failures degrade to an empty transcript and lease conflicts are handled by
// the claimer, so neither is fatal.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrTranscription), errors.Is(err, ErrLeaseConflict):
		return false
	default:
		return true
	}
}

// Reason renders an error for persistence in the ledger's error-message
// field, truncated to MaxReasonLength.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if len(msg) > MaxReasonLength {
		msg = msg[:MaxReasonLength]
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}

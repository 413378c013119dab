// Package faults defines the shared error vocabulary for the processing
// pipeline plus context helpers used by logging.
//
// Key responsibilities:
//   - Sentinel markers that classify stage failures (fetch, decode,
//     transcription, frame extraction, assembly, upload, lease, ledger).
//   - The Wrap helper that tags an error with its marker while preserving
//     stage and operation context in the message.
//   - Fatality classification and bounded rendering of failure reasons for
//     persistence in the task ledger.
//   - Context helpers that stamp task IDs, stage names, and correlation
//     identifiers for logging.
package faults

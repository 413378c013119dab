// Package logging builds the slog loggers used across the worker and carries
// task/stage/correlation fields from context into every record. Two handlers
// are provided: a compact console format for interactive use and JSON for
// machine consumption.
package logging

// Package main hosts the lecternd entrypoint and command graph.
//
// The Cobra-based command tree covers the long-running worker loop, one-shot
// task processing, queue inspection, local enqueueing, and configuration
// scaffolding. It centralizes configuration resolution and logger setup so
// subcommands can focus on wiring the worker packages together.
package main

// Package testutil provides shared testing utilities for kernelstudio.
package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output.
// Use this in tests to reduce noise; log.Logger is a type alias for
// *slog.Logger, so the result works everywhere a logger is needed.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

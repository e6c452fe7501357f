// Package logger builds configured *slog.Logger instances for platform
// services and jobs.
//
// The factory supports JSON output for log aggregation and text output for
// local development, selected via functional options or environment-driven
// Config. Attribute helpers (Error, TenantID, Component) keep log keys
// consistent across the codebase.
package logger

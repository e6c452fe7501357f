// Package pg provides PostgreSQL plumbing for the platform: pooled
// connections with startup retry, goose schema migrations, health checks,
// and error classification helpers used by the store implementations.
package pg

// Package httpserver wraps net/http with graceful shutdown, configurable
// timeouts, and structured logging. The job trigger surface and health
// endpoints are served through it.
package httpserver

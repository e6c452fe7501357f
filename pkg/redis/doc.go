// Package redis wraps go-redis connection setup with retry logic and
// environment-driven configuration. The platform uses Redis for the
// tenant resolver cache.
package redis

// Package notifier defines the outbound notification contract used by the
// lifecycle jobs.
//
// Delivery is fire-and-forget from the platform's point of view: a failed
// send is reported in the calling job's summary and never retried here.
// The real transport (email provider, in-app feed) lives outside the core;
// this package ships a slog-backed transport for development and a memory
// recorder for tests.
package notifier

// Package jobs exposes the batch lifecycle jobs over HTTP so an external
// scheduler (cron, Cloud Scheduler, systemd timers) can trigger them.
//
// The jobs themselves are idempotent and safe under overlapping
// invocation; the router only adds authentication, a shared evaluation
// clock per run, and a JSON summary of what each run did.
package jobs

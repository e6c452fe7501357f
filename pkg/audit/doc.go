// Package audit records an append-only trail of state-changing platform
// operations.
//
// Every lifecycle transition (subscription expiry, request approval,
// tenant rename, suspension) emits exactly one Entry. Recording is
// deliberately non-fatal: a failed write is reported through the
// operational logger and never blocks or rolls back the operation that
// triggered it.
package audit

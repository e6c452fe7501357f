// Package subscription implements the tenant subscription and trial
// lifecycle engine: plans, subscriptions, subscription requests, the
// billing ledger, and the batch jobs that drive them.
//
// The engine is built for at-least-once, possibly overlapping job
// invocation. Every status change is a compare-and-transition: the write
// succeeds only if the row is still in the expected source state, and a
// failed compare means a prior or concurrent run already handled the row,
// which is treated as a benign no-op rather than an error. Approving a
// request is a single atomic unit (request resolution, supersession of the
// current subscription, the new subscription row, and the ledger entry);
// if any part fails the request stays pending and is retryable.
//
// Renewal never mutates a subscription row into a new term. Expired and
// cancelled rows are terminal, and a new row carries the next term, so
// billing history is preserved.
package subscription

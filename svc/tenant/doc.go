// Package tenant owns the tenant directory: the Tenant record, its status
// lifecycle, subdomain resolution with pluggable caching, and the tenant
// name change workflow.
//
// A tenant's subdomain is immutable outside the name change workflow.
// Renames are never applied immediately: approval schedules the change for
// a future effective time, and a frequent apply job performs the actual
// rename once that time passes. At most one rename request per tenant may
// be open at any moment; the stores enforce this, and the Postgres schema
// backs it with a partial unique index so concurrent job runs cannot race
// past the application-level check.
package tenant

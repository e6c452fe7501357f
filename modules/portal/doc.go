// Package portal exposes the tenant self-service endpoints: current
// subscription status, billing history, plan requests and rename
// requests. The routes stay reachable for suspended tenants so a lapsed
// shop can request a new plan and come back.
package portal

package tenant

import (
	"time"

	"github.com/google/uuid"
)

// RenameStatus is the state of a name change request.
type RenameStatus string

const (
	RenamePending      RenameStatus = "pending"
	RenameScheduled    RenameStatus = "scheduled"
	RenameApplied      RenameStatus = "applied"
	RenameAutoApproved RenameStatus = "auto_approved"
	RenameRejected     RenameStatus = "rejected"
	RenameCancelled    RenameStatus = "cancelled"
)

// Open reports whether the request still occupies the tenant's single
// open-request slot. Auto-approved requests stay open until the apply job
// finishes them.
func (s RenameStatus) Open() bool {
	switch s {
	case RenamePending, RenameScheduled, RenameAutoApproved:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s RenameStatus) Terminal() bool {
	switch s {
	case RenameApplied, RenameRejected, RenameCancelled:
		return true
	}
	return false
}

// renameTransitions is the closed set of allowed status changes.
var renameTransitions = map[RenameStatus][]RenameStatus{
	RenamePending:      {RenameScheduled, RenameAutoApproved, RenameRejected, RenameCancelled},
	RenameScheduled:    {RenameApplied, RenameCancelled},
	RenameAutoApproved: {RenameApplied, RenameCancelled},
}

// CanTransitionRename reports whether from -> to is an allowed rename
// status change.
func CanTransitionRename(from, to RenameStatus) bool {
	for _, allowed := range renameTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NameChangeRequest is a proposed tenant rename moving through the
// approval workflow. Resolved requests are immutable.
type NameChangeRequest struct {
	ID                uuid.UUID    `json:"id"`
	TenantID          uuid.UUID    `json:"tenant_id"`
	ProposedName      string       `json:"proposed_name"`
	ProposedSubdomain string       `json:"proposed_subdomain"`
	Status            RenameStatus `json:"status"`
	RequestedBy       string       `json:"requested_by"`
	RequestedAt       time.Time    `json:"requested_at"`
	// EffectiveAt is set when the request is scheduled or auto-approved;
	// the apply job acts only once this time has passed.
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
}

// Due reports whether the apply job should act on the request at now.
func (r *NameChangeRequest) Due(now time.Time) bool {
	if r.Status != RenameScheduled && r.Status != RenameAutoApproved {
		return false
	}
	return r.EffectiveAt != nil && !r.EffectiveAt.After(now)
}

package domain

import "time"

// Role is a named grant bundle assignable to users. Names are unique.
type Role struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Permission is a dot-namespaced capability key (e.g. "users.write"). Keys are unique.
type Permission struct {
	ID          string
	Key         string
	Description string
	CreatedAt   time.Time
}

// DenyReason says why an authorization decision refused access.
type DenyReason string

const (
	// DenyUnauthenticated: no resolvable subject for a gated operation.
	DenyUnauthenticated DenyReason = "unauthenticated"
	// DenyNoRolesAssigned: subject has zero roles; denied regardless of requirements.
	DenyNoRolesAssigned DenyReason = "no_roles_assigned"
	// DenyMissingRole: none of the subject's roles matches the required set.
	DenyMissingRole DenyReason = "missing_role"
	// DenyMissingPermission: the subject's effective permission set does not
	// cover every required key.
	DenyMissingPermission DenyReason = "missing_permission"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  DenyReason // empty when Allowed
}

// Allow returns an allowing decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a denying decision with the given reason.
func Deny(reason DenyReason) Decision { return Decision{Allowed: false, Reason: reason} }

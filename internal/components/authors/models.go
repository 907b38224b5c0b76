// Package authors implements the pending-author invitation workflow: an
// existing owner invites a user to become a co-author of an add-on, and the
// invite is resolved by exactly one of confirm (by the invitee), decline (by
// the invitee), or delete (by the inviter).
package authors

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an invitation.
// Confirmed, declined, and deleted are terminal: a resolved invite never
// transitions again, and retrying a resolution is rejected rather than
// absorbed. Deleted invites are kept as records (soft delete) so that
// terminal-state guards and audit queries work after the fact.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDeclined  Status = "declined"
	StatusDeleted   Status = "deleted"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusDeclined || s == StatusDeleted
}

// Client-facing validation messages. The exact wording is part of the API
// contract and must not change.
const (
	MsgAccountNotFound    = "Account not found."
	MsgMissingDisplayName = "The account needs a display name before it can be added as an author."
	MsgRestrictedAccount  = "The email address used for your account is not allowed for add-on submission."
	MsgDuplicateInvite    = "An author invitation for this account is already pending."
	MsgInvalidRole        = "Role must be one of: owner, developer."
)

var (
	// Validation failures (HTTP 400).
	ErrAccountNotFound    = errors.New(MsgAccountNotFound)
	ErrMissingDisplayName = errors.New(MsgMissingDisplayName)
	ErrRestrictedAccount  = errors.New(MsgRestrictedAccount)
	ErrDuplicateInvite    = errors.New(MsgDuplicateInvite)
	ErrInvalidRole        = errors.New(MsgInvalidRole)

	// Authorization failures (HTTP 403). Terminal-state violations surface
	// as the same generic denial as wrong-actor attempts.
	ErrForbidden = errors.New("you do not have permission to perform this action")

	// Lookup failures (HTTP 404).
	ErrAddonNotFound  = errors.New("addon not found")
	ErrInviteNotFound = errors.New("pending author not found")
)

// Invite is a pending-author invitation record.
type Invite struct {
	ID         string     `json:"id"`
	AddonSlug  string     `json:"addon_slug"`
	UserID     string     `json:"user_id"`
	Role       string     `json:"role"`
	Listed     bool       `json:"listed"`
	Position   int        `json:"position"`
	Status     Status     `json:"status"`
	InvitedBy  string     `json:"invited_by"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Patch holds the fields mutable through edit. Nil means "leave unchanged".
// Only role and listed may be edited on a pending invite.
type Patch struct {
	Role   *string
	Listed *bool
}

// Package addons provides the add-on registry and the active author roster.
// Pending invitations live in the authors package; an entry appears here only
// once an invite has been confirmed (or at add-on creation for the creator).
package addons

import (
	"errors"
	"time"
)

var (
	ErrAddonNotFound  = errors.New("addon not found")
	ErrAddonExists    = errors.New("addon already exists")
	ErrAuthorNotFound = errors.New("author not found")
	ErrAuthorExists   = errors.New("author already exists")
	ErrLastOwner      = errors.New("add-on must have at least one owner")
	ErrInvalidRole    = errors.New("invalid author role")
)

// Author roles. Owners manage authorship; developers can only publish.
const (
	RoleOwner     = "owner"
	RoleDeveloper = "developer"
)

// ValidRole reports whether role is a recognized author role.
func ValidRole(role string) bool {
	return role == RoleOwner || role == RoleDeveloper
}

// Addon is a marketplace add-on. Slug is the external identifier used in
// API paths.
type Addon struct {
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Author is an ACTIVE author of an add-on.
type Author struct {
	AddonSlug string `json:"addon_slug"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Listed    bool   `json:"listed"`
	Position  int    `json:"position"`
}

// IsOwner reports whether the author holds the owner role.
func (a *Author) IsOwner() bool {
	return a.Role == RoleOwner
}

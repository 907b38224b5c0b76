package authors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/addonforge/addon-authors-go/internal/components/addons"
	"github.com/addonforge/addon-authors-go/internal/components/identity"
	"github.com/addonforge/addon-authors-go/internal/components/restrictions"
	"github.com/addonforge/addon-authors-go/internal/platform/logutil"
)

// Engine enforces the invitation state machine and its authorization rules.
//
// Transitions are one-shot: a resolved invite rejects every further action,
// including a retry of the resolution that won. Entitlement failures and
// terminal-state violations are deliberately indistinguishable to callers
// (both ErrForbidden).
type Engine struct {
	invites    Repo
	addons     addons.Repo
	accounts   identity.PartyRepo
	restricted *restrictions.List
	log        *slog.Logger
}

// NewEngine creates a workflow engine.
func NewEngine(invites Repo, addonRepo addons.Repo, accounts identity.PartyRepo, restricted *restrictions.List, log *slog.Logger) *Engine {
	log = logutil.NoopIfNil(log)
	return &Engine{
		invites:    invites,
		addons:     addonRepo,
		accounts:   accounts,
		restricted: restricted,
		log:        log,
	}
}

// Create invites a user to become an author of the add-on.
//
// The requester must be an owner of the add-on or an admin. The target
// account must exist, have a display name, and not match the email
// restriction list; each check fails with a validation error carrying the
// exact client-facing message. At most one pending invite may exist per
// (addon, user).
func (e *Engine) Create(ctx context.Context, addonSlug string, requester *identity.User, userID, role string, listed bool, position int) (*Invite, error) {
	if _, err := e.addons.GetAddon(ctx, addonSlug); err != nil {
		return nil, ErrAddonNotFound
	}
	if err := e.requireManager(ctx, addonSlug, requester); err != nil {
		return nil, err
	}

	if !addons.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	target, err := e.accounts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if !target.HasDisplayName() {
		return nil, ErrMissingDisplayName
	}
	if e.restricted.IsRestricted(target.Email) {
		return nil, ErrRestrictedAccount
	}

	// An active author cannot be invited again.
	if _, err := e.addons.GetAuthor(ctx, addonSlug, userID); err == nil {
		return nil, ErrDuplicateInvite
	}

	invite := &Invite{
		AddonSlug: addonSlug,
		UserID:    userID,
		Role:      role,
		Listed:    listed,
		Position:  position,
		Status:    StatusPending,
		InvitedBy: requester.ID,
	}
	if err := e.invites.Create(ctx, invite); err != nil {
		return nil, err
	}

	e.log.Info("pending author invited",
		"addon", addonSlug, "user_id", userID, "role", role, "invited_by", requester.ID)
	return invite, nil
}

// List returns the add-on's pending invites in insertion order.
// Visible to add-on owners and admins.
func (e *Engine) List(ctx context.Context, addonSlug string, requester *identity.User) ([]*Invite, error) {
	if _, err := e.addons.GetAddon(ctx, addonSlug); err != nil {
		return nil, ErrAddonNotFound
	}
	if err := e.requireManager(ctx, addonSlug, requester); err != nil {
		return nil, err
	}
	return e.invites.ListPending(ctx, addonSlug)
}

// Get returns the pending invite for (addon, user). Resolved invites are
// excluded from this surface; they only persist for terminal-state guards.
func (e *Engine) Get(ctx context.Context, addonSlug, userID string, requester *identity.User) (*Invite, error) {
	if _, err := e.addons.GetAddon(ctx, addonSlug); err != nil {
		return nil, ErrAddonNotFound
	}
	if err := e.requireManager(ctx, addonSlug, requester); err != nil {
		return nil, err
	}
	return e.invites.GetPending(ctx, addonSlug, userID)
}

// Edit mutates role and/or listed on a pending invite. Only the original
// inviter or an admin may edit, and only while the invite is pending.
func (e *Engine) Edit(ctx context.Context, addonSlug, userID string, requester *identity.User, patch Patch) (*Invite, error) {
	if _, err := e.addons.GetAddon(ctx, addonSlug); err != nil {
		return nil, ErrAddonNotFound
	}

	invite, err := e.invites.Get(ctx, addonSlug, userID)
	if err != nil {
		return nil, err
	}
	if err := e.requireInviter(invite, requester); err != nil {
		return nil, err
	}
	if invite.Status != StatusPending {
		return nil, ErrForbidden
	}

	role := invite.Role
	if patch.Role != nil {
		role = *patch.Role
		if !addons.ValidRole(role) {
			return nil, ErrInvalidRole
		}
	}
	listed := invite.Listed
	if patch.Listed != nil {
		listed = *patch.Listed
	}

	updated, err := e.invites.Update(ctx, addonSlug, userID, role, listed)
	if err != nil {
		return nil, err
	}

	e.log.Info("pending author edited",
		"addon", addonSlug, "user_id", userID, "role", updated.Role, "listed", updated.Listed)
	return updated, nil
}

// Confirm resolves the actor's own invite and promotes them to an active
// author at the stored role/listed/position. A missing invite, someone
// else's invite, or an already-resolved invite all get the same generic
// denial.
func (e *Engine) Confirm(ctx context.Context, addonSlug string, actor *identity.User) error {
	if _, err := e.addons.GetAddon(ctx, addonSlug); err != nil {
		return ErrAddonNotFound
	}

	invite, err := e.invites.Get(ctx, addonSlug, actor.ID)
	if err != nil {
		return ErrForbidden
	}
	if invite.UserID != actor.ID {
		return ErrForbidden
	}

	resolved, err := e.invites.Resolve(ctx, addonSlug, actor.ID, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrNotPending) || errors.Is(err, ErrInviteNotFound) {
			return ErrForbidden
		}
		return err
	}

	author := &addons.Author{
		AddonSlug: addonSlug,
		UserID:    resolved.UserID,
		Role:      resolved.Role,
		Listed:    resolved.Listed,
		Position:  resolved.Position,
	}
	if err := e.addons.AddAuthor(ctx, author); err != nil {
		// The invite is already resolved; log rather than surface a
		// half-applied state to the invitee.
		e.log.Error("failed to add confirmed author",
			"addon", addonSlug, "user_id", resolved.UserID, "error", err)
	}

	e.log.Info("pending author confirmed", "addon", addonSlug, "user_id", actor.ID)
	return nil
}

// Decline resolves the actor's own invite as declined. One-shot: declining
// an already-declined invite is rejected, not absorbed.
func (e *Engine) Decline(ctx context.Context, addonSlug string, actor *identity.User) error {
	if _, err := e.addons.GetAddon(ctx, addonSlug); err != nil {
		return ErrAddonNotFound
	}

	invite, err := e.invites.Get(ctx, addonSlug, actor.ID)
	if err != nil {
		return ErrForbidden
	}
	if invite.UserID != actor.ID {
		return ErrForbidden
	}

	if _, err := e.invites.Resolve(ctx, addonSlug, actor.ID, StatusDeclined); err != nil {
		if errors.Is(err, ErrNotPending) || errors.Is(err, ErrInviteNotFound) {
			return ErrForbidden
		}
		return err
	}

	e.log.Info("pending author declined", "addon", addonSlug, "user_id", actor.ID)
	return nil
}

// Delete withdraws a pending invite. Only the original inviter or an admin
// may delete. The record is kept in DELETED status so that a later confirm
// by the invitee is denied rather than treated as unknown.
func (e *Engine) Delete(ctx context.Context, addonSlug, userID string, requester *identity.User) error {
	if _, err := e.addons.GetAddon(ctx, addonSlug); err != nil {
		return ErrAddonNotFound
	}

	invite, err := e.invites.Get(ctx, addonSlug, userID)
	if err != nil {
		return err
	}
	if err := e.requireInviter(invite, requester); err != nil {
		return err
	}
	if invite.Status != StatusPending {
		return ErrForbidden
	}

	if _, err := e.invites.Resolve(ctx, addonSlug, userID, StatusDeleted); err != nil {
		if errors.Is(err, ErrNotPending) {
			return ErrForbidden
		}
		return err
	}

	e.log.Info("pending author deleted", "addon", addonSlug, "user_id", userID, "deleted_by", requester.ID)
	return nil
}

// requireManager checks that the requester may manage authorship for the
// add-on: an owner-role active author, or an admin.
func (e *Engine) requireManager(ctx context.Context, addonSlug string, requester *identity.User) error {
	if requester == nil {
		return ErrForbidden
	}
	if requester.IsAdmin() {
		return nil
	}
	author, err := e.addons.GetAuthor(ctx, addonSlug, requester.ID)
	if err != nil || !author.IsOwner() {
		return ErrForbidden
	}
	return nil
}

// requireInviter checks that the requester created the invite, or is admin.
func (e *Engine) requireInviter(invite *Invite, requester *identity.User) error {
	if requester == nil {
		return ErrForbidden
	}
	if requester.IsAdmin() || invite.InvitedBy == requester.ID {
		return nil
	}
	return ErrForbidden
}

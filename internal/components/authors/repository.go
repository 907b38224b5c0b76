package authors

import (
	"context"
	"sync"
	"time"

	"github.com/addonforge/addon-authors-go/internal/components/identity"
)

// Repo provides invitation storage.
//
// Resolve is the single mutation that moves an invite out of pending; it
// must be atomic with respect to the current status so that when two
// resolutions race (confirm vs decline, or decline twice), exactly one wins
// and the loser observes ErrNotPending.
type Repo interface {
	// Create stores a new invite. Fills ID, CreatedAt, and Status when unset.
	// Returns ErrDuplicateInvite if a PENDING invite already exists for
	// (addon, user).
	Create(ctx context.Context, invite *Invite) error

	// Get returns the invite for (addon, user) regardless of status.
	// Terminal records are retained, so this is the lookup used by
	// terminal-state guards. Returns ErrInviteNotFound if none exists.
	Get(ctx context.Context, addonSlug, userID string) (*Invite, error)

	// GetPending returns the PENDING invite for (addon, user), or
	// ErrInviteNotFound.
	GetPending(ctx context.Context, addonSlug, userID string) (*Invite, error)

	// ListPending returns PENDING invites for the add-on in insertion order
	// (earliest invited first).
	ListPending(ctx context.Context, addonSlug string) ([]*Invite, error)

	// Update replaces role and listed on the PENDING invite for
	// (addon, user). Returns ErrNotPending if the invite is no longer
	// pending, ErrInviteNotFound if absent.
	Update(ctx context.Context, addonSlug, userID, role string, listed bool) (*Invite, error)

	// Resolve transitions the invite from PENDING to the given terminal
	// status, recording the resolution time. Returns ErrNotPending if the
	// invite exists but is not pending (the caller lost the race or is
	// retrying a one-shot transition), ErrInviteNotFound if absent.
	Resolve(ctx context.Context, addonSlug, userID string, to Status) (*Invite, error)
}

// ErrNotPending is returned by Update and Resolve when the invite exists but
// has already been resolved. Handlers surface it as a generic denial.
var ErrNotPending = ErrForbidden

// inviteKey is the composite index key for (addon, user).
func inviteKey(addonSlug, userID string) string {
	return addonSlug + "\x00" + userID
}

// MemoryRepo is an in-memory Repo implementation.
//
// A single mutex covers every operation, which gives Resolve its
// exactly-one-winner guarantee without any further machinery. Terminal
// records stay in the maps; only the pending index treats them as gone.
type MemoryRepo struct {
	mu      sync.RWMutex
	invites map[string]*Invite  // by ID
	byKey   map[string]string   // inviteKey -> most recent invite ID
	byAddon map[string][]string // addonSlug -> invite IDs in insertion order
}

// NewMemoryRepo creates a new in-memory invitation repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		invites: make(map[string]*Invite),
		byKey:   make(map[string]string),
		byAddon: make(map[string][]string),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, invite *Invite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := inviteKey(invite.AddonSlug, invite.UserID)
	if id, ok := r.byKey[key]; ok {
		if existing := r.invites[id]; existing != nil && existing.Status == StatusPending {
			return ErrDuplicateInvite
		}
	}

	if invite.ID == "" {
		invite.ID = identity.UUIDv7()
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = time.Now()
	}
	if invite.Status == "" {
		invite.Status = StatusPending
	}

	inv := *invite
	r.invites[invite.ID] = &inv
	r.byKey[key] = invite.ID
	r.byAddon[invite.AddonSlug] = append(r.byAddon[invite.AddonSlug], invite.ID)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, addonSlug, userID string) (*Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	invite, err := r.lookup(addonSlug, userID)
	if err != nil {
		return nil, err
	}
	inv := *invite
	return &inv, nil
}

func (r *MemoryRepo) GetPending(ctx context.Context, addonSlug, userID string) (*Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	invite, err := r.lookup(addonSlug, userID)
	if err != nil {
		return nil, err
	}
	if invite.Status != StatusPending {
		return nil, ErrInviteNotFound
	}
	inv := *invite
	return &inv, nil
}

func (r *MemoryRepo) ListPending(ctx context.Context, addonSlug string) ([]*Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byAddon[addonSlug]
	result := make([]*Invite, 0, len(ids))
	for _, id := range ids {
		if invite, ok := r.invites[id]; ok && invite.Status == StatusPending {
			inv := *invite
			result = append(result, &inv)
		}
	}
	return result, nil
}

func (r *MemoryRepo) Update(ctx context.Context, addonSlug, userID, role string, listed bool) (*Invite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invite, err := r.lookup(addonSlug, userID)
	if err != nil {
		return nil, err
	}
	if invite.Status != StatusPending {
		return nil, ErrNotPending
	}

	invite.Role = role
	invite.Listed = listed
	inv := *invite
	return &inv, nil
}

func (r *MemoryRepo) Resolve(ctx context.Context, addonSlug, userID string, to Status) (*Invite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invite, err := r.lookup(addonSlug, userID)
	if err != nil {
		return nil, err
	}
	if invite.Status != StatusPending {
		return nil, ErrNotPending
	}

	now := time.Now()
	invite.Status = to
	invite.ResolvedAt = &now
	inv := *invite
	return &inv, nil
}

// lookup finds the most recent invite for (addon, user). Caller holds a lock.
func (r *MemoryRepo) lookup(addonSlug, userID string) (*Invite, error) {
	id, ok := r.byKey[inviteKey(addonSlug, userID)]
	if !ok {
		return nil, ErrInviteNotFound
	}
	invite, ok := r.invites[id]
	if !ok {
		return nil, ErrInviteNotFound
	}
	return invite, nil
}

package addons

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repo provides add-on and active-author storage.
// Implementations must be safe for concurrent use. Author mutations that
// could strand an add-on without an owner fail with ErrLastOwner.
type Repo interface {
	CreateAddon(ctx context.Context, addon *Addon) error
	GetAddon(ctx context.Context, slug string) (*Addon, error)
	ListAddons(ctx context.Context) ([]*Addon, error)

	// AddAuthor adds an active author. Returns ErrAuthorExists if the user is
	// already an author of the add-on.
	AddAuthor(ctx context.Context, author *Author) error

	// GetAuthor returns the active author entry for (slug, userID).
	GetAuthor(ctx context.Context, slug, userID string) (*Author, error)

	// ListAuthors returns active authors ordered by position, then insertion.
	ListAuthors(ctx context.Context, slug string) ([]*Author, error)

	// UpdateAuthor replaces the mutable fields (role, listed, position) of an
	// existing author entry. Demoting the last owner fails with ErrLastOwner.
	UpdateAuthor(ctx context.Context, author *Author) error

	// RemoveAuthor removes an active author. Removing the last owner fails
	// with ErrLastOwner.
	RemoveAuthor(ctx context.Context, slug, userID string) error
}

// authorKey is the composite index key for author entries.
func authorKey(slug, userID string) string {
	return slug + "\x00" + userID
}

// MemoryRepo is an in-memory Repo implementation.
type MemoryRepo struct {
	mu      sync.RWMutex
	addons  map[string]*Addon
	authors map[string]*Author  // authorKey -> entry
	order   map[string][]string // slug -> userIDs in insertion order
}

// NewMemoryRepo creates a new in-memory add-on repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		addons:  make(map[string]*Addon),
		authors: make(map[string]*Author),
		order:   make(map[string][]string),
	}
}

func (r *MemoryRepo) CreateAddon(ctx context.Context, addon *Addon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.addons[addon.Slug]; exists {
		return ErrAddonExists
	}
	if addon.CreatedAt.IsZero() {
		addon.CreatedAt = time.Now()
	}

	a := *addon
	r.addons[addon.Slug] = &a
	return nil
}

func (r *MemoryRepo) GetAddon(ctx context.Context, slug string) (*Addon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addon, ok := r.addons[slug]
	if !ok {
		return nil, ErrAddonNotFound
	}
	a := *addon
	return &a, nil
}

func (r *MemoryRepo) ListAddons(ctx context.Context) ([]*Addon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Addon, 0, len(r.addons))
	for _, addon := range r.addons {
		a := *addon
		result = append(result, &a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryRepo) AddAuthor(ctx context.Context, author *Author) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.addons[author.AddonSlug]; !exists {
		return ErrAddonNotFound
	}
	key := authorKey(author.AddonSlug, author.UserID)
	if _, exists := r.authors[key]; exists {
		return ErrAuthorExists
	}

	a := *author
	r.authors[key] = &a
	r.order[author.AddonSlug] = append(r.order[author.AddonSlug], author.UserID)
	return nil
}

func (r *MemoryRepo) GetAuthor(ctx context.Context, slug, userID string) (*Author, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	author, ok := r.authors[authorKey(slug, userID)]
	if !ok {
		return nil, ErrAuthorNotFound
	}
	a := *author
	return &a, nil
}

func (r *MemoryRepo) ListAuthors(ctx context.Context, slug string) ([]*Author, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.order[slug]
	result := make([]*Author, 0, len(ids))
	for _, id := range ids {
		if author, ok := r.authors[authorKey(slug, id)]; ok {
			a := *author
			result = append(result, &a)
		}
	}
	// Position order wins; insertion order breaks ties (sort is stable).
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Position < result[j].Position
	})
	return result, nil
}

func (r *MemoryRepo) UpdateAuthor(ctx context.Context, author *Author) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := authorKey(author.AddonSlug, author.UserID)
	existing, ok := r.authors[key]
	if !ok {
		return ErrAuthorNotFound
	}

	if existing.IsOwner() && author.Role != RoleOwner && r.ownerCount(author.AddonSlug) == 1 {
		return ErrLastOwner
	}

	existing.Role = author.Role
	existing.Listed = author.Listed
	existing.Position = author.Position
	return nil
}

func (r *MemoryRepo) RemoveAuthor(ctx context.Context, slug, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := authorKey(slug, userID)
	existing, ok := r.authors[key]
	if !ok {
		return ErrAuthorNotFound
	}

	if existing.IsOwner() && r.ownerCount(slug) == 1 {
		return ErrLastOwner
	}

	delete(r.authors, key)
	ids := r.order[slug]
	for i, id := range ids {
		if id == userID {
			r.order[slug] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// ownerCount counts owner-role authors for an add-on. Caller holds the lock.
func (r *MemoryRepo) ownerCount(slug string) int {
	var count int
	for _, id := range r.order[slug] {
		if author, ok := r.authors[authorKey(slug, id)]; ok && author.IsOwner() {
			count++
		}
	}
	return count
}

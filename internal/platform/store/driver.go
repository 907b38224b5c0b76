// Package store provides persistence driver abstractions. A driver owns the
// concrete repositories consumed by the workflow engine and handlers.
package store

import (
	"context"

	"github.com/addonforge/addon-authors-go/internal/components/addons"
	"github.com/addonforge/addon-authors-go/internal/components/authors"
	"github.com/addonforge/addon-authors-go/internal/components/identity"
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, open files, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, sqlite).
	Name() string

	// Invites returns the invitation repository.
	Invites() authors.Repo

	// Addons returns the add-on and active-author repository.
	Addons() addons.Repo

	// Parties returns the account repository.
	Parties() identity.PartyRepo
}

// Package memory implements the in-memory persistence driver. It backs the
// repositories with the component-level memory implementations and holds no
// state outside the process.
package memory

import (
	"context"

	"github.com/addonforge/addon-authors-go/internal/components/addons"
	"github.com/addonforge/addon-authors-go/internal/components/authors"
	"github.com/addonforge/addon-authors-go/internal/components/identity"
	"github.com/addonforge/addon-authors-go/internal/platform/store"
)

func init() {
	store.Register("memory", NewDriver)
}

// Driver implements store.Driver with in-memory repositories.
type Driver struct {
	invites *authors.MemoryRepo
	addons  *addons.MemoryRepo
	parties *identity.MemoryPartyRepo
}

// NewDriver creates a new memory driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	return &Driver{
		invites: authors.NewMemoryRepo(),
		addons:  addons.NewMemoryRepo(),
		parties: identity.NewMemoryPartyRepo(),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "memory"
}

// Init is a no-op for the memory driver.
func (d *Driver) Init(ctx context.Context) error {
	return nil
}

// Close is a no-op for the memory driver.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) Invites() authors.Repo       { return d.invites }
func (d *Driver) Addons() addons.Repo         { return d.addons }
func (d *Driver) Parties() identity.PartyRepo { return d.parties }

var _ store.Driver = (*Driver)(nil)

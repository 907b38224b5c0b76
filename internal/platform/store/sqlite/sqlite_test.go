package sqlite_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/addonforge/addon-authors-go/internal/components/addons"
	"github.com/addonforge/addon-authors-go/internal/components/authors"
	"github.com/addonforge/addon-authors-go/internal/platform/store"
	_ "github.com/addonforge/addon-authors-go/internal/platform/store/sqlite"
)

func newDriver(t *testing.T) store.Driver {
	t.Helper()
	dir := t.TempDir()

	driver, err := store.New(&store.DriverConfig{Driver: "sqlite", DataDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := driver.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { driver.Close() })

	if _, err := os.Stat(filepath.Join(dir, "addons.db")); os.IsNotExist(err) {
		t.Fatal("addons.db not created")
	}
	return driver
}

func pendingInvite(user string) *authors.Invite {
	return &authors.Invite{
		AddonSlug: "addon",
		UserID:    user,
		Role:      "developer",
		Listed:    true,
		InvitedBy: "inviter",
	}
}

func TestSQLiteInviteCreate(t *testing.T) {
	repo := newDriver(t).Invites()
	ctx := context.Background()

	invite := pendingInvite("u1")
	if err := repo.Create(ctx, invite); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if invite.ID == "" || invite.CreatedAt.IsZero() || invite.Status != authors.StatusPending {
		t.Errorf("expected filled defaults, got %+v", invite)
	}

	// Second pending invite for the same (addon, user) is rejected.
	if err := repo.Create(ctx, pendingInvite("u1")); !errors.Is(err, authors.ErrDuplicateInvite) {
		t.Errorf("Create() duplicate error = %v, want %v", err, authors.ErrDuplicateInvite)
	}

	// Same user on another add-on is fine.
	other := pendingInvite("u1")
	other.AddonSlug = "other"
	if err := repo.Create(ctx, other); err != nil {
		t.Errorf("Create() other addon error = %v", err)
	}
}

func TestSQLiteInviteGetVariants(t *testing.T) {
	repo := newDriver(t).Invites()
	ctx := context.Background()

	if _, err := repo.Get(ctx, "addon", "u1"); !errors.Is(err, authors.ErrInviteNotFound) {
		t.Errorf("Get() error = %v, want %v", err, authors.ErrInviteNotFound)
	}

	if err := repo.Create(ctx, pendingInvite("u1")); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetPending(ctx, "addon", "u1"); err != nil {
		t.Errorf("GetPending() error = %v", err)
	}

	if _, err := repo.Resolve(ctx, "addon", "u1", authors.StatusDeclined); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// The terminal record stays visible to Get but not to GetPending.
	got, err := repo.Get(ctx, "addon", "u1")
	if err != nil {
		t.Fatalf("Get() after resolve error = %v", err)
	}
	if got.Status != authors.StatusDeclined || got.ResolvedAt == nil {
		t.Errorf("resolved record = %+v, want declined with timestamp", got)
	}
	if _, err := repo.GetPending(ctx, "addon", "u1"); !errors.Is(err, authors.ErrInviteNotFound) {
		t.Errorf("GetPending() after resolve error = %v, want %v", err, authors.ErrInviteNotFound)
	}
}

func TestSQLiteInviteListPendingOrder(t *testing.T) {
	repo := newDriver(t).Invites()
	ctx := context.Background()

	for _, user := range []string{"u1", "u2", "u3"} {
		if err := repo.Create(ctx, pendingInvite(user)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.Resolve(ctx, "addon", "u2", authors.StatusDeleted); err != nil {
		t.Fatal(err)
	}

	list, err := repo.ListPending(ctx, "addon")
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	want := []string{"u1", "u3"}
	if len(list) != len(want) {
		t.Fatalf("ListPending() len = %d, want %d", len(list), len(want))
	}
	for i, invite := range list {
		if invite.UserID != want[i] {
			t.Errorf("ListPending()[%d] = %s, want %s", i, invite.UserID, want[i])
		}
	}
}

func TestSQLiteInviteUpdate(t *testing.T) {
	repo := newDriver(t).Invites()
	ctx := context.Background()

	if _, err := repo.Update(ctx, "addon", "u1", "owner", false); !errors.Is(err, authors.ErrInviteNotFound) {
		t.Errorf("Update() missing error = %v, want %v", err, authors.ErrInviteNotFound)
	}

	if err := repo.Create(ctx, pendingInvite("u1")); err != nil {
		t.Fatal(err)
	}
	updated, err := repo.Update(ctx, "addon", "u1", "owner", false)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Role != "owner" || updated.Listed {
		t.Errorf("Update() = %+v, want owner/unlisted", updated)
	}

	if _, err := repo.Resolve(ctx, "addon", "u1", authors.StatusConfirmed); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Update(ctx, "addon", "u1", "developer", true); !errors.Is(err, authors.ErrNotPending) {
		t.Errorf("Update() resolved error = %v, want %v", err, authors.ErrNotPending)
	}
}

func TestSQLiteInviteResolveOneShot(t *testing.T) {
	repo := newDriver(t).Invites()
	ctx := context.Background()

	if err := repo.Create(ctx, pendingInvite("u1")); err != nil {
		t.Fatal(err)
	}
	resolved, err := repo.Resolve(ctx, "addon", "u1", authors.StatusConfirmed)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Status != authors.StatusConfirmed || resolved.ResolvedAt == nil {
		t.Errorf("Resolve() = %+v, want confirmed with timestamp", resolved)
	}

	// Every retry loses, including the transition that won.
	for _, to := range []authors.Status{authors.StatusConfirmed, authors.StatusDeclined, authors.StatusDeleted} {
		if _, err := repo.Resolve(ctx, "addon", "u1", to); !errors.Is(err, authors.ErrNotPending) {
			t.Errorf("Resolve(%s) retry error = %v, want %v", to, err, authors.ErrNotPending)
		}
	}
}

func TestSQLiteInviteReinviteAfterResolution(t *testing.T) {
	repo := newDriver(t).Invites()
	ctx := context.Background()

	if err := repo.Create(ctx, pendingInvite("u1")); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Resolve(ctx, "addon", "u1", authors.StatusDeclined); err != nil {
		t.Fatal(err)
	}

	fresh := pendingInvite("u1")
	fresh.Role = "owner"
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("Create() after resolution error = %v", err)
	}

	// The newest record is authoritative.
	got, err := repo.Get(ctx, "addon", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != authors.StatusPending || got.Role != "owner" {
		t.Errorf("Get() = %+v, want fresh pending owner invite", got)
	}
}

func TestSQLiteInviteResolveRace(t *testing.T) {
	repo := newDriver(t).Invites()
	ctx := context.Background()

	if err := repo.Create(ctx, pendingInvite("u1")); err != nil {
		t.Fatal(err)
	}

	const attempts = 8
	results := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		to := authors.StatusConfirmed
		if i%2 == 1 {
			to = authors.StatusDeclined
		}
		wg.Add(1)
		go func(i int, to authors.Status) {
			defer wg.Done()
			_, results[i] = repo.Resolve(ctx, "addon", "u1", to)
		}(i, to)
	}
	wg.Wait()

	winners := 0
	for i, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, authors.ErrNotPending):
		default:
			t.Errorf("results[%d] = %v, want nil or %v", i, err, authors.ErrNotPending)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	got, err := repo.Get(ctx, "addon", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status == authors.StatusPending || got.ResolvedAt == nil {
		t.Errorf("final record = %+v, want terminal with timestamp", got)
	}
}

func TestSQLiteSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := &store.DriverConfig{Driver: "sqlite", DataDir: dir}

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := driver.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := driver.Addons().CreateAddon(ctx, &addons.Addon{Slug: "my-addon", Name: "My Add-on", CreatedBy: "u1"}); err != nil {
		t.Fatal(err)
	}
	if err := driver.Invites().Create(ctx, pendingInvite("u1")); err != nil {
		t.Fatal(err)
	}
	driver.Close()

	// Reload driver - data should survive
	driver2, err := store.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := driver2.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer driver2.Close()

	if _, err := driver2.Addons().GetAddon(ctx, "my-addon"); err != nil {
		t.Errorf("addon not found after restart: %v", err)
	}
	invite, err := driver2.Invites().GetPending(ctx, "addon", "u1")
	if err != nil {
		t.Fatalf("invite not found after restart: %v", err)
	}
	if invite.Status != authors.StatusPending {
		t.Errorf("invite status = %s, want pending", invite.Status)
	}
}

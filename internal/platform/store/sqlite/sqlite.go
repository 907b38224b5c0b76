// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/addonforge/addon-authors-go/internal/components/addons"
	"github.com/addonforge/addon-authors-go/internal/components/authors"
	"github.com/addonforge/addon-authors-go/internal/components/identity"
	"github.com/addonforge/addon-authors-go/internal/platform/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// userRecord is the persisted form of identity.User.
type userRecord struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex"`
	Email        string
	EmailNorm    string `gorm:"index"` // lowercased, trimmed; empty allowed
	DisplayName  string
	PasswordHash string
	Role         string
	CreatedAt    int64 // unix nanos
}

func (userRecord) TableName() string { return "users" }

// addonRecord is the persisted form of addons.Addon.
type addonRecord struct {
	Slug      string `gorm:"primaryKey"`
	Name      string
	CreatedBy string
	CreatedAt int64
}

func (addonRecord) TableName() string { return "addons" }

// authorRecord is the persisted form of addons.Author.
type authorRecord struct {
	AddonSlug string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	Role      string
	Listed    bool
	Position  int
	CreatedAt int64 // insertion-order tiebreaker for listing
}

func (authorRecord) TableName() string { return "addon_authors" }

// inviteRecord is the persisted form of authors.Invite. Several records may
// exist per (addon, user) over time; at most one of them is pending, and the
// most recent one is authoritative for lookups.
type inviteRecord struct {
	ID         string `gorm:"primaryKey"`
	AddonSlug  string `gorm:"index:idx_invite_key"`
	UserID     string `gorm:"index:idx_invite_key"`
	Role       string
	Listed     bool
	Position   int
	Status     string `gorm:"index"`
	InvitedBy  string
	CreatedAt  int64 // unix nanos, insertion order
	ResolvedAt *int64
}

func (inviteRecord) TableName() string { return "pending_authors" }

// Driver implements the store.Driver interface using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB

	invites *inviteStore
	roster  *addonStore
	parties *partyStore
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "addons.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	if err := db.AutoMigrate(
		&userRecord{},
		&addonRecord{},
		&authorRecord{},
		&inviteRecord{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	d.invites = &inviteStore{db: db}
	d.roster = &addonStore{db: db}
	d.parties = &partyStore{db: db}
	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Driver) Invites() authors.Repo       { return d.invites }
func (d *Driver) Addons() addons.Repo         { return d.roster }
func (d *Driver) Parties() identity.PartyRepo { return d.parties }

// inviteStore implements authors.Repo.

type inviteStore struct {
	db *gorm.DB
}

func toInvite(rec *inviteRecord) *authors.Invite {
	inv := &authors.Invite{
		ID:        rec.ID,
		AddonSlug: rec.AddonSlug,
		UserID:    rec.UserID,
		Role:      rec.Role,
		Listed:    rec.Listed,
		Position:  rec.Position,
		Status:    authors.Status(rec.Status),
		InvitedBy: rec.InvitedBy,
		CreatedAt: time.Unix(0, rec.CreatedAt),
	}
	if rec.ResolvedAt != nil {
		t := time.Unix(0, *rec.ResolvedAt)
		inv.ResolvedAt = &t
	}
	return inv
}

func (s *inviteStore) Create(ctx context.Context, invite *authors.Invite) error {
	if invite.ID == "" {
		invite.ID = identity.UUIDv7()
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = time.Now()
	}
	if invite.Status == "" {
		invite.Status = authors.StatusPending
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&inviteRecord{}).
			Where("addon_slug = ? AND user_id = ? AND status = ?",
				invite.AddonSlug, invite.UserID, string(authors.StatusPending)).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return authors.ErrDuplicateInvite
		}

		rec := inviteRecord{
			ID:        invite.ID,
			AddonSlug: invite.AddonSlug,
			UserID:    invite.UserID,
			Role:      invite.Role,
			Listed:    invite.Listed,
			Position:  invite.Position,
			Status:    string(invite.Status),
			InvitedBy: invite.InvitedBy,
			CreatedAt: invite.CreatedAt.UnixNano(),
		}
		return tx.Create(&rec).Error
	})
}

// latest returns the most recent invite record for (addon, user).
func (s *inviteStore) latest(ctx context.Context, addonSlug, userID string) (*inviteRecord, error) {
	var rec inviteRecord
	result := s.db.WithContext(ctx).
		Where("addon_slug = ? AND user_id = ?", addonSlug, userID).
		Order("created_at DESC").
		First(&rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, authors.ErrInviteNotFound
		}
		return nil, result.Error
	}
	return &rec, nil
}

func (s *inviteStore) Get(ctx context.Context, addonSlug, userID string) (*authors.Invite, error) {
	rec, err := s.latest(ctx, addonSlug, userID)
	if err != nil {
		return nil, err
	}
	return toInvite(rec), nil
}

func (s *inviteStore) GetPending(ctx context.Context, addonSlug, userID string) (*authors.Invite, error) {
	var rec inviteRecord
	result := s.db.WithContext(ctx).
		Where("addon_slug = ? AND user_id = ? AND status = ?",
			addonSlug, userID, string(authors.StatusPending)).
		First(&rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, authors.ErrInviteNotFound
		}
		return nil, result.Error
	}
	return toInvite(&rec), nil
}

func (s *inviteStore) ListPending(ctx context.Context, addonSlug string) ([]*authors.Invite, error) {
	var recs []inviteRecord
	result := s.db.WithContext(ctx).
		Where("addon_slug = ? AND status = ?", addonSlug, string(authors.StatusPending)).
		Order("created_at ASC").
		Find(&recs)
	if result.Error != nil {
		return nil, result.Error
	}

	invites := make([]*authors.Invite, 0, len(recs))
	for i := range recs {
		invites = append(invites, toInvite(&recs[i]))
	}
	return invites, nil
}

func (s *inviteStore) Update(ctx context.Context, addonSlug, userID, role string, listed bool) (*authors.Invite, error) {
	result := s.db.WithContext(ctx).Model(&inviteRecord{}).
		Where("addon_slug = ? AND user_id = ? AND status = ?",
			addonSlug, userID, string(authors.StatusPending)).
		Updates(map[string]any{"role": role, "listed": listed})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.latest(ctx, addonSlug, userID); err != nil {
			return nil, err
		}
		return nil, authors.ErrNotPending
	}
	return s.GetPending(ctx, addonSlug, userID)
}

// Resolve is the single conditional UPDATE that gives transitions their
// exactly-one-winner guarantee: the WHERE clause only matches the pending
// record, so a lost race affects zero rows.
func (s *inviteStore) Resolve(ctx context.Context, addonSlug, userID string, to authors.Status) (*authors.Invite, error) {
	now := time.Now().UnixNano()
	result := s.db.WithContext(ctx).Model(&inviteRecord{}).
		Where("addon_slug = ? AND user_id = ? AND status = ?",
			addonSlug, userID, string(authors.StatusPending)).
		Updates(map[string]any{"status": string(to), "resolved_at": now})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.latest(ctx, addonSlug, userID); err != nil {
			return nil, err
		}
		return nil, authors.ErrNotPending
	}
	return s.Get(ctx, addonSlug, userID)
}

var _ authors.Repo = (*inviteStore)(nil)

// addonStore implements addons.Repo.

type addonStore struct {
	db *gorm.DB
}

func toAddon(rec *addonRecord) *addons.Addon {
	return &addons.Addon{
		Slug:      rec.Slug,
		Name:      rec.Name,
		CreatedBy: rec.CreatedBy,
		CreatedAt: time.Unix(0, rec.CreatedAt),
	}
}

func toAuthor(rec *authorRecord) *addons.Author {
	return &addons.Author{
		AddonSlug: rec.AddonSlug,
		UserID:    rec.UserID,
		Role:      rec.Role,
		Listed:    rec.Listed,
		Position:  rec.Position,
	}
}

func (s *addonStore) CreateAddon(ctx context.Context, addon *addons.Addon) error {
	if addon.CreatedAt.IsZero() {
		addon.CreatedAt = time.Now()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&addonRecord{}).Where("slug = ?", addon.Slug).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return addons.ErrAddonExists
		}
		return tx.Create(&addonRecord{
			Slug:      addon.Slug,
			Name:      addon.Name,
			CreatedBy: addon.CreatedBy,
			CreatedAt: addon.CreatedAt.UnixNano(),
		}).Error
	})
}

func (s *addonStore) GetAddon(ctx context.Context, slug string) (*addons.Addon, error) {
	var rec addonRecord
	result := s.db.WithContext(ctx).First(&rec, "slug = ?", slug)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, addons.ErrAddonNotFound
		}
		return nil, result.Error
	}
	return toAddon(&rec), nil
}

func (s *addonStore) ListAddons(ctx context.Context) ([]*addons.Addon, error) {
	var recs []addonRecord
	result := s.db.WithContext(ctx).Order("created_at ASC").Find(&recs)
	if result.Error != nil {
		return nil, result.Error
	}

	list := make([]*addons.Addon, 0, len(recs))
	for i := range recs {
		list = append(list, toAddon(&recs[i]))
	}
	return list, nil
}

func (s *addonStore) AddAuthor(ctx context.Context, author *addons.Author) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&addonRecord{}).Where("slug = ?", author.AddonSlug).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return addons.ErrAddonNotFound
		}

		if err := tx.Model(&authorRecord{}).
			Where("addon_slug = ? AND user_id = ?", author.AddonSlug, author.UserID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return addons.ErrAuthorExists
		}

		return tx.Create(&authorRecord{
			AddonSlug: author.AddonSlug,
			UserID:    author.UserID,
			Role:      author.Role,
			Listed:    author.Listed,
			Position:  author.Position,
			CreatedAt: time.Now().UnixNano(),
		}).Error
	})
}

func (s *addonStore) GetAuthor(ctx context.Context, slug, userID string) (*addons.Author, error) {
	var rec authorRecord
	result := s.db.WithContext(ctx).
		First(&rec, "addon_slug = ? AND user_id = ?", slug, userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, addons.ErrAuthorNotFound
		}
		return nil, result.Error
	}
	return toAuthor(&rec), nil
}

func (s *addonStore) ListAuthors(ctx context.Context, slug string) ([]*addons.Author, error) {
	var recs []authorRecord
	result := s.db.WithContext(ctx).
		Where("addon_slug = ?", slug).
		Order("position ASC, created_at ASC").
		Find(&recs)
	if result.Error != nil {
		return nil, result.Error
	}

	list := make([]*addons.Author, 0, len(recs))
	for i := range recs {
		list = append(list, toAuthor(&recs[i]))
	}
	return list, nil
}

func (s *addonStore) UpdateAuthor(ctx context.Context, author *addons.Author) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec authorRecord
		if err := tx.First(&rec, "addon_slug = ? AND user_id = ?", author.AddonSlug, author.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return addons.ErrAuthorNotFound
			}
			return err
		}

		if rec.Role == addons.RoleOwner && author.Role != addons.RoleOwner {
			owners, err := s.ownerCount(tx, author.AddonSlug)
			if err != nil {
				return err
			}
			if owners == 1 {
				return addons.ErrLastOwner
			}
		}

		return tx.Model(&authorRecord{}).
			Where("addon_slug = ? AND user_id = ?", author.AddonSlug, author.UserID).
			Updates(map[string]any{
				"role":     author.Role,
				"listed":   author.Listed,
				"position": author.Position,
			}).Error
	})
}

func (s *addonStore) RemoveAuthor(ctx context.Context, slug, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec authorRecord
		if err := tx.First(&rec, "addon_slug = ? AND user_id = ?", slug, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return addons.ErrAuthorNotFound
			}
			return err
		}

		if rec.Role == addons.RoleOwner {
			owners, err := s.ownerCount(tx, slug)
			if err != nil {
				return err
			}
			if owners == 1 {
				return addons.ErrLastOwner
			}
		}

		return tx.Delete(&authorRecord{}, "addon_slug = ? AND user_id = ?", slug, userID).Error
	})
}

func (s *addonStore) ownerCount(tx *gorm.DB, slug string) (int64, error) {
	var count int64
	err := tx.Model(&authorRecord{}).
		Where("addon_slug = ? AND role = ?", slug, addons.RoleOwner).
		Count(&count).Error
	return count, err
}

var _ addons.Repo = (*addonStore)(nil)

// partyStore implements identity.PartyRepo.

type partyStore struct {
	db *gorm.DB
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUser(rec *userRecord) *identity.User {
	return &identity.User{
		ID:           rec.ID,
		Username:     rec.Username,
		Email:        rec.Email,
		DisplayName:  rec.DisplayName,
		PasswordHash: rec.PasswordHash,
		Role:         rec.Role,
		CreatedAt:    time.Unix(0, rec.CreatedAt),
	}
}

func (s *partyStore) Create(ctx context.Context, user *identity.User) error {
	if user.ID == "" {
		user.ID = identity.UUIDv7()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.Role == "" {
		user.Role = identity.RoleUser
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userRecord{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return identity.ErrUserExists
		}

		norm := normalizeEmail(user.Email)
		if norm != "" {
			if err := tx.Model(&userRecord{}).Where("email_norm = ?", norm).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return identity.ErrEmailExists
			}
		}

		return tx.Create(&userRecord{
			ID:           user.ID,
			Username:     user.Username,
			Email:        user.Email,
			EmailNorm:    norm,
			DisplayName:  user.DisplayName,
			PasswordHash: user.PasswordHash,
			Role:         user.Role,
			CreatedAt:    user.CreatedAt.UnixNano(),
		}).Error
	})
}

func (s *partyStore) Get(ctx context.Context, id string) (*identity.User, error) {
	var rec userRecord
	result := s.db.WithContext(ctx).First(&rec, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, identity.ErrUserNotFound
		}
		return nil, result.Error
	}
	return toUser(&rec), nil
}

func (s *partyStore) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	var rec userRecord
	result := s.db.WithContext(ctx).First(&rec, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, identity.ErrUserNotFound
		}
		return nil, result.Error
	}
	return toUser(&rec), nil
}

func (s *partyStore) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	norm := normalizeEmail(email)
	if norm == "" {
		return nil, identity.ErrUserNotFound
	}

	var rec userRecord
	result := s.db.WithContext(ctx).First(&rec, "email_norm = ?", norm)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, identity.ErrUserNotFound
		}
		return nil, result.Error
	}
	return toUser(&rec), nil
}

func (s *partyStore) Update(ctx context.Context, user *identity.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec userRecord
		if err := tx.First(&rec, "id = ?", user.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return identity.ErrUserNotFound
			}
			return err
		}
		if rec.Role == identity.RoleSuperAdmin && user.Role != identity.RoleSuperAdmin {
			return identity.ErrSuperAdminProtected
		}

		norm := normalizeEmail(user.Email)
		if norm != "" && norm != rec.EmailNorm {
			var count int64
			if err := tx.Model(&userRecord{}).
				Where("email_norm = ? AND id <> ?", norm, user.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return identity.ErrEmailExists
			}
		}

		return tx.Model(&userRecord{}).Where("id = ?", user.ID).Updates(map[string]any{
			"username":      user.Username,
			"email":         user.Email,
			"email_norm":    norm,
			"display_name":  user.DisplayName,
			"password_hash": user.PasswordHash,
			"role":          user.Role,
		}).Error
	})
}

func (s *partyStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec userRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return identity.ErrUserNotFound
			}
			return err
		}
		if rec.Role == identity.RoleSuperAdmin {
			return identity.ErrSuperAdminProtected
		}
		return tx.Delete(&userRecord{}, "id = ?", id).Error
	})
}

func (s *partyStore) List(ctx context.Context) ([]*identity.User, error) {
	var recs []userRecord
	result := s.db.WithContext(ctx).Order("created_at ASC").Find(&recs)
	if result.Error != nil {
		return nil, result.Error
	}

	users := make([]*identity.User, 0, len(recs))
	for i := range recs {
		users = append(users, toUser(&recs[i]))
	}
	return users, nil
}

var _ identity.PartyRepo = (*partyStore)(nil)

var _ store.Driver = (*Driver)(nil)

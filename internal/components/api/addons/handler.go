// Package addons implements add-on creation and active-author management
// endpoints. Pending invitations live in the sibling authors package; this
// one only deals with the confirmed roster.
package addons

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/addonforge/addon-authors-go/internal/components/addons"
	"github.com/addonforge/addon-authors-go/internal/components/api"
	"github.com/addonforge/addon-authors-go/internal/components/identity"
	"github.com/addonforge/addon-authors-go/internal/platform/logutil"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,99}$`)

// AddonView is the public view of an add-on.
type AddonView struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
	Created   string `json:"created"`
}

// AuthorView is the public view of an active author.
type AuthorView struct {
	Addon    string `json:"addon"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Listed   bool   `json:"listed"`
	Position int    `json:"position"`
}

// AddonCreateRequest is the request body for POST /addon/.
type AddonCreateRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// AuthorEditRequest is the request body for PATCH .../authors/{userId}/.
type AuthorEditRequest struct {
	Role   *string `json:"role"`
	Listed *bool   `json:"listed"`
}

// Handler handles add-on and active-author endpoints.
type Handler struct {
	repo        addons.Repo
	currentUser func(context.Context) (*identity.User, error)
	log         *slog.Logger
}

// NewHandler creates a new add-ons handler.
func NewHandler(repo addons.Repo, currentUser func(context.Context) (*identity.User, error), log *slog.Logger) *Handler {
	log = logutil.NoopIfNil(log)
	return &Handler{
		repo:        repo,
		currentUser: currentUser,
		log:         log,
	}
}

func addonView(a *addons.Addon) AddonView {
	return AddonView{
		Slug:      a.Slug,
		Name:      a.Name,
		CreatedBy: a.CreatedBy,
		Created:   a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func authorView(a *addons.Author) AuthorView {
	return AuthorView{
		Addon:    a.AddonSlug,
		UserID:   a.UserID,
		Role:     a.Role,
		Listed:   a.Listed,
		Position: a.Position,
	}
}

// HandleCreate handles POST /addon/.
// The creator becomes the add-on's first owner author at position 0.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req AddonCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid request body")
		return
	}
	if req.Slug == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "slug is required")
		return
	}
	if !slugPattern.MatchString(req.Slug) {
		api.WriteBadRequest(w, api.ReasonInvalidField, "slug must be lowercase alphanumeric with - or _")
		return
	}
	if req.Name == "" {
		req.Name = req.Slug
	}

	ctx := r.Context()
	addon := &addons.Addon{
		Slug:      req.Slug,
		Name:      req.Name,
		CreatedBy: user.ID,
	}
	if err := h.repo.CreateAddon(ctx, addon); err != nil {
		if errors.Is(err, addons.ErrAddonExists) {
			api.WriteConflict(w, "addon already exists")
			return
		}
		h.log.Error("failed to create addon", "slug", req.Slug, "error", err)
		api.WriteInternalError(w, "failed to create addon")
		return
	}

	owner := &addons.Author{
		AddonSlug: addon.Slug,
		UserID:    user.ID,
		Role:      addons.RoleOwner,
		Listed:    true,
		Position:  0,
	}
	if err := h.repo.AddAuthor(ctx, owner); err != nil {
		h.log.Error("failed to add creator as owner", "slug", addon.Slug, "user_id", user.ID, "error", err)
		api.WriteInternalError(w, "failed to create addon")
		return
	}

	h.log.Info("addon created", "slug", addon.Slug, "created_by", user.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(addonView(addon))
}

// HandleGet handles GET /addon/{addon}/.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if _, err := h.currentUser(r.Context()); err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	slug := chi.URLParam(r, "addon")
	addon, err := h.repo.GetAddon(r.Context(), slug)
	if err != nil {
		api.WriteNotFound(w, "addon not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(addonView(addon))
}

// HandleListAuthors handles GET /addon/{addon}/authors/.
// Returns a bare JSON array ordered by position.
func (h *Handler) HandleListAuthors(w http.ResponseWriter, r *http.Request) {
	if _, err := h.currentUser(r.Context()); err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	slug := chi.URLParam(r, "addon")
	if _, err := h.repo.GetAddon(r.Context(), slug); err != nil {
		api.WriteNotFound(w, "addon not found")
		return
	}

	list, err := h.repo.ListAuthors(r.Context(), slug)
	if err != nil {
		h.log.Error("failed to list authors", "addon", slug, "error", err)
		api.WriteInternalError(w, "failed to list authors")
		return
	}

	views := make([]AuthorView, 0, len(list))
	for _, a := range list {
		views = append(views, authorView(a))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// HandleGetAuthor handles GET /addon/{addon}/authors/{userId}/.
func (h *Handler) HandleGetAuthor(w http.ResponseWriter, r *http.Request) {
	if _, err := h.currentUser(r.Context()); err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	slug := chi.URLParam(r, "addon")
	userID := chi.URLParam(r, "userId")
	author, err := h.repo.GetAuthor(r.Context(), slug, userID)
	if err != nil {
		api.WriteNotFound(w, "author not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(authorView(author))
}

// HandleEditAuthor handles PATCH /addon/{addon}/authors/{userId}/.
// Only owners of the add-on (or admins) may edit; demoting the last owner
// is rejected.
func (h *Handler) HandleEditAuthor(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req AuthorEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	slug := chi.URLParam(r, "addon")
	userID := chi.URLParam(r, "userId")

	if err := h.requireOwner(ctx, slug, user); err != nil {
		h.writeRosterError(w, err)
		return
	}

	author, err := h.repo.GetAuthor(ctx, slug, userID)
	if err != nil {
		api.WriteNotFound(w, "author not found")
		return
	}

	updated := *author
	if req.Role != nil {
		if !addons.ValidRole(*req.Role) {
			api.WriteBadRequest(w, api.ReasonInvalidField, "role must be one of: owner, developer")
			return
		}
		updated.Role = *req.Role
	}
	if req.Listed != nil {
		updated.Listed = *req.Listed
	}

	if err := h.repo.UpdateAuthor(ctx, &updated); err != nil {
		h.writeRosterError(w, err)
		return
	}

	h.log.Info("author updated", "addon", slug, "user_id", userID, "role", updated.Role, "listed", updated.Listed)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(authorView(&updated))
}

// HandleDeleteAuthor handles DELETE /addon/{addon}/authors/{userId}/.
// Removing the last owner is rejected.
func (h *Handler) HandleDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	ctx := r.Context()
	slug := chi.URLParam(r, "addon")
	userID := chi.URLParam(r, "userId")

	if err := h.requireOwner(ctx, slug, user); err != nil {
		h.writeRosterError(w, err)
		return
	}

	if err := h.repo.RemoveAuthor(ctx, slug, userID); err != nil {
		h.writeRosterError(w, err)
		return
	}

	h.log.Info("author removed", "addon", slug, "user_id", userID, "removed_by", user.ID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireOwner(ctx context.Context, slug string, user *identity.User) error {
	if _, err := h.repo.GetAddon(ctx, slug); err != nil {
		return addons.ErrAddonNotFound
	}
	if user.IsAdmin() {
		return nil
	}
	author, err := h.repo.GetAuthor(ctx, slug, user.ID)
	if err != nil || !author.IsOwner() {
		return errForbidden
	}
	return nil
}

var errForbidden = errors.New("forbidden")

func (h *Handler) writeRosterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, addons.ErrAddonNotFound):
		api.WriteNotFound(w, "addon not found")
	case errors.Is(err, addons.ErrAuthorNotFound):
		api.WriteNotFound(w, "author not found")
	case errors.Is(err, addons.ErrLastOwner):
		api.WriteBadRequest(w, api.ReasonLastOwner, "Add-ons need at least one owner.")
	case errors.Is(err, errForbidden):
		api.WriteForbidden(w, api.ReasonUnauthorized, "you do not have permission to perform this action")
	default:
		h.log.Error("author roster request failed", "error", err)
		api.WriteInternalError(w, "request failed")
	}
}

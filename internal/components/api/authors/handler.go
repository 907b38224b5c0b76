// Package authors implements the session-gated pending-author endpoints.
// Authorization is delegated to the workflow engine; handlers only map its
// errors onto the HTTP surface.
package authors

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/addonforge/addon-authors-go/internal/components/api"
	"github.com/addonforge/addon-authors-go/internal/components/authors"
	"github.com/addonforge/addon-authors-go/internal/components/identity"
	"github.com/addonforge/addon-authors-go/internal/platform/logutil"
)

// InviteView is the public view of a pending author invite.
type InviteView struct {
	Addon    string `json:"addon"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Listed   bool   `json:"listed"`
	Position int    `json:"position"`
	Created  string `json:"created"`
}

// InviteCreateRequest is the request body for POST .../pending-authors/.
type InviteCreateRequest struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Listed   *bool  `json:"listed"`
	Position int    `json:"position"`
}

// InviteEditRequest is the request body for PATCH .../pending-authors/{userId}/.
// Absent fields are left untouched.
type InviteEditRequest struct {
	Role   *string `json:"role"`
	Listed *bool   `json:"listed"`
}

// Handler handles pending-author create, list, edit, delete, confirm, and
// decline endpoints for a single add-on.
type Handler struct {
	engine      *authors.Engine
	currentUser func(context.Context) (*identity.User, error)
	log         *slog.Logger
}

// NewHandler creates a new pending-authors handler.
func NewHandler(engine *authors.Engine, currentUser func(context.Context) (*identity.User, error), log *slog.Logger) *Handler {
	log = logutil.NoopIfNil(log)
	return &Handler{
		engine:      engine,
		currentUser: currentUser,
		log:         log,
	}
}

func inviteView(inv *authors.Invite) InviteView {
	return InviteView{
		Addon:    inv.AddonSlug,
		UserID:   inv.UserID,
		Role:     inv.Role,
		Listed:   inv.Listed,
		Position: inv.Position,
		Created:  inv.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// HandleCreate handles POST /addon/{addon}/pending-authors/.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req InviteCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "user_id is required")
		return
	}
	role := req.Role
	if role == "" {
		role = "developer"
	}
	listed := true
	if req.Listed != nil {
		listed = *req.Listed
	}

	addon := chi.URLParam(r, "addon")
	invite, err := h.engine.Create(r.Context(), addon, user, req.UserID, role, listed, req.Position)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(inviteView(invite))
}

// HandleList handles GET /addon/{addon}/pending-authors/.
// Returns a bare JSON array in invitation order.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	addon := chi.URLParam(r, "addon")
	invites, err := h.engine.List(r.Context(), addon, user)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	views := make([]InviteView, 0, len(invites))
	for _, inv := range invites {
		views = append(views, inviteView(inv))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// HandleGet handles GET /addon/{addon}/pending-authors/{userId}/.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	addon := chi.URLParam(r, "addon")
	userID := chi.URLParam(r, "userId")
	invite, err := h.engine.Get(r.Context(), addon, userID, user)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inviteView(invite))
}

// HandleEdit handles PATCH /addon/{addon}/pending-authors/{userId}/.
// Only role and listed are mutable; user_id and position are fixed at
// invitation time.
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req InviteEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid request body")
		return
	}

	addon := chi.URLParam(r, "addon")
	userID := chi.URLParam(r, "userId")
	invite, err := h.engine.Edit(r.Context(), addon, userID, user, authors.Patch{
		Role:   req.Role,
		Listed: req.Listed,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inviteView(invite))
}

// HandleDelete handles DELETE /addon/{addon}/pending-authors/{userId}/.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	addon := chi.URLParam(r, "addon")
	userID := chi.URLParam(r, "userId")
	if err := h.engine.Delete(r.Context(), addon, userID, user); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleConfirm handles POST /addon/{addon}/pending-authors/confirm/.
// The acting user confirms their own invite; there is no body.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	addon := chi.URLParam(r, "addon")
	if err := h.engine.Confirm(r.Context(), addon, user); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "confirmed", "addon": addon})
}

// HandleDecline handles POST /addon/{addon}/pending-authors/decline/.
func (h *Handler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	addon := chi.URLParam(r, "addon")
	if err := h.engine.Decline(r.Context(), addon, user); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "declined", "addon": addon})
}

// writeEngineError maps workflow errors onto the HTTP surface. Validation
// failures keep their exact client-facing message; entitlement and
// terminal-state violations collapse into a generic 403.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authors.ErrAddonNotFound):
		api.WriteNotFound(w, "addon not found")
	case errors.Is(err, authors.ErrInviteNotFound):
		api.WriteNotFound(w, "pending author not found")
	case errors.Is(err, authors.ErrAccountNotFound):
		api.WriteBadRequest(w, api.ReasonInvalidField, authors.MsgAccountNotFound)
	case errors.Is(err, authors.ErrMissingDisplayName):
		api.WriteBadRequest(w, api.ReasonAccountIneligible, authors.MsgMissingDisplayName)
	case errors.Is(err, authors.ErrRestrictedAccount):
		api.WriteBadRequest(w, api.ReasonAccountIneligible, authors.MsgRestrictedAccount)
	case errors.Is(err, authors.ErrDuplicateInvite):
		api.WriteBadRequest(w, api.ReasonDuplicateAuthor, authors.MsgDuplicateInvite)
	case errors.Is(err, authors.ErrInvalidRole):
		api.WriteBadRequest(w, api.ReasonInvalidField, authors.MsgInvalidRole)
	case errors.Is(err, authors.ErrForbidden):
		api.WriteForbidden(w, api.ReasonUnauthorized, "you do not have permission to perform this action")
	default:
		h.log.Error("pending authors request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		api.WriteInternalError(w, "request failed")
	}
}

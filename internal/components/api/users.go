package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/addonforge/addon-authors-go/internal/appctx"
	"github.com/addonforge/addon-authors-go/internal/components/identity"
)

// UserView is the public view of an account.
type UserView struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// UserCreateRequest is the request body for POST /api/users.
// DisplayName may be empty; such accounts exist but are not yet eligible
// for authorship.
type UserCreateRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

// UsersHandler handles admin account provisioning.
type UsersHandler struct {
	repo        identity.PartyRepo
	sessions    identity.SessionRepo
	auth        *identity.UserAuth
	currentUser func(context.Context) (*identity.User, error)
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(repo identity.PartyRepo, sessions identity.SessionRepo, auth *identity.UserAuth, currentUser func(context.Context) (*identity.User, error)) *UsersHandler {
	return &UsersHandler{
		repo:        repo,
		sessions:    sessions,
		auth:        auth,
		currentUser: currentUser,
	}
}

func userView(u *identity.User) UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}
}

// HandleCreate handles POST /api/users. Admin only.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentUser(r.Context())
	if err != nil {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
		return
	}
	if !actor.IsAdmin() {
		WriteForbidden(w, ReasonUnauthorized, "admin privileges required")
		return
	}

	var req UserCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		WriteBadRequest(w, ReasonMissingField, "username, email and password are required")
		return
	}
	role := req.Role
	if role == "" {
		role = identity.RoleUser
	}
	if role != identity.RoleUser && role != identity.RoleAdmin {
		WriteBadRequest(w, ReasonInvalidField, "role must be one of: user, admin")
		return
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		WriteInternalError(w, "failed to create user")
		return
	}

	user := &identity.User{
		ID:           identity.UUIDv7(),
		Username:     req.Username,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Role:         role,
	}
	if err := h.repo.Create(r.Context(), user); err != nil {
		if errors.Is(err, identity.ErrUserExists) || errors.Is(err, identity.ErrEmailExists) {
			WriteConflict(w, "user already exists")
			return
		}
		WriteInternalError(w, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, userView(user))
}

// HandleGet handles GET /api/users/{userId}.
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentUser(r.Context())
	if err != nil {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
		return
	}

	userID := chi.URLParam(r, "userId")
	if !actor.IsAdmin() && actor.ID != userID {
		WriteForbidden(w, ReasonUnauthorized, "admin privileges required")
		return
	}

	user, err := h.repo.Get(r.Context(), userID)
	if err != nil {
		WriteNotFound(w, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, userView(user))
}

// HandleDelete handles DELETE /api/users/{userId}. Admin only. Deleting an
// account revokes all of its sessions.
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, err := h.currentUser(r.Context())
	if err != nil {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
		return
	}
	if !actor.IsAdmin() {
		WriteForbidden(w, ReasonUnauthorized, "admin privileges required")
		return
	}

	userID := chi.URLParam(r, "userId")
	if err := h.repo.Delete(r.Context(), userID); err != nil {
		switch {
		case errors.Is(err, identity.ErrUserNotFound):
			WriteNotFound(w, "user not found")
		case errors.Is(err, identity.ErrSuperAdminProtected):
			WriteForbidden(w, ReasonUnauthorized, "account is protected")
		default:
			WriteInternalError(w, "failed to delete user")
		}
		return
	}

	if err := h.sessions.DeleteByUser(r.Context(), userID); err != nil {
		appctx.GetLogger(r.Context()).Error("failed to revoke sessions", "user_id", userID, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

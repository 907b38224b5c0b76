package authors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/addonforge/addon-authors-go/internal/components/addons"
	"github.com/addonforge/addon-authors-go/internal/components/api"
	"github.com/addonforge/addon-authors-go/internal/components/authors"
	"github.com/addonforge/addon-authors-go/internal/components/identity"
	"github.com/addonforge/addon-authors-go/internal/components/restrictions"
)

// actorKey carries the acting user through the request context, standing in
// for the session middleware.
type actorKey struct{}

var errNoActor = errors.New("no authenticated user")

func withActor(r *http.Request, user *identity.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), actorKey{}, user))
}

type fixture struct {
	router   http.Handler
	invites  *authors.MemoryRepo
	addons   *addons.MemoryRepo
	accounts *identity.MemoryPartyRepo

	owner   *identity.User
	invitee *identity.User
	rando   *identity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		invites:  authors.NewMemoryRepo(),
		addons:   addons.NewMemoryRepo(),
		accounts: identity.NewMemoryPartyRepo(),
	}

	mkUser := func(username, displayName string) *identity.User {
		u := &identity.User{Username: username, Email: username + "@example.com", DisplayName: displayName}
		if err := f.accounts.Create(ctx, u); err != nil {
			t.Fatal(err)
		}
		return u
	}
	f.owner = mkUser("owner", "Owner")
	f.invitee = mkUser("invitee", "Invitee")
	f.rando = mkUser("rando", "Rando")

	if err := f.addons.CreateAddon(ctx, &addons.Addon{Slug: "my-addon", Name: "My Addon", CreatedBy: f.owner.ID}); err != nil {
		t.Fatal(err)
	}
	if err := f.addons.AddAuthor(ctx, &addons.Author{AddonSlug: "my-addon", UserID: f.owner.ID, Role: addons.RoleOwner, Listed: true}); err != nil {
		t.Fatal(err)
	}

	engine := authors.NewEngine(f.invites, f.addons, f.accounts, restrictions.New(nil), nil)
	currentUser := func(ctx context.Context) (*identity.User, error) {
		user, ok := ctx.Value(actorKey{}).(*identity.User)
		if !ok || user == nil {
			return nil, errNoActor
		}
		return user, nil
	}
	h := NewHandler(engine, currentUser, nil)

	r := chi.NewRouter()
	r.Route("/addon/{addon}/pending-authors", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Post("/confirm/", h.HandleConfirm)
		r.Post("/decline/", h.HandleDecline)
		r.Route("/{userId}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Patch("/", h.HandleEdit)
			r.Delete("/", h.HandleDelete)
		})
	})
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, actor *identity.User, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != nil {
		req = withActor(req, actor)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createInvite(t *testing.T, userID string) {
	t.Helper()
	rec := f.do(t, f.owner, http.MethodPost, "/addon/my-addon/pending-authors/", InviteCreateRequest{UserID: userID, Role: "developer", Position: 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create invite status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorEnvelope {
	t.Helper()
	var env api.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v (body %s)", err, rec.Body.String())
	}
	return env
}

func TestHandleCreate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, f.owner, http.MethodPost, "/addon/my-addon/pending-authors/", InviteCreateRequest{UserID: f.invitee.ID, Position: 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}

	var view InviteView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Addon != "my-addon" || view.UserID != f.invitee.ID {
		t.Errorf("view = %+v", view)
	}
	// Omitted role and listed take their defaults.
	if view.Role != "developer" || !view.Listed || view.Position != 1 {
		t.Errorf("view = %+v, want role=developer listed=true position=1", view)
	}
	if view.Created == "" {
		t.Error("expected created timestamp")
	}
}

func TestHandleCreateValidation(t *testing.T) {
	f := newFixture(t)
	f.createInvite(t, f.invitee.ID)

	noName := &identity.User{Username: "noname", Email: "noname@example.com"}
	if err := f.accounts.Create(context.Background(), noName); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		body        any
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "unknown account",
			body:        InviteCreateRequest{UserID: "ghost"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Account not found.",
		},
		{
			name:        "missing display name",
			body:        InviteCreateRequest{UserID: noName.ID},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "The account needs a display name before it can be added as an author.",
		},
		{
			name:        "duplicate invite",
			body:        InviteCreateRequest{UserID: f.invitee.ID},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "An author invitation for this account is already pending.",
		},
		{
			name:        "invalid role",
			body:        InviteCreateRequest{UserID: f.rando.ID, Role: "wizard"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Role must be one of: owner, developer.",
		},
		{
			name:        "missing user_id",
			body:        InviteCreateRequest{},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "user_id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, f.owner, http.MethodPost, "/addon/my-addon/pending-authors/", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			env := decodeError(t, rec)
			if env.Error.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", env.Error.Message, tt.wantMessage)
			}
		})
	}
}

func TestHandleCreateRestrictedEmail(t *testing.T) {
	f := newFixture(t)

	// Rebuild the router with a restriction list in place.
	engine := authors.NewEngine(f.invites, f.addons, f.accounts, restrictions.New([]string{"@example.com"}), nil)
	h := NewHandler(engine, func(ctx context.Context) (*identity.User, error) {
		user, ok := ctx.Value(actorKey{}).(*identity.User)
		if !ok {
			return nil, errNoActor
		}
		return user, nil
	}, nil)

	r := chi.NewRouter()
	r.Post("/addon/{addon}/pending-authors/", h.HandleCreate)

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(InviteCreateRequest{UserID: f.invitee.ID})
	req := withActor(httptest.NewRequest(http.MethodPost, "/addon/my-addon/pending-authors/", &buf), f.owner)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeError(t, rec)
	if env.Error.Message != "The email address used for your account is not allowed for add-on submission." {
		t.Errorf("message = %q", env.Error.Message)
	}
	if env.Error.ReasonCode != api.ReasonAccountIneligible {
		t.Errorf("reason_code = %q, want %q", env.Error.ReasonCode, api.ReasonAccountIneligible)
	}
}

func TestHandleCreateForbidden(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, f.rando, http.MethodPost, "/addon/my-addon/pending-authors/", InviteCreateRequest{UserID: f.invitee.ID})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}

	rec = f.do(t, nil, http.MethodPost, "/addon/my-addon/pending-authors/", InviteCreateRequest{UserID: f.invitee.ID})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}
}

func TestHandleList(t *testing.T) {
	f := newFixture(t)
	f.createInvite(t, f.invitee.ID)
	f.createInvite(t, f.rando.ID)

	rec := f.do(t, f.owner, http.MethodGet, "/addon/my-addon/pending-authors/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// The list is a bare JSON array, not an envelope.
	var views []InviteView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v (body %s)", err, rec.Body.String())
	}
	if len(views) != 2 || views[0].UserID != f.invitee.ID || views[1].UserID != f.rando.ID {
		t.Errorf("views = %+v, want invitation order", views)
	}

	rec = f.do(t, f.rando, http.MethodGet, "/addon/my-addon/pending-authors/", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-manager status = %d, want 403", rec.Code)
	}

	rec = f.do(t, f.owner, http.MethodGet, "/addon/nope/pending-authors/", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown addon status = %d, want 404", rec.Code)
	}
}

func TestHandleGet(t *testing.T) {
	f := newFixture(t)
	f.createInvite(t, f.invitee.ID)

	rec := f.do(t, f.owner, http.MethodGet, "/addon/my-addon/pending-authors/"+f.invitee.ID+"/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var view InviteView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.UserID != f.invitee.ID {
		t.Errorf("view = %+v", view)
	}

	rec = f.do(t, f.owner, http.MethodGet, "/addon/my-addon/pending-authors/ghost/", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown invite status = %d, want 404", rec.Code)
	}
}

func TestHandleEdit(t *testing.T) {
	f := newFixture(t)
	f.createInvite(t, f.invitee.ID)

	role := "owner"
	listed := false
	rec := f.do(t, f.owner, http.MethodPatch, "/addon/my-addon/pending-authors/"+f.invitee.ID+"/", InviteEditRequest{Role: &role, Listed: &listed})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var view InviteView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Role != "owner" || view.Listed {
		t.Errorf("view = %+v, want role=owner listed=false", view)
	}

	// The invitee cannot edit their own invite.
	rec = f.do(t, f.invitee, http.MethodPatch, "/addon/my-addon/pending-authors/"+f.invitee.ID+"/", InviteEditRequest{Listed: &listed})
	if rec.Code != http.StatusForbidden {
		t.Errorf("invitee edit status = %d, want 403", rec.Code)
	}
}

func TestHandleDelete(t *testing.T) {
	f := newFixture(t)
	f.createInvite(t, f.invitee.ID)

	rec := f.do(t, f.owner, http.MethodDelete, "/addon/my-addon/pending-authors/"+f.invitee.ID+"/", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	// The withdrawn invite is gone from the management surface.
	rec = f.do(t, f.owner, http.MethodGet, "/addon/my-addon/pending-authors/"+f.invitee.ID+"/", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}

	// A confirm after withdrawal is denied, not unknown.
	rec = f.do(t, f.invitee, http.MethodPost, "/addon/my-addon/pending-authors/confirm/", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("confirm after delete status = %d, want 403", rec.Code)
	}
}

func TestHandleConfirm(t *testing.T) {
	f := newFixture(t)
	f.createInvite(t, f.invitee.ID)

	rec := f.do(t, f.invitee, http.MethodPost, "/addon/my-addon/pending-authors/confirm/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "confirmed" || resp["addon"] != "my-addon" {
		t.Errorf("resp = %v", resp)
	}

	// The invitee is now an active author.
	author, err := f.addons.GetAuthor(context.Background(), "my-addon", f.invitee.ID)
	if err != nil {
		t.Fatalf("GetAuthor() error = %v", err)
	}
	if author.Role != "developer" || author.Position != 1 {
		t.Errorf("author = %+v", author)
	}

	// Confirming again is a 403: the transition is one-shot.
	rec = f.do(t, f.invitee, http.MethodPost, "/addon/my-addon/pending-authors/confirm/", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("re-confirm status = %d, want 403", rec.Code)
	}
}

func TestHandleDecline(t *testing.T) {
	f := newFixture(t)
	f.createInvite(t, f.invitee.ID)

	rec := f.do(t, f.invitee, http.MethodPost, "/addon/my-addon/pending-authors/decline/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	// Declining again, or confirming after declining, is denied.
	rec = f.do(t, f.invitee, http.MethodPost, "/addon/my-addon/pending-authors/decline/", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("re-decline status = %d, want 403", rec.Code)
	}
	rec = f.do(t, f.invitee, http.MethodPost, "/addon/my-addon/pending-authors/confirm/", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("confirm after decline status = %d, want 403", rec.Code)
	}
}

func TestHandleConfirmWithoutInvite(t *testing.T) {
	f := newFixture(t)

	// No invite at all: same generic denial as the terminal cases.
	rec := f.do(t, f.rando, http.MethodPost, "/addon/my-addon/pending-authors/confirm/", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	env := decodeError(t, rec)
	if env.Error.ReasonCode != api.ReasonUnauthorized {
		t.Errorf("reason_code = %q, want %q", env.Error.ReasonCode, api.ReasonUnauthorized)
	}
}

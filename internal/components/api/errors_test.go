package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusForbidden, ReasonUnauthorized, "nope")

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var env ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "Forbidden" {
		t.Errorf("code = %q, want Forbidden", env.Error.Code)
	}
	if env.Error.ReasonCode != ReasonUnauthorized {
		t.Errorf("reason_code = %q, want %q", env.Error.ReasonCode, ReasonUnauthorized)
	}
	if env.Error.Message != "nope" {
		t.Errorf("message = %q", env.Error.Message)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantReason string
	}{
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, ReasonUnauthenticated, "m") }, http.StatusUnauthorized, ReasonUnauthenticated},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, ReasonUnauthorized, "m") }, http.StatusForbidden, ReasonUnauthorized},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "m") }, http.StatusNotFound, ReasonNotFound},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, ReasonInvalidField, "m") }, http.StatusBadRequest, ReasonInvalidField},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "m") }, http.StatusConflict, ReasonConflict},
		{"too many requests", func(w http.ResponseWriter) { WriteTooManyRequests(w, "m") }, http.StatusTooManyRequests, ReasonRateLimited},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, "m") }, http.StatusInternalServerError, ReasonInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var env ErrorEnvelope
			if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
				t.Fatal(err)
			}
			if env.Error.ReasonCode != tt.wantReason {
				t.Errorf("reason_code = %q, want %q", env.Error.ReasonCode, tt.wantReason)
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := ExtractToken(r); got != "" {
		t.Errorf("ExtractToken() = %q, want empty", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if got := ExtractToken(r); got != "abc123" {
		t.Errorf("ExtractToken() = %q, want abc123", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "session", Value: "cookie-token"})
	if got := ExtractToken(r); got != "cookie-token" {
		t.Errorf("ExtractToken() = %q, want cookie-token", got)
	}

	// The Authorization header wins over the cookie.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	r.AddCookie(&http.Cookie{Name: "session", Value: "cookie-token"})
	if got := ExtractToken(r); got != "header-token" {
		t.Errorf("ExtractToken() = %q, want header-token", got)
	}
}

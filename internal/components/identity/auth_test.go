package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	auth := NewUserAuthFast()

	hash, err := auth.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash = %q, want PHC argon2id format", hash)
	}

	if err := auth.VerifyPassword(hash, "correct horse battery staple"); err != nil {
		t.Errorf("VerifyPassword() error = %v", err)
	}
	if err := auth.VerifyPassword(hash, "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("VerifyPassword() wrong password error = %v, want %v", err, ErrInvalidPassword)
	}
}

func TestHashPasswordUniqueSalt(t *testing.T) {
	auth := NewUserAuthFast()

	h1, err := auth.HashPassword("same")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := auth.HashPassword("same")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password must differ (random salt)")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	auth := NewUserAuthFast()

	tests := []string{
		"",
		"not-a-hash",
		"$bcrypt$v=19$m=16,t=1,p=2$abc$def",
		"$argon2id$v=19$m=16,t=1,p=2$!!!$def",
		"$argon2id$v=19$bogus$abc$def",
	}
	for _, hash := range tests {
		if err := auth.VerifyPassword(hash, "pw"); !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("VerifyPassword(%q) error = %v, want %v", hash, err, ErrInvalidPassword)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	auth := NewUserAuthFast()
	repo := NewMemoryPartyRepo()
	ctx := context.Background()

	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, &User{Username: "alice", PasswordHash: hash}); err != nil {
		t.Fatal(err)
	}

	user, err := auth.Authenticate(ctx, repo, "alice", "secret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("username = %q, want alice", user.Username)
	}

	if _, err := auth.Authenticate(ctx, repo, "alice", "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("Authenticate() wrong password error = %v, want %v", err, ErrInvalidPassword)
	}
	if _, err := auth.Authenticate(ctx, repo, "bob", "secret"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Authenticate() unknown user error = %v, want %v", err, ErrUserNotFound)
	}
}

package auth

import (
	"errors"
	"testing"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := CheckPassword(hash, "wrong horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestShortPasswordRejected(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Fatalf("expected error for short password")
	}
}

func TestRequireOwner(t *testing.T) {
	if err := RequireOwner("", "u1", "adventurer", "a1"); err != nil {
		t.Fatalf("local caller should pass: %v", err)
	}
	if err := RequireOwner("u1", "u1", "adventurer", "a1"); err != nil {
		t.Fatalf("owner should pass: %v", err)
	}
	var fe ForbiddenError
	if err := RequireOwner("u2", "u1", "adventurer", "a1"); !errors.As(err, &fe) || fe.ID != "a1" {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var ErrInvalidCredentials = errors.New("invalid credentials")

// ForbiddenError indicates the caller does not own the resource.
type ForbiddenError struct {
	Kind string
	ID   string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s %s is not owned by the caller", e.Kind, e.ID)
}

// RequireOwner returns ForbiddenError unless ownerID is the caller. An empty
// callerID means a trusted local caller (CLI) and always passes.
func RequireOwner(callerID, ownerID, kind, id string) error {
	if callerID == "" || callerID == ownerID {
		return nil
	}
	return ForbiddenError{Kind: kind, ID: id}
}

func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword returns ErrInvalidCredentials on mismatch.
func CheckPassword(hash, password string) error {
	if strings.TrimSpace(hash) == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

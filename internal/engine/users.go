package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"sidequest/internal/domain"
	"sidequest/internal/engine/auth"
	"sidequest/internal/events"
	"sidequest/internal/repo"
)

type RegisterOptions struct {
	Username string
	Email    string
	Password string
}

// RegisterUser creates an account. A taken username or email yields
// repo.ErrConflict.
func (e Engine) RegisterUser(ctx context.Context, opts RegisterOptions) (domain.User, error) {
	opts.Username = strings.TrimSpace(opts.Username)
	opts.Email = strings.ToLower(strings.TrimSpace(opts.Email))
	if err := required("username", opts.Username); err != nil {
		return domain.User{}, err
	}
	if err := required("email", opts.Email); err != nil {
		return domain.User{}, err
	}
	if !strings.Contains(opts.Email, "@") {
		return domain.User{}, invalid("email", "must be an email address")
	}
	if len(opts.Password) < auth.MinPasswordLength {
		return domain.User{}, invalid("password", fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength))
	}
	taken, err := e.Repo.UserExists(ctx, opts.Username, opts.Email)
	if err != nil {
		return domain.User{}, err
	}
	if taken {
		return domain.User{}, fmt.Errorf("username or email already registered: %w", repo.ErrConflict)
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.User{}, err
	}

	now := e.timestamp()
	u := domain.User{
		ID:           newID(),
		Username:     opts.Username,
		Email:        opts.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.appendEvent(ctx, tx, events.UserRegistered, u.ID, "user", u.ID, u.ID, events.EventPayload{"username": u.Username}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	e.log().Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords both return auth.ErrInvalidCredentials.
func (e Engine) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// CreateAPIKey issues a key for the user. The raw key is returned once; only
// its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (string, domain.APIKey, error) {
	if err := required("user_id", userID); err != nil {
		return "", domain.APIKey{}, err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("user %s: %w", userID, err)
	}
	raw := "sq_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, userID)
}

// RevokeAPIKey deletes one of the user's keys. Keys owned by someone else
// look missing.
func (e Engine) RevokeAPIKey(ctx context.Context, userID, id string) error {
	if err := required("id", id); err != nil {
		return err
	}
	if err := e.Repo.DeleteAPIKey(ctx, userID, id); err != nil {
		return err
	}
	e.log().Info("api key revoked", "user_id", userID, "key_id", id)
	return nil
}

// DeleteUser removes an account together with its adventurers, quests,
// completions and keys. Its events are kept under the "system" actor.
func (e Engine) DeleteUser(ctx context.Context, id string) error {
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteUser(ctx, tx, u.ID); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.UserDeleted, "", "user", u.ID, "", events.EventPayload{"username": u.Username}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Info("user deleted", "user_id", u.ID, "username", u.Username)
	return nil
}

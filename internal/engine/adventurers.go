package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sidequest/internal/domain"
	"sidequest/internal/engine/auth"
	"sidequest/internal/events"
	"sidequest/internal/level"
	"sidequest/internal/repo"
)

// AdventurerCreateOptions are parameters for creating an adventurer. Nil
// Level and Experience default to 1 and 0.
type AdventurerCreateOptions struct {
	OwnerUserID string
	Name        string
	Type        string
	Level       *int
	Experience  *int
	ActorID     string
}

func (e Engine) CreateAdventurer(ctx context.Context, opts AdventurerCreateOptions) (domain.Adventurer, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	opts.Type = strings.TrimSpace(opts.Type)
	if err := required("name", opts.Name); err != nil {
		return domain.Adventurer{}, err
	}
	if err := required("adventurer_type", opts.Type); err != nil {
		return domain.Adventurer{}, err
	}
	if err := required("owner_user_id", opts.OwnerUserID); err != nil {
		return domain.Adventurer{}, err
	}
	lvl, exp := 1, 0
	if opts.Level != nil {
		lvl = *opts.Level
	}
	if opts.Experience != nil {
		exp = *opts.Experience
	}
	if lvl < 1 {
		return domain.Adventurer{}, invalid("level", "must be at least 1")
	}
	if exp < 0 {
		return domain.Adventurer{}, invalid("experience", "cannot be negative")
	}
	threshold, err := level.Threshold(lvl)
	if err != nil {
		return domain.Adventurer{}, err
	}
	if exp >= threshold {
		return domain.Adventurer{}, invalid("experience", fmt.Sprintf("must be below %d for level %d", threshold, lvl))
	}
	if _, err := e.Repo.GetUser(ctx, opts.OwnerUserID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Adventurer{}, invalid("owner_user_id", "unknown user")
		}
		return domain.Adventurer{}, err
	}
	if err := auth.RequireOwner(opts.ActorID, opts.OwnerUserID, "user", opts.OwnerUserID); err != nil {
		return domain.Adventurer{}, err
	}

	now := e.timestamp()
	a := domain.Adventurer{
		ID:          newID(),
		OwnerUserID: opts.OwnerUserID,
		Name:        opts.Name,
		Type:        opts.Type,
		Level:       lvl,
		Experience:  exp,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Adventurer{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAdventurer(ctx, tx, a); err != nil {
		return domain.Adventurer{}, err
	}
	if err := e.appendEvent(ctx, tx, events.AdventurerCreated, a.OwnerUserID, "adventurer", a.ID, opts.ActorID, events.EventPayload{
		"name": a.Name, "adventurer_type": a.Type, "level": a.Level, "experience": a.Experience,
	}); err != nil {
		return domain.Adventurer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Adventurer{}, err
	}
	return a, nil
}

// GetAdventurer loads an adventurer the caller owns.
func (e Engine) GetAdventurer(ctx context.Context, id, actorID string) (domain.Adventurer, error) {
	a, err := e.Repo.GetAdventurer(ctx, id)
	if err != nil {
		return a, fmt.Errorf("adventurer %s: %w", id, err)
	}
	if err := auth.RequireOwner(actorID, a.OwnerUserID, "adventurer", a.ID); err != nil {
		return domain.Adventurer{}, err
	}
	return a, nil
}

func (e Engine) ListAdventurers(ctx context.Context, ownerUserID string) ([]domain.Adventurer, error) {
	return e.Repo.ListAdventurers(ctx, ownerUserID)
}

// AdventurerUpdate edits profile fields only; level and experience are not
// part of the command.
type AdventurerUpdate struct {
	ID      string
	Name    *string
	Type    *string
	ActorID string
}

func (e Engine) UpdateAdventurer(ctx context.Context, upd AdventurerUpdate) (domain.Adventurer, error) {
	a, err := e.GetAdventurer(ctx, upd.ID, upd.ActorID)
	if err != nil {
		return a, err
	}
	payload := events.EventPayload{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := required("name", name); err != nil {
			return a, err
		}
		upd.Name = &name
		payload["name"] = name
	}
	if upd.Type != nil {
		typ := strings.TrimSpace(*upd.Type)
		if err := required("adventurer_type", typ); err != nil {
			return a, err
		}
		upd.Type = &typ
		payload["adventurer_type"] = typ
	}
	if len(payload) == 0 {
		return a, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateAdventurerProfile(ctx, tx, a.ID, upd.Name, upd.Type, e.timestamp()); err != nil {
		return a, err
	}
	if err := e.appendEvent(ctx, tx, events.AdventurerUpdated, a.OwnerUserID, "adventurer", a.ID, upd.ActorID, payload); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return e.Repo.GetAdventurer(ctx, a.ID)
}

// DeleteAdventurer removes the adventurer with its quests and ledger rows.
// It reports false when the adventurer does not exist.
func (e Engine) DeleteAdventurer(ctx context.Context, id, actorID string) (bool, error) {
	a, err := e.GetAdventurer(ctx, id, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteAdventurer(ctx, tx, a.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := e.appendEvent(ctx, tx, events.AdventurerDeleted, a.OwnerUserID, "adventurer", a.ID, actorID, events.EventPayload{"name": a.Name}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// AdventurerDetails adds derived progress and ledger information.
type AdventurerDetails struct {
	domain.Adventurer
	level.Progress
	CompletedQuestsCount int                   `json:"completed_quests_count"`
	CompletedQuests      []repo.CompletedQuest `json:"completed_quests"`
}

func (e Engine) Describe(ctx context.Context, a domain.Adventurer) (AdventurerDetails, error) {
	progress, err := level.ProgressOf(a.Level, a.Experience)
	if err != nil {
		return AdventurerDetails{}, err
	}
	completed, err := e.Repo.ListCompletedQuests(ctx, a.ID)
	if err != nil {
		return AdventurerDetails{}, err
	}
	if completed == nil {
		completed = []repo.CompletedQuest{}
	}
	return AdventurerDetails{
		Adventurer:           a,
		Progress:             progress,
		CompletedQuestsCount: len(completed),
		CompletedQuests:      completed,
	}, nil
}

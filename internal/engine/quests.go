package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sidequest/internal/domain"
	"sidequest/internal/events"
	"sidequest/internal/repo"
)

type QuestCreateOptions struct {
	AdventurerID string
	Title        string
	// Reward falls back to game.default_reward when nil.
	Reward  *int
	ActorID string
}

func (e Engine) CreateQuest(ctx context.Context, opts QuestCreateOptions) (domain.Quest, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if err := required("title", opts.Title); err != nil {
		return domain.Quest{}, err
	}
	if err := required("adventurer_id", opts.AdventurerID); err != nil {
		return domain.Quest{}, err
	}
	reward := e.defaultReward()
	if opts.Reward != nil {
		reward = *opts.Reward
	}
	if err := checkReward(reward); err != nil {
		return domain.Quest{}, err
	}
	adv, err := e.assignee(ctx, opts.AdventurerID, opts.ActorID)
	if err != nil {
		return domain.Quest{}, err
	}

	now := e.timestamp()
	q := domain.Quest{
		ID:               newID(),
		AdventurerID:     adv.ID,
		Title:            opts.Title,
		ExperienceReward: reward,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Quest{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertQuest(ctx, tx, q); err != nil {
		return domain.Quest{}, err
	}
	if err := e.appendEvent(ctx, tx, events.QuestCreated, adv.OwnerUserID, "quest", q.ID, opts.ActorID, events.EventPayload{
		"adventurer_id": adv.ID, "title": q.Title, "experience_reward": q.ExperienceReward,
	}); err != nil {
		return domain.Quest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Quest{}, err
	}
	return q, nil
}

// assignee resolves an adventurer a quest is being attached to. An unknown id
// is a validation failure rather than a missing resource.
func (e Engine) assignee(ctx context.Context, adventurerID, actorID string) (domain.Adventurer, error) {
	adv, err := e.GetAdventurer(ctx, adventurerID, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return adv, invalid("adventurer_id", "unknown adventurer")
	}
	return adv, err
}

// GetQuest loads a quest whose adventurer the caller owns.
func (e Engine) GetQuest(ctx context.Context, id, actorID string) (domain.Quest, domain.Adventurer, error) {
	q, err := e.Repo.GetQuest(ctx, id)
	if err != nil {
		return q, domain.Adventurer{}, fmt.Errorf("quest %s: %w", id, err)
	}
	adv, err := e.GetAdventurer(ctx, q.AdventurerID, actorID)
	if err != nil {
		return domain.Quest{}, domain.Adventurer{}, err
	}
	return q, adv, nil
}

// ListQuests applies the filters. A non-empty actorID limits results to
// quests of adventurers that caller owns.
func (e Engine) ListQuests(ctx context.Context, f repo.QuestFilters, actorID string) ([]domain.Quest, error) {
	if f.AdventurerID != "" {
		if _, err := e.GetAdventurer(ctx, f.AdventurerID, actorID); err != nil {
			return nil, err
		}
	}
	if actorID != "" {
		f.OwnerUserID = actorID
	}
	return e.Repo.ListQuests(ctx, f)
}

// QuestUpdate is a partial edit. Completed routes through CompleteQuest or
// RevertCompletion so the ledger stays authoritative.
type QuestUpdate struct {
	ID           string
	Title        *string
	Reward       *int
	AdventurerID *string
	Completed    *bool
	ActorID      string
}

func (e Engine) UpdateQuest(ctx context.Context, upd QuestUpdate) (domain.Quest, error) {
	q, adv, err := e.GetQuest(ctx, upd.ID, upd.ActorID)
	if err != nil {
		return q, err
	}
	payload := events.EventPayload{}
	if t := trimmed(upd.Title); t != nil {
		if err := required("title", *t); err != nil {
			return q, err
		}
		q.Title = *t
		payload["title"] = *t
	}
	if upd.Reward != nil {
		if err := checkReward(*upd.Reward); err != nil {
			return q, err
		}
		q.ExperienceReward = *upd.Reward
		payload["experience_reward"] = *upd.Reward
	}
	reassigned := false
	if id := trimmed(upd.AdventurerID); id != nil && *id != q.AdventurerID {
		target, err := e.assignee(ctx, *id, upd.ActorID)
		if err != nil {
			return q, err
		}
		adv = target
		q.AdventurerID = target.ID
		payload["adventurer_id"] = target.ID
		reassigned = true
	}

	if len(payload) > 0 {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return q, err
		}
		defer tx.Rollback()

		if reassigned {
			// the flag follows the new assignee's ledger
			done, err := e.Repo.HasCompletion(ctx, tx, q.AdventurerID, q.ID)
			if err != nil {
				return q, err
			}
			q.Completed = done
		}
		q.UpdatedAt = e.timestamp()
		if err := e.Repo.UpdateQuest(ctx, tx, q); err != nil {
			return q, err
		}
		if err := e.appendEvent(ctx, tx, events.QuestUpdated, adv.OwnerUserID, "quest", q.ID, upd.ActorID, payload); err != nil {
			return q, err
		}
		if err := tx.Commit(); err != nil {
			return q, err
		}
	}

	if upd.Completed != nil {
		if *upd.Completed {
			if _, err := e.CompleteQuest(ctx, CompleteQuestOptions{
				AdventurerID: q.AdventurerID,
				QuestID:      q.ID,
				ActorID:      upd.ActorID,
			}); err != nil {
				return q, err
			}
		} else {
			if _, err := e.RevertCompletion(ctx, RevertOptions{
				AdventurerID: q.AdventurerID,
				QuestID:      q.ID,
				ActorID:      upd.ActorID,
			}); err != nil {
				return q, err
			}
		}
	}
	return e.Repo.GetQuest(ctx, q.ID)
}

// DeleteQuest removes a quest and its ledger rows. It reports false when the
// quest does not exist.
func (e Engine) DeleteQuest(ctx context.Context, id, actorID string) (bool, error) {
	q, adv, err := e.GetQuest(ctx, id, actorID)
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

	if err := e.Repo.DeleteQuest(ctx, tx, q.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := e.appendEvent(ctx, tx, events.QuestDeleted, adv.OwnerUserID, "quest", q.ID, actorID, events.EventPayload{"title": q.Title}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

package engine

import (
	"context"
	"errors"
	"fmt"

	"sidequest/internal/domain"
	"sidequest/internal/events"
	"sidequest/internal/level"
	"sidequest/internal/notify"
	"sidequest/internal/repo"
)

// CompletionResult is the outcome of CompleteQuest. A replay of an already
// recorded completion is a success with WasNewCompletion false.
type CompletionResult struct {
	WasNewCompletion bool              `json:"was_new_completion"`
	LeveledUp        bool              `json:"leveled_up"`
	OldLevel         int               `json:"old_level"`
	Adventurer       domain.Adventurer `json:"adventurer"`
}

type CompleteQuestOptions struct {
	AdventurerID string
	QuestID      string
	// ExperienceReward overrides the quest's stored reward when set.
	ExperienceReward *int
	ActorID          string
}

// CompleteQuest records the completion of a quest by an adventurer at most
// once. A first-time completion inserts the ledger row, applies the reward,
// evaluates level-up and flips the quest flag in one transaction; the level-up
// notification is emitted after commit.
func (e Engine) CompleteQuest(ctx context.Context, opts CompleteQuestOptions) (CompletionResult, error) {
	if err := required("adventurer_id", opts.AdventurerID); err != nil {
		return CompletionResult{}, err
	}
	if err := required("quest_id", opts.QuestID); err != nil {
		return CompletionResult{}, err
	}
	if opts.ExperienceReward != nil {
		if err := checkReward(*opts.ExperienceReward); err != nil {
			return CompletionResult{}, err
		}
	}
	adv, err := e.GetAdventurer(ctx, opts.AdventurerID, opts.ActorID)
	if err != nil {
		return CompletionResult{}, err
	}
	q, err := e.Repo.GetQuest(ctx, opts.QuestID)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("quest %s: %w", opts.QuestID, err)
	}
	if q.AdventurerID != adv.ID {
		return CompletionResult{}, invalid("quest_id", "quest is not assigned to this adventurer")
	}

	done, err := e.Repo.HasCompletion(ctx, nil, adv.ID, q.ID)
	if err != nil {
		return CompletionResult{}, err
	}
	if done {
		e.log().Debug("quest already completed", "adventurer_id", adv.ID, "quest_id", q.ID)
		return CompletionResult{OldLevel: adv.Level, Adventurer: adv}, nil
	}

	reward := q.ExperienceReward
	if opts.ExperienceReward != nil {
		reward = *opts.ExperienceReward
	}
	res, err := e.recordCompletion(ctx, adv.ID, q.ID, reward, opts.ActorID)
	if errors.Is(err, repo.ErrConflict) {
		// lost the race to a concurrent completion
		current, err := e.Repo.GetAdventurer(ctx, adv.ID)
		if err != nil {
			return CompletionResult{}, err
		}
		return CompletionResult{OldLevel: current.Level, Adventurer: current}, nil
	}
	if err != nil {
		return CompletionResult{}, err
	}
	if res.LeveledUp {
		e.log().Info("adventurer leveled up", "adventurer_id", adv.ID, "old_level", res.OldLevel, "new_level", res.Adventurer.Level)
		e.emit(notify.LevelUp{
			AdventurerID: res.Adventurer.ID,
			OldLevel:     res.OldLevel,
			NewLevel:     res.Adventurer.Level,
			At:           e.now().UTC(),
		})
	}
	return res, nil
}

func (e Engine) recordCompletion(ctx context.Context, adventurerID, questID string, reward int, actorID string) (CompletionResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()

	adv, err := e.Repo.GetAdventurerTx(ctx, tx, adventurerID)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("adventurer %s: %w", adventurerID, err)
	}
	now := e.timestamp()
	// the ledger insert goes first so a duplicate aborts before any mutation
	if err := e.Repo.InsertCompletion(ctx, tx, domain.QuestCompletion{
		ID:                newID(),
		AdventurerID:      adventurerID,
		QuestID:           questID,
		ExperienceAwarded: reward,
		CreatedAt:         now,
		UpdatedAt:         now,
	}); err != nil {
		return CompletionResult{}, err
	}
	out, err := level.Apply(adv.Level, adv.Experience, reward)
	if err != nil {
		return CompletionResult{}, err
	}
	oldLevel := adv.Level
	if err := e.Repo.SetProgress(ctx, tx, adv.ID, out.Level, out.Experience, now); err != nil {
		return CompletionResult{}, err
	}
	if err := e.Repo.SetQuestCompleted(ctx, tx, questID, true, now); err != nil {
		return CompletionResult{}, err
	}
	if err := e.appendEvent(ctx, tx, events.QuestCompleted, adv.OwnerUserID, "quest", questID, actorID, events.EventPayload{
		"adventurer_id":      adv.ID,
		"experience_awarded": reward,
		"level":              out.Level,
		"experience":         out.Experience,
	}); err != nil {
		return CompletionResult{}, err
	}
	if out.LeveledUp {
		if err := e.appendEvent(ctx, tx, events.AdventurerLeveledUp, adv.OwnerUserID, "adventurer", adv.ID, actorID, events.EventPayload{
			"old_level": oldLevel,
			"new_level": out.Level,
			"quest_id":  questID,
		}); err != nil {
			return CompletionResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return CompletionResult{}, err
	}
	adv.Level = out.Level
	adv.Experience = out.Experience
	adv.UpdatedAt = now
	return CompletionResult{
		WasNewCompletion: true,
		LeveledUp:        out.LeveledUp,
		OldLevel:         oldLevel,
		Adventurer:       adv,
	}, nil
}

type RevertOptions struct {
	AdventurerID string
	QuestID      string
	ActorID      string
}

// RevertCompletion deletes the ledger row for the pair and clears the quest's
// completed flag. Experience and level already awarded are kept. It reports
// whether a ledger row was removed.
func (e Engine) RevertCompletion(ctx context.Context, opts RevertOptions) (bool, error) {
	if err := required("adventurer_id", opts.AdventurerID); err != nil {
		return false, err
	}
	if err := required("quest_id", opts.QuestID); err != nil {
		return false, err
	}
	adv, err := e.GetAdventurer(ctx, opts.AdventurerID, opts.ActorID)
	if err != nil {
		return false, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	removed, err := e.Repo.DeleteCompletion(ctx, tx, adv.ID, opts.QuestID)
	if err != nil {
		return false, err
	}
	q, err := e.Repo.GetQuestTx(ctx, tx, opts.QuestID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
	case err != nil:
		return false, err
	case q.AdventurerID == adv.ID && q.Completed:
		if err := e.Repo.SetQuestCompleted(ctx, tx, q.ID, false, e.timestamp()); err != nil {
			return false, err
		}
	}
	if removed {
		if err := e.appendEvent(ctx, tx, events.QuestReverted, adv.OwnerUserID, "quest", opts.QuestID, opts.ActorID, events.EventPayload{
			"adventurer_id": adv.ID,
		}); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return removed, nil
}

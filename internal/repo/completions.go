package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sidequest/internal/domain"
)

const completionColumns = `id,adventurer_id,quest_id,experience_awarded,created_at,updated_at`

// GetCompletion returns the ledger row for (adventurerID, questID).
func (r Repo) GetCompletion(ctx context.Context, tx *sql.Tx, adventurerID, questID string) (domain.QuestCompletion, error) {
	var c domain.QuestCompletion
	err := r.conn(tx).QueryRowContext(ctx, `SELECT `+completionColumns+` FROM quest_completions WHERE adventurer_id=? AND quest_id=?`, adventurerID, questID).
		Scan(&c.ID, &c.AdventurerID, &c.QuestID, &c.ExperienceAwarded, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) HasCompletion(ctx context.Context, tx *sql.Tx, adventurerID, questID string) (bool, error) {
	_, err := r.GetCompletion(ctx, tx, adventurerID, questID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// InsertCompletion appends a ledger row. A second row for the same pair fails
// with ErrConflict.
func (r Repo) InsertCompletion(ctx context.Context, tx *sql.Tx, c domain.QuestCompletion) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO quest_completions(`+completionColumns+`) VALUES (?,?,?,?,?,?)`,
		c.ID, c.AdventurerID, c.QuestID, c.ExperienceAwarded, c.CreatedAt, c.UpdatedAt)
	return conflictOr(err, fmt.Sprintf("quest %s already completed by %s", c.QuestID, c.AdventurerID))
}

// DeleteCompletion removes the ledger row and reports whether one existed.
func (r Repo) DeleteCompletion(ctx context.Context, tx *sql.Tx, adventurerID, questID string) (bool, error) {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM quest_completions WHERE adventurer_id=? AND quest_id=?`, adventurerID, questID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CompletedQuest is a quest together with its completion timestamp.
type CompletedQuest struct {
	QuestID           string `json:"quest_id"`
	Title             string `json:"title"`
	ExperienceAwarded int    `json:"experience_awarded"`
	CompletedAt       string `json:"completed_at" format:"date-time"`
}

// ListCompletedQuests returns the ledger for an adventurer, oldest first.
func (r Repo) ListCompletedQuests(ctx context.Context, adventurerID string) ([]CompletedQuest, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT c.quest_id, q.title, c.experience_awarded, c.created_at
FROM quest_completions c
JOIN quests q ON q.id=c.quest_id
WHERE c.adventurer_id=?
ORDER BY c.created_at, c.id`, adventurerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CompletedQuest
	for rows.Next() {
		var cq CompletedQuest
		if err := rows.Scan(&cq.QuestID, &cq.Title, &cq.ExperienceAwarded, &cq.CompletedAt); err != nil {
			return nil, err
		}
		res = append(res, cq)
	}
	return res, rows.Err()
}

func (r Repo) CountCompletions(ctx context.Context, adventurerID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM quest_completions WHERE adventurer_id=?`, adventurerID).Scan(&n)
	return n, err
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"sidequest/internal/domain"
)

const questColumns = `q.id,q.adventurer_id,q.title,q.experience_reward,q.completed,q.created_at,q.updated_at`

func scanQuest(row interface{ Scan(...any) error }) (domain.Quest, error) {
	var q domain.Quest
	var completed int
	err := row.Scan(&q.ID, &q.AdventurerID, &q.Title, &q.ExperienceReward, &completed, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return q, ErrNotFound
	}
	q.Completed = completed != 0
	return q, err
}

func (r Repo) InsertQuest(ctx context.Context, tx *sql.Tx, q domain.Quest) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO quests(id,adventurer_id,title,experience_reward,completed,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		q.ID, q.AdventurerID, q.Title, q.ExperienceReward, boolInt(q.Completed), q.CreatedAt, q.UpdatedAt)
	return err
}

func (r Repo) GetQuest(ctx context.Context, id string) (domain.Quest, error) {
	return r.GetQuestTx(ctx, nil, id)
}

func (r Repo) GetQuestTx(ctx context.Context, tx *sql.Tx, id string) (domain.Quest, error) {
	return scanQuest(r.conn(tx).QueryRowContext(ctx, `SELECT `+questColumns+` FROM quests q WHERE q.id=?`, id))
}

type QuestFilters struct {
	AdventurerID string
	OwnerUserID  string
	Completed    *bool
}

func (r Repo) ListQuests(ctx context.Context, f QuestFilters) ([]domain.Quest, error) {
	var clauses []string
	var args []any
	from := `quests q`
	if f.OwnerUserID != "" {
		from += ` JOIN adventurers a ON a.id=q.adventurer_id`
		clauses = append(clauses, "a.owner_user_id=?")
		args = append(args, f.OwnerUserID)
	}
	if f.AdventurerID != "" {
		clauses = append(clauses, "q.adventurer_id=?")
		args = append(args, f.AdventurerID)
	}
	if f.Completed != nil {
		clauses = append(clauses, "q.completed=?")
		args = append(args, boolInt(*f.Completed))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+questColumns+` FROM `+from+where+` ORDER BY q.created_at, q.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

// UpdateQuest writes title, reward, assignment and completed flag.
func (r Repo) UpdateQuest(ctx context.Context, tx *sql.Tx, q domain.Quest) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE quests SET title=?, experience_reward=?, adventurer_id=?, completed=?, updated_at=? WHERE id=?`,
		q.Title, q.ExperienceReward, q.AdventurerID, boolInt(q.Completed), q.UpdatedAt, q.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetQuestCompleted(ctx context.Context, tx *sql.Tx, id string, completed bool, updatedAt string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE quests SET completed=?, updated_at=? WHERE id=?`, boolInt(completed), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteQuest(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM quests WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

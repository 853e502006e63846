package repo

import (
	"context"
	"errors"

	"sidequest/internal/domain"
)

// Recaps groups ledger rows created in [start, end) per user and adventurer.
// Users without completions in the window are omitted. A non-empty userID
// restricts the result to that user.
func (r Repo) Recaps(ctx context.Context, start, end, userID string) ([]domain.Recap, error) {
	query := `
SELECT u.id, u.username, u.email, a.id, a.name, a.level, q.title, c.experience_awarded
FROM quest_completions c
JOIN adventurers a ON a.id=c.adventurer_id
JOIN users u ON u.id=a.owner_user_id
JOIN quests q ON q.id=c.quest_id
WHERE c.created_at >= ? AND c.created_at < ?`
	args := []any{start, end}
	if userID != "" {
		query += ` AND u.id=?`
		args = append(args, userID)
	}
	query += ` ORDER BY u.id, a.id, c.created_at, c.id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Recap
	for rows.Next() {
		var (
			userID, username, email string
			advID, advName, title   string
			lvl, xp                 int
		)
		if err := rows.Scan(&userID, &username, &email, &advID, &advName, &lvl, &title, &xp); err != nil {
			return nil, err
		}
		if len(res) == 0 || res[len(res)-1].UserID != userID {
			res = append(res, domain.Recap{
				UserID:      userID,
				Username:    username,
				Email:       email,
				PeriodStart: start,
				PeriodEnd:   end,
			})
		}
		recap := &res[len(res)-1]
		if n := len(recap.Adventurers); n == 0 || recap.Adventurers[n-1].AdventurerID != advID {
			recap.Adventurers = append(recap.Adventurers, domain.RecapEntry{
				AdventurerID:   advID,
				AdventurerName: advName,
				Level:          lvl,
			})
		}
		entry := &recap.Adventurers[len(recap.Adventurers)-1]
		entry.QuestTitles = append(entry.QuestTitles, title)
		entry.QuestCount++
		entry.ExperienceGain += xp
		recap.TotalQuests++
		recap.TotalXP += xp
	}
	return res, rows.Err()
}

// UserRecap returns one user's recap for the window, or ErrNotFound when the
// user completed nothing in it.
func (r Repo) UserRecap(ctx context.Context, userID, start, end string) (domain.Recap, error) {
	if userID == "" {
		return domain.Recap{}, errors.New("user_id required")
	}
	recaps, err := r.Recaps(ctx, start, end, userID)
	if err != nil {
		return domain.Recap{}, err
	}
	if len(recaps) == 0 {
		return domain.Recap{}, ErrNotFound
	}
	return recaps[0], nil
}

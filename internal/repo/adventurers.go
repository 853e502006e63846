package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sidequest/internal/domain"
)

const adventurerColumns = `id,owner_user_id,name,adventurer_type,level,experience,created_at,updated_at`

func scanAdventurer(row interface{ Scan(...any) error }) (domain.Adventurer, error) {
	var a domain.Adventurer
	err := row.Scan(&a.ID, &a.OwnerUserID, &a.Name, &a.Type, &a.Level, &a.Experience, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertAdventurer(ctx context.Context, tx *sql.Tx, a domain.Adventurer) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO adventurers(`+adventurerColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.OwnerUserID, a.Name, a.Type, a.Level, a.Experience, a.CreatedAt, a.UpdatedAt)
	return conflictOr(err, fmt.Sprintf("adventurer named %q already exists", a.Name))
}

func (r Repo) GetAdventurer(ctx context.Context, id string) (domain.Adventurer, error) {
	return r.GetAdventurerTx(ctx, nil, id)
}

func (r Repo) GetAdventurerTx(ctx context.Context, tx *sql.Tx, id string) (domain.Adventurer, error) {
	return scanAdventurer(r.conn(tx).QueryRowContext(ctx, `SELECT `+adventurerColumns+` FROM adventurers WHERE id=?`, id))
}

// ListAdventurers returns adventurers, optionally filtered by owner.
func (r Repo) ListAdventurers(ctx context.Context, ownerUserID string) ([]domain.Adventurer, error) {
	query := `SELECT ` + adventurerColumns + ` FROM adventurers`
	var args []any
	if ownerUserID != "" {
		query += ` WHERE owner_user_id=?`
		args = append(args, ownerUserID)
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Adventurer
	for rows.Next() {
		a, err := scanAdventurer(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpdateAdventurerProfile changes only the provided name/type fields.
func (r Repo) UpdateAdventurerProfile(ctx context.Context, tx *sql.Tx, id string, name, advType *string, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if advType != nil {
		fields = append(fields, "adventurer_type=?")
		args = append(args, *advType)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.conn(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE adventurers SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return conflictOr(err, "adventurer name already in use")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProgress writes level and experience. Only the progression path calls it.
func (r Repo) SetProgress(ctx context.Context, tx *sql.Tx, id string, level, experience int, updatedAt string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE adventurers SET level=?, experience=?, updated_at=? WHERE id=?`, level, experience, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteAdventurer(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM adventurers WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/estate-ledger/internal/model"
)

const updateColumns = "id,property_id,title,content,created_at,updated_at"

// UpdateRepo stores news items in the `updates` table.
type UpdateRepo struct{ db *sql.DB }

func NewUpdateRepo(db *sql.DB) *UpdateRepo { return &UpdateRepo{db: db} }

func scanUpdate(row interface{ Scan(...any) error }) (model.Update, error) {
	var (
		u   model.Update
		pid sql.NullInt64
	)
	if err := row.Scan(&u.ID, &pid, &u.Title, &u.Content, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.Update{}, err
	}
	if pid.Valid {
		id := uint64(pid.Int64)
		u.PropertyID = &id
	}
	return u, nil
}

// Create inserts u and fills in ID and timestamps.
func (r *UpdateRepo) Create(ctx context.Context, u *model.Update) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO updates (property_id, title, content) VALUES (?,?,?)",
		u.PropertyID, u.Title, u.Content)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classify(err)
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*u = created
	return nil
}

// GetByID fetches a news item by id.
func (r *UpdateRepo) GetByID(ctx context.Context, id uint64) (model.Update, error) {
	u, err := scanUpdate(r.db.QueryRowContext(ctx, "SELECT "+updateColumns+" FROM updates WHERE id=?", id))
	return u, classify(err)
}

// Save writes title, content and property of an existing item.
func (r *UpdateRepo) Save(ctx context.Context, u *model.Update) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := scanUpdate(tx.QueryRowContext(ctx,
			"SELECT "+updateColumns+" FROM updates WHERE id=? FOR UPDATE", u.ID)); err != nil {
			return notFound("update", u.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE updates SET property_id=?, title=?, content=? WHERE id=?",
			u.PropertyID, u.Title, u.Content, u.ID); err != nil {
			return err
		}
		saved, err := scanUpdate(tx.QueryRowContext(ctx, "SELECT "+updateColumns+" FROM updates WHERE id=?", u.ID))
		if err != nil {
			return err
		}
		*u = saved
		return nil
	})
	return err
}

// Delete removes a news item.
func (r *UpdateRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM updates WHERE id=?", id)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return notFound("update", id, sql.ErrNoRows)
	}
	return nil
}

// List returns one page of news items, newest first, and the total count.
func (r *UpdateRepo) List(ctx context.Context, f model.UpdateFilter) ([]model.Update, int, error) {
	where := ""
	args := []any{}
	switch {
	case len(f.PropertyIDs) > 0 && f.IncludeGeneral:
		where = " WHERE (property_id IN (" + placeholders(len(f.PropertyIDs)) + ") OR property_id IS NULL)"
	case len(f.PropertyIDs) > 0:
		where = " WHERE property_id IN (" + placeholders(len(f.PropertyIDs)) + ")"
	case f.IncludeGeneral:
		where = " WHERE property_id IS NULL"
	}
	for _, id := range f.PropertyIDs {
		args = append(args, id)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM updates"+where, args...).Scan(&total); err != nil {
		return nil, 0, classify(err)
	}
	page := f.Page.Normalize()
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+updateColumns+" FROM updates"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer rows.Close()
	out := []model.Update{}
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, 0, classify(err)
		}
		out = append(out, u)
	}
	return out, total, classify(rows.Err())
}

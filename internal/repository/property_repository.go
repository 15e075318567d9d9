package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
)

const propertyColumns = "id,title,location,description,status,image_urls,record_state,created_at,updated_at"

// PropertyRepo provides CRUD operations for the `properties` table. Status
// changes go through Mutate so that the decision and the write happen
// under one row lock.
type PropertyRepo struct{ db *sql.DB }

// NewPropertyRepo returns a new PropertyRepo bound to the given database.
func NewPropertyRepo(db *sql.DB) *PropertyRepo { return &PropertyRepo{db: db} }

func scanProperty(row interface{ Scan(...any) error }) (model.Property, error) {
	var (
		p      model.Property
		desc   sql.NullString
		images []byte
		status string
		state  string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Location, &desc, &status, &images, &state, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Property{}, err
	}
	p.Description = desc.String
	p.Status = model.PropertyStatus(status)
	p.RecordState = model.RecordState(state)
	p.ImageURLs = []string{}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.ImageURLs); err != nil {
			return model.Property{}, fmt.Errorf("decode image_urls for property %d: %w", p.ID, err)
		}
	}
	return p, nil
}

func encodeImages(urls []string) ([]byte, error) {
	if urls == nil {
		urls = []string{}
	}
	return json.Marshal(urls)
}

func getProperty(ctx context.Context, q queryer, id uint64, lock bool) (model.Property, error) {
	query := "SELECT " + propertyColumns + " FROM properties WHERE id=?"
	if lock {
		query += " FOR UPDATE"
	}
	return scanProperty(q.QueryRowContext(ctx, query, id))
}

// Create inserts p and fills in ID, defaults and timestamps.
func (r *PropertyRepo) Create(ctx context.Context, p *model.Property) error {
	images, err := encodeImages(p.ImageURLs)
	if err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = model.StatusAvailable
	}
	if p.RecordState == "" {
		p.RecordState = model.RecordActive
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO properties (title, location, description, status, image_urls, record_state) VALUES (?,?,?,?,?,?)",
		p.Title, p.Location, p.Description, string(p.Status), images, string(p.RecordState))
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
	*p = created
	return nil
}

// GetByID fetches a property by id.
func (r *PropertyRepo) GetByID(ctx context.Context, id uint64) (model.Property, error) {
	p, err := getProperty(ctx, r.db, id, false)
	return p, classify(err)
}

// List returns one page of properties, newest first, and the total count.
func (r *PropertyRepo) List(ctx context.Context, f model.PropertyFilter) ([]model.Property, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if f.Status != nil {
		where += " AND status=?"
		args = append(args, string(*f.Status))
	}
	if !f.IncludeArchived {
		where += " AND record_state='ACTIVE'"
	}
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties"+where, args...).Scan(&total); err != nil {
		return nil, 0, classify(err)
	}
	page := f.Page.Normalize()
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+propertyColumns+" FROM properties"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer rows.Close()
	out := []model.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, 0, classify(err)
		}
		out = append(out, p)
	}
	return out, total, classify(rows.Err())
}

// Mutate locks the property row, lets fn modify a copy and writes every
// mutable column back. Errors from fn abort the transaction unchanged.
func (r *PropertyRepo) Mutate(ctx context.Context, id uint64, fn func(p *model.Property) error) (model.Property, error) {
	var out model.Property
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		p, err := getProperty(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		images, err := encodeImages(p.ImageURLs)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE properties SET title=?, location=?, description=?, status=?, image_urls=?, record_state=? WHERE id=?",
			p.Title, p.Location, p.Description, string(p.Status), images, string(p.RecordState), id); err != nil {
			return err
		}
		out, err = getProperty(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return model.Property{}, err
	}
	return out, nil
}

// Delete removes a property that no investment references. Properties
// with investment history return apperr.ErrConflict; archive them instead.
// News items attached to the property are removed by the foreign key.
func (r *PropertyRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := getProperty(ctx, tx, id, true); err != nil {
			return err
		}
		var refs int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM investments WHERE property_id=?", id).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: property %d has %d investments", apperr.ErrConflict, id, refs)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM properties WHERE id=?", id)
		return err
	})
}

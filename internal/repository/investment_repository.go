package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
)

const investmentColumns = "i.id,i.user_id,i.property_id,i.initial_value,i.current_value,i.created_at,i.updated_at"

// InvestmentRepo owns the `investments` table. Assign is the only way an
// investment row is created; it runs the first-investment status
// transition of the target property in the same transaction.
type InvestmentRepo struct{ db *sql.DB }

// NewInvestmentRepo returns a new InvestmentRepo bound to the given database.
func NewInvestmentRepo(db *sql.DB) *InvestmentRepo { return &InvestmentRepo{db: db} }

func scanInvestment(row interface{ Scan(...any) error }) (model.Investment, error) {
	var inv model.Investment
	err := row.Scan(&inv.ID, &inv.UserID, &inv.PropertyID, &inv.InitialValue, &inv.CurrentValue, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func getInvestment(ctx context.Context, q queryer, id uint64, lock bool) (model.Investment, error) {
	query := "SELECT " + investmentColumns + " FROM investments i WHERE i.id=?"
	if lock {
		query += " FOR UPDATE"
	}
	return scanInvestment(q.QueryRowContext(ctx, query, id))
}

func notFound(what string, id uint64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, apperr.ErrNotFound)
	}
	return err
}

// Assign inserts inv after check approves the owner and the target
// property. Inside one transaction it:
//
//  1. reads the owner with a shared lock,
//  2. reads the property with an exclusive lock,
//  3. calls check, aborting on error,
//  4. inserts the investment,
//  5. moves the property from AVAILABLE to INVESTED if it was AVAILABLE.
//
// The returned flag reports whether this call performed step 5. Because
// the property row stays locked until commit, two concurrent assignments
// against the same AVAILABLE property serialize and exactly one of them
// observes the transition.
func (r *InvestmentRepo) Assign(ctx context.Context, inv *model.Investment, check func(u model.User, p model.Property) error) (bool, error) {
	transitioned := false
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		u, err := scanUser(tx.QueryRowContext(ctx,
			"SELECT "+userColumns+" FROM users WHERE id=? LOCK IN SHARE MODE", inv.UserID))
		if err != nil {
			return notFound("user", inv.UserID, err)
		}
		p, err := getProperty(ctx, tx, inv.PropertyID, true)
		if err != nil {
			return notFound("property", inv.PropertyID, err)
		}
		if err := check(u, p); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO investments (user_id, property_id, initial_value, current_value) VALUES (?,?,?,?)",
			inv.UserID, inv.PropertyID, inv.InitialValue, inv.CurrentValue)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if p.Status == model.StatusAvailable {
			if _, err := tx.ExecContext(ctx,
				"UPDATE properties SET status=? WHERE id=?", string(model.StatusInvested), p.ID); err != nil {
				return err
			}
			transitioned = true
		}
		created, err := getInvestment(ctx, tx, uint64(id), false)
		if err != nil {
			return err
		}
		*inv = created
		return nil
	})
	if err != nil {
		return false, err
	}
	return transitioned, nil
}

// GetByID fetches an investment by id.
func (r *InvestmentRepo) GetByID(ctx context.Context, id uint64) (model.Investment, error) {
	inv, err := getInvestment(ctx, r.db, id, false)
	return inv, classify(err)
}

// UpdateCurrentValue sets the current valuation of an investment. The
// initial value is never written after creation. before is read under
// the same row lock as the write.
func (r *InvestmentRepo) UpdateCurrentValue(ctx context.Context, id uint64, value decimal.Decimal) (before, after model.Investment, err error) {
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		if before, err = getInvestment(ctx, tx, id, true); err != nil {
			return notFound("investment", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE investments SET current_value=? WHERE id=?", value, id); err != nil {
			return err
		}
		after, err = getInvestment(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return model.Investment{}, model.Investment{}, err
	}
	return before, after, nil
}

// List returns investments joined with their property, oldest first.
func (r *InvestmentRepo) List(ctx context.Context, f model.InvestmentFilter) ([]model.InvestmentDetail, error) {
	q := "SELECT " + investmentColumns + ", p.title, p.location, p.status" +
		" FROM investments i JOIN properties p ON p.id = i.property_id WHERE 1=1"
	args := []any{}
	if f.UserID != 0 {
		q += " AND i.user_id=?"
		args = append(args, f.UserID)
	}
	if f.PropertyID != 0 {
		q += " AND i.property_id=?"
		args = append(args, f.PropertyID)
	}
	q += " ORDER BY i.created_at ASC, i.id ASC"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := []model.InvestmentDetail{}
	for rows.Next() {
		var (
			d      model.InvestmentDetail
			status string
		)
		if err := rows.Scan(&d.ID, &d.UserID, &d.PropertyID, &d.InitialValue, &d.CurrentValue, &d.CreatedAt, &d.UpdatedAt,
			&d.PropertyTitle, &d.PropertyLocation, &status); err != nil {
			return nil, classify(err)
		}
		d.PropertyStatus = model.PropertyStatus(status)
		out = append(out, d)
	}
	return out, classify(rows.Err())
}

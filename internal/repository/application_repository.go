package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/estate-ledger/internal/model"
)

const applicationColumns = "a.id,a.user_id,a.motivation,a.investment_amount,a.experience,a.status," +
	"a.reviewed_by,a.reviewed_at,a.admin_notes,a.rejection_reason,a.created_at,a.updated_at"

// ApplicationRepo owns the `investment_applications` table. Review is the
// only path that changes an applicant's role; it shares the admin-set and
// user locks with UserRepo.Mutate.
type ApplicationRepo struct{ db *sql.DB }

// NewApplicationRepo returns a new ApplicationRepo bound to the given database.
func NewApplicationRepo(db *sql.DB) *ApplicationRepo { return &ApplicationRepo{db: db} }

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func scanApplication(row interface{ Scan(...any) error }, extra ...any) (model.Application, error) {
	var (
		a          model.Application
		amount     decimal.NullDecimal
		experience sql.NullString
		status     string
		reviewer   sql.NullInt64
		reviewedAt sql.NullTime
		notes      sql.NullString
		reason     sql.NullString
	)
	dest := append([]any{&a.ID, &a.UserID, &a.Motivation, &amount, &experience, &status,
		&reviewer, &reviewedAt, &notes, &reason, &a.CreatedAt, &a.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Application{}, err
	}
	a.Status = model.ApplicationStatus(status)
	if amount.Valid {
		v := amount.Decimal
		a.InvestmentAmount = &v
	}
	if reviewer.Valid {
		id := uint64(reviewer.Int64)
		a.ReviewedBy = &id
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		a.ReviewedAt = &t
	}
	a.Experience, a.AdminNotes, a.RejectionReason = stringPtr(experience), stringPtr(notes), stringPtr(reason)
	return a, nil
}

func getApplication(ctx context.Context, q queryer, id uint64, lock bool) (model.Application, error) {
	query := "SELECT " + applicationColumns + " FROM investment_applications a WHERE a.id=?"
	if lock {
		query += " FOR UPDATE"
	}
	a, err := scanApplication(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return model.Application{}, notFound("application", id, err)
	}
	return a, nil
}

const applicationDetailFrom = " FROM investment_applications a" +
	" JOIN users u ON u.id = a.user_id" +
	" LEFT JOIN users r ON r.id = a.reviewed_by"

func scanApplicationDetail(row interface{ Scan(...any) error }) (model.ApplicationDetail, error) {
	var (
		d        model.ApplicationDetail
		reviewer sql.NullString
	)
	a, err := scanApplication(row, &d.UserName, &d.UserEmail, &reviewer)
	if err != nil {
		return model.ApplicationDetail{}, err
	}
	d.Application = a
	d.ReviewerName = stringPtr(reviewer)
	return d, nil
}

// Create inserts app after check approves the applicant. The applicant
// row is locked so two submissions by the same user serialize and the
// open-application count seen by check stays accurate until commit.
func (r *ApplicationRepo) Create(ctx context.Context, app *model.Application, check func(u model.User, open int) error) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		u, err := lockUser(ctx, tx, app.UserID)
		if err != nil {
			return err
		}
		var open int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM investment_applications WHERE user_id=? AND status IN ('PENDING','UNDER_REVIEW')",
			app.UserID).Scan(&open); err != nil {
			return err
		}
		if err := check(u, open); err != nil {
			return err
		}
		if app.Status == "" {
			app.Status = model.ApplicationPending
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO investment_applications (user_id, motivation, investment_amount, experience, status) VALUES (?,?,?,?,?)",
			app.UserID, app.Motivation, nullDecimal(app.InvestmentAmount), nullString(app.Experience), string(app.Status))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		created, err := getApplication(ctx, tx, uint64(id), false)
		if err != nil {
			return err
		}
		*app = created
		return nil
	})
}

// GetByID fetches an application with applicant and reviewer names.
func (r *ApplicationRepo) GetByID(ctx context.Context, id uint64) (model.ApplicationDetail, error) {
	d, err := scanApplicationDetail(r.db.QueryRowContext(ctx,
		"SELECT "+applicationColumns+", u.full_name, u.email, r.full_name"+applicationDetailFrom+" WHERE a.id=?", id))
	if err != nil {
		return model.ApplicationDetail{}, classify(notFound("application", id, err))
	}
	return d, nil
}

// List returns one page of applications, newest first, and the total
// match count.
func (r *ApplicationRepo) List(ctx context.Context, f model.ApplicationFilter) ([]model.ApplicationDetail, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if f.UserID != 0 {
		where += " AND a.user_id=?"
		args = append(args, f.UserID)
	}
	if f.Status != nil {
		where += " AND a.status=?"
		args = append(args, string(*f.Status))
	}
	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM investment_applications a"+where, args...).Scan(&total); err != nil {
		return nil, 0, classify(err)
	}
	page := f.Page.Normalize()
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+applicationColumns+", u.full_name, u.email, r.full_name"+applicationDetailFrom+where+
			" ORDER BY a.created_at DESC, a.id DESC LIMIT ? OFFSET ?",
		append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer rows.Close()
	out := []model.ApplicationDetail{}
	for rows.Next() {
		d, err := scanApplicationDetail(rows)
		if err != nil {
			return nil, 0, classify(err)
		}
		out = append(out, d)
	}
	return out, total, classify(rows.Err())
}

// Edit locks the application, lets fn change the applicant fields and
// writes them back.
func (r *ApplicationRepo) Edit(ctx context.Context, id uint64, fn func(a *model.Application) error) (model.Application, error) {
	var out model.Application
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		a, err := getApplication(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(&a); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE investment_applications SET motivation=?, investment_amount=?, experience=? WHERE id=?",
			a.Motivation, nullDecimal(a.InvestmentAmount), nullString(a.Experience), id); err != nil {
			return err
		}
		out, err = getApplication(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return model.Application{}, err
	}
	return out, nil
}

// Review takes the active admin set, the application and the applicant
// in that order, the same order UserRepo.Mutate uses, then writes the
// review fields and the applicant's role in one transaction.
func (r *ApplicationRepo) Review(ctx context.Context, id uint64, fn func(a *model.Application, u *model.User, activeAdmins int) error) (model.Application, model.User, model.User, error) {
	var (
		app           model.Application
		before, after model.User
	)
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		admins, err := lockAdmins(ctx, tx)
		if err != nil {
			return err
		}
		if app, err = getApplication(ctx, tx, id, true); err != nil {
			return err
		}
		if before, err = lockUser(ctx, tx, app.UserID); err != nil {
			return err
		}
		next := before
		if err := fn(&app, &next, admins); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE investment_applications SET status=?, reviewed_by=?, reviewed_at=?, admin_notes=?, rejection_reason=? WHERE id=?",
			string(app.Status), app.ReviewedBy, app.ReviewedAt, nullString(app.AdminNotes), nullString(app.RejectionReason), id); err != nil {
			return err
		}
		// Only the role may change through a review.
		next.IsActive, next.FullName, next.Phone = before.IsActive, before.FullName, before.Phone
		if after, err = saveUser(ctx, tx, before, next); err != nil {
			return err
		}
		app, err = getApplication(ctx, tx, id, false)
		if err != nil {
			return fmt.Errorf("reload application %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return model.Application{}, model.User{}, model.User{}, err
	}
	return app, before, after, nil
}

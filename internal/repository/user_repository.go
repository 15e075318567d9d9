package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
)

const userColumns = "id,email,password_hash,full_name,phone,role,is_active,created_at,updated_at"

// UserRepo is the credential store backed by the `users` table.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var (
		u     model.User
		phone sql.NullString
		role  string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &phone, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	if phone.Valid {
		p := phone.String
		u.Phone = &p
	}
	return u, nil
}

// Create inserts u and fills in ID and timestamps. The email is normalized
// before insert; a unique-key violation returns apperr.ErrDuplicateEmail.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = model.NormalizeEmail(u.Email)
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, full_name, phone, role, is_active) VALUES (?,?,?,?,?,?)",
		u.Email, u.PasswordHash, u.FullName, u.Phone, string(u.Role), u.IsActive)
	if err != nil {
		if isDuplicate(err) {
			return apperr.ErrDuplicateEmail
		}
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

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", model.NormalizeEmail(email)))
	return u, classify(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	return u, classify(err)
}

// List returns one page of users, newest first, and the total match count.
func (r *UserRepo) List(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	where := ""
	args := []any{}
	if f.Role != nil {
		where = " WHERE role=?"
		args = append(args, string(*f.Role))
	}
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, 0, classify(err)
	}
	page := f.Page.Normalize()
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer rows.Close()
	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, classify(err)
		}
		users = append(users, u)
	}
	return users, total, classify(rows.Err())
}

// Mutate passes a copy of the user row to fn together with the number of
// active admins and writes back role, is_active, full_name and phone when
// fn changed them. It returns the row as it was before and after. Errors
// returned by fn abort the transaction and are returned unchanged.
func (r *UserRepo) Mutate(ctx context.Context, id uint64, fn func(u *model.User, activeAdmins int) error) (model.User, model.User, error) {
	var before, after model.User
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		admins, err := lockAdmins(ctx, tx)
		if err != nil {
			return err
		}
		if before, err = lockUser(ctx, tx, id); err != nil {
			return err
		}
		next := before
		if err := fn(&next, admins); err != nil {
			return err
		}
		after, err = saveUser(ctx, tx, before, next)
		return err
	})
	if err != nil {
		return model.User{}, model.User{}, err
	}
	return before, after, nil
}

// lockAdmins locks the active admin rows and counts them. Every
// transaction that changes a user takes this lock before the user row,
// so the last-admin check and the write it guards see the same set and
// two transactions never wait on each other in opposite order.
func lockAdmins(ctx context.Context, tx *sql.Tx) (int, error) {
	return countLocked(ctx, tx, "SELECT id FROM users WHERE role='ADMIN' AND is_active=1 FOR UPDATE")
}

func lockUser(ctx context.Context, tx *sql.Tx, id uint64) (model.User, error) {
	u, err := scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? FOR UPDATE", id))
	if err != nil {
		return model.User{}, notFound("user", id, err)
	}
	return u, nil
}

func samePhone(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// saveUser writes the mutable columns of next if they differ from before
// and returns the stored row.
func saveUser(ctx context.Context, tx *sql.Tx, before, next model.User) (model.User, error) {
	if next.Role == before.Role && next.IsActive == before.IsActive &&
		next.FullName == before.FullName && samePhone(next.Phone, before.Phone) {
		return before, nil
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET role=?, is_active=?, full_name=?, phone=? WHERE id=?",
		string(next.Role), next.IsActive, next.FullName, next.Phone, before.ID); err != nil {
		return model.User{}, err
	}
	return scanUser(tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id=?", before.ID))
}

// countLocked runs a locking SELECT and counts the returned rows. MySQL
// does not take locks through COUNT(*) over a subquery, so rows are
// counted client side.
func countLocked(ctx context.Context, tx *sql.Tx, query string, args ...any) (int, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

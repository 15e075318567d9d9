package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/auth"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/utils"
)

// Accounts implements signup, login, session refresh and logout, and the
// admin bootstrap.
type Accounts struct {
	users      UserStore
	tokens     *auth.Service
	bcryptCost int
	policy     Policy
	log        Logger
}

// NewAccounts wires an Accounts service.
func NewAccounts(users UserStore, tokens *auth.Service, bcryptCost int, policy Policy, log Logger) *Accounts {
	return &Accounts{users: users, tokens: tokens, bcryptCost: bcryptCost, policy: policy.normalize(), log: log}
}

// SignupInput carries the signup fields.
type SignupInput struct {
	Email    string
	Password string
	FullName string
	Phone    *string
}

// Session is the result of login and refresh.
type Session struct {
	User   model.User
	Tokens auth.TokenPair
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

// Signup creates a USER account. Roles are never self-assigned.
func (a *Accounts) Signup(ctx context.Context, in SignupInput) (model.User, error) {
	email := model.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.FullName)
	if !validEmail(email) {
		return model.User{}, fmt.Errorf("%w: email is not valid", apperr.ErrInvalidInput)
	}
	if in.Password == "" {
		return model.User{}, fmt.Errorf("%w: password is required", apperr.ErrInvalidInput)
	}
	if name == "" {
		return model.User{}, fmt.Errorf("%w: full_name is required", apperr.ErrInvalidInput)
	}
	hash, err := utils.HashPassword(in.Password, a.bcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	var phone *string
	if in.Phone != nil && strings.TrimSpace(*in.Phone) != "" {
		p := strings.TrimSpace(*in.Phone)
		phone = &p
	}
	u := model.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     name,
		Phone:        phone,
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := exec(ctx, a.policy, func(ctx context.Context) error { return a.users.Create(ctx, &u) }); err != nil {
		return model.User{}, err
	}
	a.log.Infof("signup: user %d (%s)", u.ID, u.Email)
	return u, nil
}

// Login verifies the credentials and opens a session. Unknown emails,
// wrong passwords and disabled accounts all fail with
// apperr.ErrInvalidCredentials.
func (a *Accounts) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := read(ctx, a.policy, func(ctx context.Context) (model.User, error) {
		return a.users.GetByEmail(ctx, email)
	})
	if errors.Is(err, apperr.ErrNotFound) {
		utils.BurnPasswordCheck(password)
		return Session{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) || !u.IsActive {
		return Session{}, apperr.ErrInvalidCredentials
	}
	pair, err := write(ctx, a.policy, func(ctx context.Context) (auth.TokenPair, error) {
		return a.tokens.Issue(ctx, u)
	})
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Tokens: pair}, nil
}

// Refresh rotates a refresh token. The new access token carries the role
// currently stored for the user.
func (a *Accounts) Refresh(ctx context.Context, raw string) (Session, error) {
	if strings.TrimSpace(raw) == "" {
		return Session{}, fmt.Errorf("%w: refresh token is required", apperr.ErrTokenInvalid)
	}
	var s Session
	err := exec(ctx, a.policy, func(ctx context.Context) error {
		pair, u, err := a.tokens.Refresh(ctx, strings.TrimSpace(raw))
		s = Session{User: u, Tokens: pair}
		return err
	})
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// Logout revokes one refresh token.
func (a *Accounts) Logout(ctx context.Context, raw string) error {
	return exec(ctx, a.policy, func(ctx context.Context) error {
		return a.tokens.Revoke(ctx, strings.TrimSpace(raw))
	})
}

// LogoutAll revokes every refresh token of the user.
func (a *Accounts) LogoutAll(ctx context.Context, userID uint64) error {
	return exec(ctx, a.policy, func(ctx context.Context) error {
		return a.tokens.RevokeAll(ctx, userID)
	})
}

// Me returns the stored profile of the caller.
func (a *Accounts) Me(ctx context.Context, userID uint64) (model.User, error) {
	return read(ctx, a.policy, func(ctx context.Context) (model.User, error) {
		return a.users.GetByID(ctx, userID)
	})
}

// ProfilePatch carries the caller's profile edits; nil fields are left
// alone and an empty phone clears it.
type ProfilePatch struct {
	FullName *string
	Phone    *string
}

// UpdateProfile edits the caller's name and phone. Email, role and
// is_active are not editable here.
func (a *Accounts) UpdateProfile(ctx context.Context, userID uint64, patch ProfilePatch) (model.User, error) {
	var name string
	if patch.FullName != nil {
		if name = strings.TrimSpace(*patch.FullName); name == "" {
			return model.User{}, fmt.Errorf("%w: full_name cannot be empty", apperr.ErrInvalidInput)
		}
	}
	_, after, err := mutateUser(ctx, a.policy, a.users, userID, func(u *model.User, _ int) error {
		if patch.FullName != nil {
			u.FullName = name
		}
		if patch.Phone != nil {
			u.Phone = trimmed(patch.Phone)
		}
		return nil
	})
	return after, err
}

// AdminSeed holds the bootstrap admin credentials.
type AdminSeed struct {
	Email    string
	Password string
	FullName string
}

// EnsureAdmin makes sure the seed account exists, is active and is an
// ADMIN. It is safe to run on every start and from several processes at
// once: the unique email constraint decides which creator wins and the
// others fall through to the lookup path. The returned flag reports
// whether this call created the account.
func (a *Accounts) EnsureAdmin(ctx context.Context, seed AdminSeed) (model.User, bool, error) {
	email := model.NormalizeEmail(seed.Email)
	if !validEmail(email) || seed.Password == "" {
		return model.User{}, false, fmt.Errorf("%w: admin email and password are required", apperr.ErrInvalidInput)
	}
	name := strings.TrimSpace(seed.FullName)
	if name == "" {
		name = "Administrator"
	}

	existing, err := read(ctx, a.policy, func(ctx context.Context) (model.User, error) {
		return a.users.GetByEmail(ctx, email)
	})
	if errors.Is(err, apperr.ErrNotFound) {
		hash, herr := utils.HashPassword(seed.Password, a.bcryptCost)
		if herr != nil {
			return model.User{}, false, fmt.Errorf("hash admin password: %w", herr)
		}
		u := model.User{Email: email, PasswordHash: hash, FullName: name, Role: model.RoleAdmin, IsActive: true}
		err = exec(ctx, a.policy, func(ctx context.Context) error { return a.users.Create(ctx, &u) })
		if err == nil {
			a.log.Infof("bootstrap: created admin %d (%s)", u.ID, u.Email)
			return u, true, nil
		}
		if !errors.Is(err, apperr.ErrDuplicateEmail) {
			return model.User{}, false, err
		}
		existing, err = read(ctx, a.policy, func(ctx context.Context) (model.User, error) {
			return a.users.GetByEmail(ctx, email)
		})
	}
	if err != nil {
		return model.User{}, false, err
	}
	if existing.Role == model.RoleAdmin && existing.IsActive {
		return existing, false, nil
	}
	_, after, err := mutateUser(ctx, a.policy, a.users, existing.ID, func(u *model.User, _ int) error {
		u.Role = model.RoleAdmin
		u.IsActive = true
		return nil
	})
	if err != nil {
		return model.User{}, false, err
	}
	a.log.Warnf("bootstrap: raised existing account %d (%s) to active ADMIN", after.ID, after.Email)
	return after, false, nil
}

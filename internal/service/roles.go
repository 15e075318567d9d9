package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/queue"
)

// SessionRevoker ends every session of a user.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID uint64) error
}

// Roles is the role transition manager. Callers are authorized by the
// guard before they get here; Roles only enforces transition rules.
type Roles struct {
	users        UserStore
	applications ApplicationStore
	sessions     SessionRevoker
	events       EventPublisher
	policy       Policy
	log          Logger
}

// NewRoles wires a Roles manager.
func NewRoles(users UserStore, applications ApplicationStore, sessions SessionRevoker, events EventPublisher, policy Policy, log Logger) *Roles {
	return &Roles{
		users:        users,
		applications: applications,
		sessions:     sessions,
		events:       events,
		policy:       policy.normalize(),
		log:          log,
	}
}

// RoleTransition reports the outcome of Promote or Demote. NoOp is set
// when the user already had the requested role; nothing was written.
type RoleTransition struct {
	User model.User
	From model.Role
	To   model.Role
	NoOp bool
}

type direction int

const (
	up direction = iota
	down
)

func parseTarget(r model.Role) (model.Role, error) {
	to, ok := model.ParseRole(string(r))
	if !ok {
		return "", fmt.Errorf("%w: unknown role %q", apperr.ErrInvalidRole, r)
	}
	return to, nil
}

// Promote raises the role of a user: USER→INVESTOR, USER|INVESTOR→ADMIN.
// Requesting the current role is a successful no-op; requesting a lower
// role fails with apperr.ErrInvalidRole.
func (m *Roles) Promote(ctx context.Context, targetID uint64, role model.Role) (RoleTransition, error) {
	return m.transition(ctx, targetID, role, up)
}

// Demote lowers the role of a user: ADMIN→INVESTOR|USER, INVESTOR→USER.
// Existing investments stay; the user can no longer receive new ones
// below INVESTOR. The last active ADMIN cannot be demoted.
func (m *Roles) Demote(ctx context.Context, targetID uint64, role model.Role) (RoleTransition, error) {
	return m.transition(ctx, targetID, role, down)
}

// changeRole returns the Mutate callback enforcing the transition rules
// for moving a user to role to in direction dir.
func changeRole(to model.Role, dir direction) func(u *model.User, activeAdmins int) error {
	return func(u *model.User, activeAdmins int) error {
		switch {
		case u.Role == to:
			return nil
		case dir == up && to.Rank() < u.Role.Rank():
			return fmt.Errorf("%w: cannot promote %s to %s", apperr.ErrInvalidRole, u.Role, to)
		case dir == down && to.Rank() > u.Role.Rank():
			return fmt.Errorf("%w: cannot demote %s to %s", apperr.ErrInvalidRole, u.Role, to)
		case dir == down && u.Role == model.RoleAdmin && u.IsActive && activeAdmins <= 1:
			return fmt.Errorf("%w: user %d is the last active admin", apperr.ErrConflict, u.ID)
		}
		u.Role = to
		return nil
	}
}

func (m *Roles) transition(ctx context.Context, targetID uint64, role model.Role, dir direction) (RoleTransition, error) {
	to, err := parseTarget(role)
	if err != nil {
		return RoleTransition{}, err
	}
	before, after, err := mutateUser(ctx, m.policy, m.users, targetID, changeRole(to, dir))
	if err != nil {
		return RoleTransition{}, err
	}
	return m.announce(ctx, before, after), nil
}

// announce logs and publishes a committed role change.
func (m *Roles) announce(ctx context.Context, before, after model.User) RoleTransition {
	t := RoleTransition{User: after, From: before.Role, To: after.Role, NoOp: before.Role == after.Role}
	if t.NoOp {
		return t
	}
	m.log.Infof("roles: user %d %s -> %s", after.ID, t.From, t.To)
	publish(ctx, m.events, m.log, queue.LedgerEvent{
		Type:       queue.UserRoleChanged,
		OccurredAt: time.Now().UTC(),
		UserID:     after.ID,
		FromRole:   string(t.From),
		ToRole:     string(t.To),
	})
	return t
}

// SetActive enables or soft-disables a user. Disabling revokes every
// refresh token of the user so no new access token can be minted; access
// tokens already issued stay valid until they expire. The last active
// ADMIN cannot be disabled.
func (m *Roles) SetActive(ctx context.Context, targetID uint64, active bool) (model.User, error) {
	before, after, err := mutateUser(ctx, m.policy, m.users, targetID, func(u *model.User, activeAdmins int) error {
		if !active && u.IsActive && u.Role == model.RoleAdmin && activeAdmins <= 1 {
			return fmt.Errorf("%w: user %d is the last active admin", apperr.ErrConflict, u.ID)
		}
		u.IsActive = active
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	if !active {
		if err := exec(ctx, m.policy, func(ctx context.Context) error {
			return m.sessions.RevokeAll(ctx, targetID)
		}); err != nil {
			return model.User{}, err
		}
	}
	if before.IsActive != after.IsActive {
		m.log.Infof("roles: user %d active=%t", after.ID, after.IsActive)
		publish(ctx, m.events, m.log, queue.LedgerEvent{
			Type:       queue.UserStatusChanged,
			OccurredAt: time.Now().UTC(),
			UserID:     after.ID,
			Active:     &active,
		})
	}
	return after, nil
}

// ListUsers returns one page of users and the total count.
func (m *Roles) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	type page struct {
		users []model.User
		total int
	}
	p, err := read(ctx, m.policy, func(ctx context.Context) (page, error) {
		users, total, err := m.users.List(ctx, f)
		return page{users, total}, err
	})
	return p.users, p.total, err
}

// GetUser returns one user.
func (m *Roles) GetUser(ctx context.Context, id uint64) (model.User, error) {
	return read(ctx, m.policy, func(ctx context.Context) (model.User, error) {
		return m.users.GetByID(ctx, id)
	})
}

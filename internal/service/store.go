// Package service holds the business operations: accounts, role
// transitions, the property and investment ledger, and news updates.
// Services depend on narrow store interfaces satisfied by the repository
// package in production and by testutil in tests.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/queue"
)

// UserStore is the credential store.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	List(ctx context.Context, f model.UserFilter) ([]model.User, int, error)
	// Mutate locks the active admin set and then the user row, and writes
	// back role, is_active, full_name and phone if fn changed them. fn
	// also receives the number of active admins.
	Mutate(ctx context.Context, id uint64, fn func(u *model.User, activeAdmins int) error) (before, after model.User, err error)
}

// PropertyStore persists properties.
type PropertyStore interface {
	Create(ctx context.Context, p *model.Property) error
	GetByID(ctx context.Context, id uint64) (model.Property, error)
	List(ctx context.Context, f model.PropertyFilter) ([]model.Property, int, error)
	Mutate(ctx context.Context, id uint64, fn func(p *model.Property) error) (model.Property, error)
	Delete(ctx context.Context, id uint64) error
}

// InvestmentStore persists investments.
type InvestmentStore interface {
	// Assign locks owner and property, runs check, inserts inv and moves
	// an AVAILABLE property to INVESTED, all in one transaction. It
	// reports whether the transition happened.
	Assign(ctx context.Context, inv *model.Investment, check func(u model.User, p model.Property) error) (bool, error)
	GetByID(ctx context.Context, id uint64) (model.Investment, error)
	// UpdateCurrentValue locks the row, writes value and returns the row
	// as it was before and after the write.
	UpdateCurrentValue(ctx context.Context, id uint64, value decimal.Decimal) (before, after model.Investment, err error)
	List(ctx context.Context, f model.InvestmentFilter) ([]model.InvestmentDetail, error)
}

// ApplicationStore persists investment applications.
type ApplicationStore interface {
	// Create locks the applicant, runs check with the number of the
	// applicant's open (PENDING or UNDER_REVIEW) applications and inserts
	// app, all in one transaction.
	Create(ctx context.Context, app *model.Application, check func(u model.User, open int) error) error
	GetByID(ctx context.Context, id uint64) (model.ApplicationDetail, error)
	List(ctx context.Context, f model.ApplicationFilter) ([]model.ApplicationDetail, int, error)
	// Edit locks the application and writes back motivation,
	// investment_amount and experience after fn approves.
	Edit(ctx context.Context, id uint64, fn func(a *model.Application) error) (model.Application, error)
	// Review locks the active admin set, the application and the
	// applicant in that order, runs fn and writes back the review fields
	// of the application and the role of the applicant in the same
	// transaction.
	Review(ctx context.Context, id uint64, fn func(a *model.Application, u *model.User, activeAdmins int) error) (app model.Application, before, after model.User, err error)
}

// UpdateStore persists news items.
type UpdateStore interface {
	Create(ctx context.Context, u *model.Update) error
	GetByID(ctx context.Context, id uint64) (model.Update, error)
	Save(ctx context.Context, u *model.Update) error
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, f model.UpdateFilter) ([]model.Update, int, error)
}

// Logger is the subset of the process logger used by services.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// EventPublisher delivers ledger events after a mutation has committed.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.LedgerEvent) error
}

// Policy bounds every store call. Reads are retried once after Backoff
// when the store is unavailable; writes are never retried because a
// timed-out write may have committed.
type Policy struct {
	Timeout time.Duration
	Backoff time.Duration
}

// DefaultPolicy is used when a zero Policy is configured.
var DefaultPolicy = Policy{Timeout: 5 * time.Second, Backoff: 100 * time.Millisecond}

func (p Policy) normalize() Policy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultPolicy.Timeout
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultPolicy.Backoff
	}
	return p
}

// read runs a read-only store call with the timeout and one retry.
func read[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := call(ctx, p, fn)
	if err == nil || !errors.Is(err, apperr.ErrStoreUnavailable) || ctx.Err() != nil {
		return v, err
	}
	t := time.NewTimer(p.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return v, err
	case <-t.C:
	}
	return call(ctx, p, fn)
}

// write runs a mutating store call with the timeout and no retry.
func write[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	return call(ctx, p, fn)
}

func call[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(cctx)
}

// exec adapts an error-only store call to write.
func exec(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := write(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// mutateUser runs UserStore.Mutate as a write.
func mutateUser(ctx context.Context, p Policy, users UserStore, id uint64, fn func(u *model.User, activeAdmins int) error) (before, after model.User, err error) {
	err = exec(ctx, p, func(ctx context.Context) error {
		var err error
		before, after, err = users.Mutate(ctx, id, fn)
		return err
	})
	return before, after, err
}

// publish sends ev and logs a failure; the mutation has already committed
// so the caller's result does not change.
func publish(ctx context.Context, pub EventPublisher, log Logger, ev queue.LedgerEvent) {
	if pub == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warnf("publish %s: %v", ev.Type, err)
	}
}

package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/auth"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/queue"
	"github.com/iliyamo/estate-ledger/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []queue.LedgerEvent
	err    error
}

func (r *recorder) Publish(_ context.Context, ev queue.LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type env struct {
	store    *testutil.Store
	tokens   *auth.Service
	events   *recorder
	accounts *Accounts
	roles    *Roles
	ledger   *Ledger
	news     *News
	admin    model.User
}

var testPolicy = Policy{Timeout: time.Second, Backoff: time.Millisecond}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := testutil.NewStore()
	log := testutil.Logger()
	tokens := auth.NewService(auth.Options{Secret: []byte("s3cret"), Issuer: "estate-ledger"}, store.Tokens(), store.Users())
	events := &recorder{}
	e := &env{
		store:    store,
		tokens:   tokens,
		events:   events,
		accounts: NewAccounts(store.Users(), tokens, bcrypt.MinCost, testPolicy, log),
		roles:    NewRoles(store.Users(), store.Applications(), tokens, events, testPolicy, log),
		ledger:   NewLedger(store.Users(), store.Properties(), store.Investments(), events, testPolicy, log),
		news:     NewNews(store.Updates(), store.Properties(), store.Investments(), testPolicy, log),
	}
	admin, created, err := e.accounts.EnsureAdmin(context.Background(), AdminSeed{Email: "root@estate.io", Password: "admin-pw"})
	require.NoError(t, err)
	require.True(t, created)
	e.admin = admin
	return e
}

func (e *env) signup(t *testing.T, email string) model.User {
	t.Helper()
	u, err := e.accounts.Signup(context.Background(), SignupInput{Email: email, Password: "pw", FullName: "Test"})
	require.NoError(t, err)
	return u
}

func (e *env) investor(t *testing.T, email string) model.User {
	t.Helper()
	u := e.signup(t, email)
	tr, err := e.roles.Promote(context.Background(), u.ID, model.RoleInvestor)
	require.NoError(t, err)
	return tr.User
}

func (e *env) property(t *testing.T, title string) model.Property {
	t.Helper()
	p, err := e.ledger.CreateProperty(context.Background(), PropertyInput{Title: title, Location: "Lisbon"})
	require.NoError(t, err)
	return p
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSignupLoginScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u, err := e.accounts.Signup(ctx, SignupInput{Email: " A@X.com ", Password: "pw", FullName: "A"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.NotEqual(t, "pw", u.PasswordHash)

	_, err = e.accounts.Signup(ctx, SignupInput{Email: "a@x.com", Password: "other", FullName: "B"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateEmail)

	_, err = e.accounts.Login(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = e.accounts.Login(ctx, "nobody@x.com", "pw")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	s, err := e.accounts.Login(ctx, "A@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, u.ID, s.User.ID)
	assert.NotEmpty(t, s.Tokens.AccessToken)

	rotated, err := e.accounts.Refresh(ctx, s.Tokens.RefreshToken)
	require.NoError(t, err)
	_, err = e.accounts.Refresh(ctx, s.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	require.NoError(t, e.accounts.Logout(ctx, rotated.Tokens.RefreshToken))
	_, err = e.accounts.Refresh(ctx, rotated.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestSignupValidation(t *testing.T) {
	e := newEnv(t)
	for _, in := range []SignupInput{
		{Email: "", Password: "pw", FullName: "A"},
		{Email: "no-at-sign", Password: "pw", FullName: "A"},
		{Email: "a@x.com", Password: "", FullName: "A"},
		{Email: "a@x.com", Password: "pw", FullName: "  "},
	} {
		_, err := e.accounts.Signup(context.Background(), in)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, "%+v", in)
	}
}

func TestLoginDisabledUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.signup(t, "d@x.com")
	_, err := e.roles.SetActive(ctx, u.ID, false)
	require.NoError(t, err)
	_, err = e.accounts.Login(ctx, "d@x.com", "pw")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestEnsureAdminIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	again, created, err := e.accounts.EnsureAdmin(ctx, AdminSeed{Email: "ROOT@estate.io", Password: "admin-pw"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e.admin.ID, again.ID)

	admins := model.RoleAdmin
	users, total, err := e.roles.ListUsers(ctx, model.UserFilter{Role: &admins})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, users, 1)
}

func TestEnsureAdminRaisesExistingAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.signup(t, "boss@x.com")
	got, created, err := e.accounts.EnsureAdmin(ctx, AdminSeed{Email: "boss@x.com", Password: "ignored"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, model.RoleAdmin, got.Role)
}

func TestPromoteIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.signup(t, "p@x.com")

	first, err := e.roles.Promote(ctx, u.ID, model.RoleInvestor)
	require.NoError(t, err)
	assert.False(t, first.NoOp)
	assert.Equal(t, model.RoleUser, first.From)
	assert.Equal(t, model.RoleInvestor, first.To)

	writes := e.store.Writes()
	for i := 0; i < 2; i++ {
		again, err := e.roles.Promote(ctx, u.ID, model.RoleInvestor)
		require.NoError(t, err)
		assert.True(t, again.NoOp)
		assert.Equal(t, model.RoleInvestor, again.User.Role)
	}
	assert.Equal(t, writes, e.store.Writes(), "no-op promotions must not write")
	assert.Equal(t, []string{queue.UserRoleChanged}, e.events.types())
}

func TestPromoteRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.investor(t, "i@x.com")

	_, err := e.roles.Promote(ctx, inv.ID, model.RoleUser)
	assert.ErrorIs(t, err, apperr.ErrInvalidRole)
	_, err = e.roles.Promote(ctx, inv.ID, model.Role("OWNER"))
	assert.ErrorIs(t, err, apperr.ErrInvalidRole)
	_, err = e.roles.Promote(ctx, inv.ID, model.RolePublic)
	assert.ErrorIs(t, err, apperr.ErrInvalidRole)
	_, err = e.roles.Promote(ctx, 9999, model.RoleInvestor)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	tr, err := e.roles.Promote(ctx, inv.ID, model.Role("admin"))
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, tr.To)
}

func TestDemote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.investor(t, "i@x.com")
	p := e.property(t, "Flat")
	_, err := e.ledger.AssignInvestment(ctx, inv.ID, p.ID, dec("500"))
	require.NoError(t, err)

	_, err = e.roles.Demote(ctx, inv.ID, model.RoleAdmin)
	assert.ErrorIs(t, err, apperr.ErrInvalidRole)

	tr, err := e.roles.Demote(ctx, inv.ID, model.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, tr.To)

	// History survives, new investments are frozen.
	portfolio, err := e.ledger.GetPortfolio(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, portfolio.Positions, 1)
	_, err = e.ledger.AssignInvestment(ctx, inv.ID, p.ID, dec("100"))
	assert.ErrorIs(t, err, apperr.ErrInvalidRole)
}

func TestLastAdminCannotBeDemotedOrDisabled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.roles.Demote(ctx, e.admin.ID, model.RoleUser)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = e.roles.SetActive(ctx, e.admin.ID, false)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	second := e.signup(t, "second@x.com")
	_, err = e.roles.Promote(ctx, second.ID, model.RoleAdmin)
	require.NoError(t, err)
	tr, err := e.roles.Demote(ctx, e.admin.ID, model.RoleInvestor)
	require.NoError(t, err)
	assert.Equal(t, model.RoleInvestor, tr.To)
	_, err = e.roles.Demote(ctx, second.ID, model.RoleUser)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestSetActiveRevokesSessions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.signup(t, "s@x.com")
	s, err := e.accounts.Login(ctx, "s@x.com", "pw")
	require.NoError(t, err)

	after, err := e.roles.SetActive(ctx, u.ID, false)
	require.NoError(t, err)
	assert.False(t, after.IsActive)
	assert.Equal(t, 0, e.store.Tokens().Active(u.ID))
	_, err = e.accounts.Refresh(ctx, s.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	after, err = e.roles.SetActive(ctx, u.ID, true)
	require.NoError(t, err)
	assert.True(t, after.IsActive)
	_, err = e.accounts.Login(ctx, "s@x.com", "pw")
	assert.NoError(t, err)
}

func TestInvestmentScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.accounts.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pw", FullName: "A"})
	require.NoError(t, err)
	require.Equal(t, model.RoleUser, a.Role)

	tr, err := e.roles.Promote(ctx, a.ID, model.RoleInvestor)
	require.NoError(t, err)
	require.Equal(t, model.RoleInvestor, tr.User.Role)

	p := e.property(t, "P")
	require.Equal(t, model.StatusAvailable, p.Status)

	res, err := e.ledger.AssignInvestment(ctx, a.ID, p.ID, dec("1000.0"))
	require.NoError(t, err)
	assert.True(t, res.PropertyTransitioned)
	assert.True(t, res.Position.InitialValue.Equal(dec("1000")))
	assert.True(t, res.Position.CurrentValue.Equal(dec("1000")))
	assert.Equal(t, model.StatusInvested, res.Position.PropertyStatus)

	stored, err := e.ledger.GetProperty(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInvested, stored.Status)

	pos, err := e.ledger.UpdateValuation(ctx, res.Position.ID, dec("1250.0"))
	require.NoError(t, err)
	assert.True(t, pos.Growth.Amount.Equal(dec("250")), pos.Growth.Amount.String())
	assert.True(t, pos.Growth.Percent.Equal(dec("0.25")), pos.Growth.Percent.String())
	assert.True(t, pos.InitialValue.Equal(dec("1000")), "initial value is immutable")

	assert.Equal(t, []string{queue.UserRoleChanged, queue.InvestmentAssigned, queue.ValuationUpdated}, e.events.types())
}

func TestGrowthReflectsLatestValuation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.investor(t, "g@x.com")
	p := e.property(t, "G")
	res, err := e.ledger.AssignInvestment(ctx, inv.ID, p.ID, dec("800"))
	require.NoError(t, err)

	for _, tc := range []struct{ value, amount, percent string }{
		{"1000", "200", "0.25"},
		{"600", "-200", "-0.25"},
		{"0", "-800", "-1"},
	} {
		_, err := e.ledger.UpdateValuation(ctx, res.Position.ID, dec(tc.value))
		require.NoError(t, err)
		portfolio, err := e.ledger.GetPortfolio(ctx, inv.ID)
		require.NoError(t, err)
		require.Len(t, portfolio.Positions, 1)
		g := portfolio.Positions[0].Growth
		assert.True(t, g.Amount.Equal(dec(tc.amount)), "value %s: amount %s", tc.value, g.Amount)
		assert.True(t, g.Percent.Equal(dec(tc.percent)), "value %s: percent %s", tc.value, g.Percent)
		assert.True(t, portfolio.Totals.CurrentValue.Equal(dec(tc.value)))
	}
}

func TestUpdateValuationValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.investor(t, "v@x.com")
	p := e.property(t, "V")
	res, err := e.ledger.AssignInvestment(ctx, inv.ID, p.ID, dec("10"))
	require.NoError(t, err)

	_, err = e.ledger.UpdateValuation(ctx, res.Position.ID, dec("-1"))
	assert.ErrorIs(t, err, apperr.ErrInvalidValue)
	_, err = e.ledger.UpdateValuation(ctx, 9999, dec("1"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMoneyOutsideColumnRangeRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.investor(t, "scale@x.com")
	p := e.property(t, "Scale")
	res, err := e.ledger.AssignInvestment(ctx, inv.ID, p.ID, dec("100.25"))
	require.NoError(t, err)
	writes := e.store.Writes()

	for _, v := range []string{"0.001", "0.005", "0.0049", "1e16", "12345678901234567"} {
		_, err := e.ledger.AssignInvestment(ctx, inv.ID, p.ID, dec(v))
		assert.ErrorIs(t, err, apperr.ErrInvalidValue, "assign %s", v)
		_, err = e.ledger.UpdateValuation(ctx, res.Position.ID, dec(v))
		assert.ErrorIs(t, err, apperr.ErrInvalidValue, "valuation %s", v)
	}
	assert.Equal(t, writes, e.store.Writes())

	pos, err := e.ledger.UpdateValuation(ctx, res.Position.ID, dec("9999999999999999.99"))
	require.NoError(t, err)
	assert.True(t, pos.CurrentValue.Equal(dec("9999999999999999.99")))
}

func TestValuationEventCarriesOverwrittenValue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.investor(t, "prev@x.com")
	p := e.property(t, "Prev")
	res, err := e.ledger.AssignInvestment(ctx, inv.ID, p.ID, dec("1000"))
	require.NoError(t, err)

	for _, v := range []string{"1100", "950.5"} {
		_, err := e.ledger.UpdateValuation(ctx, res.Position.ID, dec(v))
		require.NoError(t, err)
	}

	var got [][2]string
	for _, ev := range e.events.events {
		if ev.Type == queue.ValuationUpdated {
			got = append(got, [2]string{ev.PreviousValue, ev.CurrentValue})
		}
	}
	assert.Equal(t, [][2]string{{"1000", "1100"}, {"1100", "950.5"}}, got)
}

func TestAssignToSoldPropertyAlwaysInvalidProperty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.investor(t, "s@x.com")
	plain := e.signup(t, "plain@x.com")
	p := e.property(t, "Sold")
	_, err := e.ledger.MarkSold(ctx, p.ID)
	require.NoError(t, err)

	for _, owner := range []uint64{inv.ID, plain.ID, e.admin.ID} {
		for _, v := range []string{"0.01", "1", "1000000"} {
			_, err := e.ledger.AssignInvestment(ctx, owner, p.ID, dec(v))
			assert.ErrorIs(t, err, apperr.ErrInvalidProperty, "owner %d value %s", owner, v)
		}
	}
	_, err = e.ledger.MarkSold(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestAssignZeroInitialWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.investor(t, "z@x.com")
	p := e.property(t, "Z")
	writes := e.store.Writes()

	for _, v := range []string{"0", "-5"} {
		_, err := e.ledger.AssignInvestment(ctx, inv.ID, p.ID, dec(v))
		assert.ErrorIs(t, err, apperr.ErrInvalidValue)
	}
	assert.Equal(t, writes, e.store.Writes())
	stored, err := e.ledger.GetProperty(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, stored.Status)
}

func TestAssignPreconditions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	plain := e.signup(t, "u@x.com")
	inv := e.investor(t, "i@x.com")
	p := e.property(t, "A")

	_, err := e.ledger.AssignInvestment(ctx, plain.ID, p.ID, dec("1"))
	assert.ErrorIs(t, err, apperr.ErrInvalidRole)
	_, err = e.ledger.AssignInvestment(ctx, 9999, p.ID, dec("1"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.ledger.AssignInvestment(ctx, inv.ID, 9999, dec("1"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.ledger.ArchiveProperty(ctx, p.ID)
	require.NoError(t, err)
	_, err = e.ledger.AssignInvestment(ctx, inv.ID, p.ID, dec("1"))
	assert.ErrorIs(t, err, apperr.ErrInvalidProperty)

	_, err = e.ledger.RestoreProperty(ctx, p.ID)
	require.NoError(t, err)
	res, err := e.ledger.AssignInvestment(ctx, e.admin.ID, p.ID, dec("1"))
	require.NoError(t, err, "admins may hold investments")
	assert.True(t, res.PropertyTransitioned)
}

func TestConcurrentFirstAssignment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.investor(t, "a@x.com")
	b := e.investor(t, "b@x.com")
	p := e.property(t, "Race")

	var (
		wg      sync.WaitGroup
		results [2]AssignResult
		errs    [2]error
	)
	for i, owner := range []uint64{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, owner uint64) {
			defer wg.Done()
			results[i], errs[i] = e.ledger.AssignInvestment(ctx, owner, p.ID, dec("100"))
		}(i, owner)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.True(t, results[0].PropertyTransitioned != results[1].PropertyTransitioned,
		"exactly one call performs the transition")

	all, err := e.ledger.ListInvestments(ctx, model.InvestmentFilter{PropertyID: p.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	stored, err := e.ledger.GetProperty(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInvested, stored.Status)
}

func TestPortfolioTotalsAndOwnership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.investor(t, "a@x.com")
	b := e.investor(t, "b@x.com")
	p1 := e.property(t, "One")
	p2 := e.property(t, "Two")

	r1, err := e.ledger.AssignInvestment(ctx, a.ID, p1.ID, dec("1000"))
	require.NoError(t, err)
	_, err = e.ledger.AssignInvestment(ctx, a.ID, p2.ID, dec("3000"))
	require.NoError(t, err)
	rb, err := e.ledger.AssignInvestment(ctx, b.ID, p1.ID, dec("50"))
	require.NoError(t, err)
	_, err = e.ledger.UpdateValuation(ctx, r1.Position.ID, dec("2000"))
	require.NoError(t, err)

	portfolio, err := e.ledger.GetPortfolio(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, portfolio.Positions, 2)
	assert.Equal(t, 2, portfolio.Totals.Properties)
	assert.True(t, portfolio.Totals.InitialValue.Equal(dec("4000")))
	assert.True(t, portfolio.Totals.CurrentValue.Equal(dec("5000")))
	assert.True(t, portfolio.Totals.GrowthPercent.Equal(dec("0.25")))

	got, err := e.ledger.GetInvestment(ctx, a.ID, r1.Position.ID)
	require.NoError(t, err)
	assert.Equal(t, "One", got.PropertyTitle)
	_, err = e.ledger.GetInvestment(ctx, a.ID, rb.Position.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	empty := e.investor(t, "c@x.com")
	portfolio, err = e.ledger.GetPortfolio(ctx, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, portfolio.Positions)
	assert.True(t, portfolio.Totals.GrowthPercent.IsZero())

	_, err = e.ledger.GetPortfolio(ctx, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPropertyLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ledger.CreateProperty(ctx, PropertyInput{Title: " ", Location: "x"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	p, err := e.ledger.CreateProperty(ctx, PropertyInput{
		Title: "Villa", Location: "Porto", ImageURLs: []string{" a.jpg ", "", "b.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, p.ImageURLs)
	assert.Equal(t, "a.jpg", p.PrimaryImage())

	title := "Villa Azul"
	p, err = e.ledger.UpdateProperty(ctx, p.ID, PropertyPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Villa Azul", p.Title)
	assert.Equal(t, "Porto", p.Location)
	empty := ""
	_, err = e.ledger.UpdateProperty(ctx, p.ID, PropertyPatch{Location: &empty})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = e.ledger.ArchiveProperty(ctx, p.ID)
	require.NoError(t, err)
	_, err = e.ledger.GetProperty(ctx, p.ID, false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	list, total, err := e.ledger.ListProperties(ctx, model.PropertyFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, total)
	_, total, err = e.ledger.ListProperties(ctx, model.PropertyFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	require.NoError(t, e.ledger.DeleteProperty(ctx, p.ID))
	_, err = e.ledger.GetProperty(ctx, p.ID, true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeletePropertyWithInvestmentsConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.investor(t, "i@x.com")
	p := e.property(t, "Held")
	_, err := e.ledger.AssignInvestment(ctx, inv.ID, p.ID, dec("1"))
	require.NoError(t, err)
	assert.ErrorIs(t, e.ledger.DeleteProperty(ctx, p.ID), apperr.ErrConflict)
}

func TestNewsFeed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.investor(t, "i@x.com")
	held := e.property(t, "Held")
	other := e.property(t, "Other")
	_, err := e.ledger.AssignInvestment(ctx, inv.ID, held.ID, dec("1"))
	require.NoError(t, err)

	_, err = e.news.CreateUpdate(ctx, UpdateInput{Title: "Market", Content: "Rates are down"})
	require.NoError(t, err)
	_, err = e.news.CreateUpdate(ctx, UpdateInput{PropertyID: &held.ID, Title: "Roof", Content: "Roof repaired"})
	require.NoError(t, err)
	u3, err := e.news.CreateUpdate(ctx, UpdateInput{PropertyID: &other.ID, Title: "Other", Content: "Unrelated"})
	require.NoError(t, err)
	missing := uint64(9999)
	_, err = e.news.CreateUpdate(ctx, UpdateInput{PropertyID: &missing, Title: "x", Content: "y"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.news.CreateUpdate(ctx, UpdateInput{Title: "", Content: "y"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	all, total, err := e.news.ListUpdates(ctx, nil, model.Page{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, u3.ID, all[0].ID, "newest first")

	feed, total, err := e.news.InvestorFeed(ctx, inv.ID, model.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	titles := []string{feed[0].Title, feed[1].Title}
	assert.ElementsMatch(t, []string{"Market", "Roof"}, titles)

	only, _, err := e.news.ListUpdates(ctx, &other.ID, model.Page{})
	require.NoError(t, err)
	require.Len(t, only, 1)

	edited, err := e.news.EditUpdate(ctx, u3.ID, UpdatePatch{ClearProperty: true})
	require.NoError(t, err)
	assert.Nil(t, edited.PropertyID)
	require.NoError(t, e.news.DeleteUpdate(ctx, u3.ID))
	assert.ErrorIs(t, e.news.DeleteUpdate(ctx, u3.ID), apperr.ErrNotFound)
}

func TestReadsRetryOnceOnStoreUnavailable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.property(t, "R")

	e.store.Fail(apperr.ErrStoreUnavailable)
	got, err := e.ledger.GetProperty(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	e.store.Fail(apperr.ErrStoreUnavailable, apperr.ErrStoreUnavailable)
	_, err = e.ledger.GetProperty(ctx, p.ID, false)
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
}

func TestWritesAreNotRetried(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.Fail(apperr.ErrStoreUnavailable)
	_, err := e.ledger.CreateProperty(ctx, PropertyInput{Title: "W", Location: "L"})
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	_, total, err := e.ledger.ListProperties(ctx, model.PropertyFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.events.err = errors.New("broker down")
	p := e.property(t, "Quiet")
	_, err := e.ledger.MarkSold(ctx, p.ID)
	assert.NoError(t, err)
}

var longMotivation = strings.TrimSpace(strings.Repeat("steady rental income ", 4))

func TestUpdateProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.signup(t, "prof@x.com")

	phone := " 555-0100 "
	name := " New Name "
	got, err := e.accounts.UpdateProfile(ctx, u.ID, ProfilePatch{FullName: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.FullName)
	require.NotNil(t, got.Phone)
	assert.Equal(t, "555-0100", *got.Phone)
	assert.Equal(t, model.RoleUser, got.Role)

	empty := ""
	got, err = e.accounts.UpdateProfile(ctx, u.ID, ProfilePatch{Phone: &empty})
	require.NoError(t, err)
	assert.Nil(t, got.Phone)
	assert.Equal(t, "New Name", got.FullName)

	writes := e.store.Writes()
	_, err = e.accounts.UpdateProfile(ctx, u.ID, ProfilePatch{})
	require.NoError(t, err)
	assert.Equal(t, writes, e.store.Writes(), "an empty patch writes nothing")

	blank := "  "
	_, err = e.accounts.UpdateProfile(ctx, u.ID, ProfilePatch{FullName: &blank})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.accounts.UpdateProfile(ctx, 9999, ProfilePatch{FullName: &name})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApplyValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.signup(t, "val-app@x.com")
	neg, frac := dec("-1"), dec("10.005")
	long := strings.Repeat("x", 2001)

	for name, in := range map[string]ApplicationInput{
		"short motivation": {Motivation: "please"},
		"long motivation":  {Motivation: long},
		"long experience":  {Motivation: longMotivation, Experience: &long},
		"negative amount":  {Motivation: longMotivation, InvestmentAmount: &neg},
		"sub-cent amount":  {Motivation: longMotivation, InvestmentAmount: &frac},
	} {
		_, err := e.roles.Apply(ctx, u.ID, in)
		assert.True(t, errors.Is(err, apperr.ErrInvalidInput) || errors.Is(err, apperr.ErrInvalidValue), "%s: %v", name, err)
	}
	_, total, err := e.roles.MyApplications(ctx, u.ID, model.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestApplyOnePendingAtATime(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.signup(t, "once@x.com")

	first, err := e.roles.Apply(ctx, u.ID, ApplicationInput{Motivation: longMotivation})
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationPending, first.Status)

	_, err = e.roles.Apply(ctx, u.ID, ApplicationInput{Motivation: longMotivation})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = e.roles.ReviewApplication(ctx, e.admin.ID, first.ID, ApplicationReview{Status: model.ApplicationUnderReview})
	require.NoError(t, err)
	_, err = e.roles.Apply(ctx, u.ID, ApplicationInput{Motivation: longMotivation})
	assert.ErrorIs(t, err, apperr.ErrConflict, "an application under review is still open")

	reason := "insufficient detail"
	res, err := e.roles.ReviewApplication(ctx, e.admin.ID, first.ID, ApplicationReview{Status: model.ApplicationRejected, RejectionReason: &reason})
	require.NoError(t, err)
	assert.True(t, res.Transition.NoOp)
	require.NotNil(t, res.Application.RejectionReason)
	assert.Equal(t, reason, *res.Application.RejectionReason)

	second, err := e.roles.Apply(ctx, u.ID, ApplicationInput{Motivation: longMotivation})
	require.NoError(t, err, "a rejected applicant may apply again")

	items, total, err := e.roles.MyApplications(ctx, u.ID, model.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, second.ID, items[0].ID, "newest first")

	inv := e.investor(t, "already@x.com")
	_, err = e.roles.Apply(ctx, inv.ID, ApplicationInput{Motivation: longMotivation})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestEditApplication(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.signup(t, "edit@x.com")
	other := e.signup(t, "nosy@x.com")
	app, err := e.roles.Apply(ctx, u.ID, ApplicationInput{Motivation: longMotivation})
	require.NoError(t, err)

	amount := dec("2500.50")
	exp := "ten years of rentals"
	got, err := e.roles.EditApplication(ctx, u.ID, app.ID, ApplicationPatch{InvestmentAmount: &amount, Experience: &exp})
	require.NoError(t, err)
	require.NotNil(t, got.InvestmentAmount)
	assert.True(t, got.InvestmentAmount.Equal(amount))
	assert.Equal(t, longMotivation, got.Motivation)

	_, err = e.roles.EditApplication(ctx, other.ID, app.ID, ApplicationPatch{Experience: &exp})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.roles.ReviewApplication(ctx, e.admin.ID, app.ID, ApplicationReview{Status: model.ApplicationUnderReview})
	require.NoError(t, err)
	_, err = e.roles.EditApplication(ctx, u.ID, app.ID, ApplicationPatch{Experience: &exp})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestApproveApplicationPromotesInSameWrite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.signup(t, "approve@x.com")
	app, err := e.roles.Apply(ctx, u.ID, ApplicationInput{Motivation: longMotivation})
	require.NoError(t, err)
	writes := e.store.Writes()

	notes := "welcome aboard"
	res, err := e.roles.ReviewApplication(ctx, e.admin.ID, app.ID, ApplicationReview{Status: model.ApplicationApproved, AdminNotes: &notes})
	require.NoError(t, err)
	assert.Equal(t, writes+1, e.store.Writes(), "status and role commit together")
	assert.Equal(t, model.ApplicationApproved, res.Application.Status)
	require.NotNil(t, res.Application.ReviewedBy)
	assert.Equal(t, e.admin.ID, *res.Application.ReviewedBy)
	assert.NotNil(t, res.Application.ReviewedAt)
	assert.False(t, res.Transition.NoOp)
	assert.Equal(t, model.RoleUser, res.Transition.From)
	assert.Equal(t, model.RoleInvestor, res.Transition.To)

	stored, err := e.roles.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleInvestor, stored.Role)

	_, err = e.roles.ReviewApplication(ctx, e.admin.ID, app.ID, ApplicationReview{Status: model.ApplicationRejected})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = e.roles.ReviewApplication(ctx, e.admin.ID, app.ID, ApplicationReview{Status: model.ApplicationPending})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.roles.ReviewApplication(ctx, e.admin.ID, 9999, ApplicationReview{Status: model.ApplicationApproved})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Contains(t, e.events.types(), queue.ApplicationSubmitted)
	assert.Equal(t, []string{queue.UserRoleChanged, queue.ApplicationReviewed}, e.events.types()[1:])
}

func TestApproveKeepsHigherRole(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.signup(t, "raised@x.com")
	app, err := e.roles.Apply(ctx, u.ID, ApplicationInput{Motivation: longMotivation})
	require.NoError(t, err)
	_, err = e.roles.Promote(ctx, u.ID, model.RoleAdmin)
	require.NoError(t, err)

	res, err := e.roles.ReviewApplication(ctx, e.admin.ID, app.ID, ApplicationReview{Status: model.ApplicationApproved})
	require.NoError(t, err)
	assert.True(t, res.Transition.NoOp)
	assert.Equal(t, model.RoleAdmin, res.Transition.User.Role)
}

func TestReviewFailureWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.signup(t, "flaky@x.com")
	app, err := e.roles.Apply(ctx, u.ID, ApplicationInput{Motivation: longMotivation})
	require.NoError(t, err)

	e.store.Fail(apperr.ErrStoreUnavailable)
	_, err = e.roles.ReviewApplication(ctx, e.admin.ID, app.ID, ApplicationReview{Status: model.ApplicationApproved})
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)

	stored, err := e.roles.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationPending, stored.Status)
	user, err := e.roles.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, user.Role)
}

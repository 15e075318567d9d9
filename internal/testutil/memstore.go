// Package testutil provides an in-memory implementation of the MySQL
// stores so that service, middleware and handler tests run without a
// database. A single mutex stands in for row locks: every call, including
// the transactional ones, runs under it.
package testutil

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
)

// Store holds every table.
type Store struct {
	mu  sync.Mutex
	Now func() time.Time

	seq         uint64
	users       map[uint64]model.User
	tokens      map[string]model.RefreshToken
	properties  map[uint64]model.Property
	investments map[uint64]model.Investment
	updates     map[uint64]model.Update
	apps        map[uint64]model.Application

	failures []error
	writes   int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Now:         time.Now,
		users:       map[uint64]model.User{},
		tokens:      map[string]model.RefreshToken{},
		properties:  map[uint64]model.Property{},
		investments: map[uint64]model.Investment{},
		updates:     map[uint64]model.Update{},
		apps:        map[uint64]model.Application{},
	}
}

// Fail makes the next len(errs) store calls return those errors in order.
func (s *Store) Fail(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Writes returns the number of committed mutations.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// lock acquires the store and pops an injected failure, if any. On
// success the caller must unlock; on error the store is already unlocked.
func (s *Store) lock(ctx context.Context) error {
	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) nextID() uint64 {
	s.seq++
	return s.seq
}

func (s *Store) now() time.Time { return s.Now().UTC() }

func paginate[T any](items []T, p model.Page) []T {
	p = p.Normalize()
	off := p.Offset()
	if off >= len(items) {
		return []T{}
	}
	end := off + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}

func cloneProperty(p model.Property) model.Property {
	p.ImageURLs = append([]string{}, p.ImageURLs...)
	return p
}

// Users returns the credential store view.
func (s *Store) Users() *Users { return &Users{s} }

// Tokens returns the refresh token store view.
func (s *Store) Tokens() *Tokens { return &Tokens{s} }

// Properties returns the property store view.
func (s *Store) Properties() *Properties { return &Properties{s} }

// Investments returns the investment store view.
func (s *Store) Investments() *Investments { return &Investments{s} }

// Updates returns the news store view.
func (s *Store) Updates() *Updates { return &Updates{s} }

// Applications returns the investment application store view.
func (s *Store) Applications() *Applications { return &Applications{s} }

// Users mirrors repository.UserRepo.
type Users struct{ s *Store }

func (r *Users) Create(ctx context.Context, u *model.User) error {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	u.Email = model.NormalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return apperr.ErrDuplicateEmail
		}
	}
	u.ID = s.nextID()
	u.CreatedAt, u.UpdatedAt = s.now(), s.now()
	s.users[u.ID] = *u
	s.writes++
	return nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (model.User, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return model.User{}, err
	}
	defer s.mu.Unlock()
	email = model.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, apperr.ErrNotFound
}

func (r *Users) GetByID(ctx context.Context, id uint64) (model.User, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return model.User{}, err
	}
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, apperr.ErrNotFound
	}
	return u, nil
}

func (r *Users) List(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return nil, 0, err
	}
	defer s.mu.Unlock()
	out := []model.User{}
	for _, u := range s.users {
		if f.Role == nil || u.Role == *f.Role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Page), len(out), nil
}

func (r *Users) Mutate(ctx context.Context, id uint64, fn func(u *model.User, activeAdmins int) error) (model.User, model.User, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return model.User{}, model.User{}, err
	}
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.User{}, apperr.ErrNotFound
	}
	admins := 0
	for _, other := range s.users {
		if other.Role == model.RoleAdmin && other.IsActive {
			admins++
		}
	}
	next := u
	if err := fn(&next, admins); err != nil {
		return model.User{}, model.User{}, err
	}
	after, changed := applyUser(u, next)
	if !changed {
		return u, u, nil
	}
	after.UpdatedAt = s.now()
	s.users[id] = after
	s.writes++
	return u, after, nil
}

// applyUser copies the mutable columns of next onto u.
func applyUser(u, next model.User) (model.User, bool) {
	samePhone := (u.Phone == nil && next.Phone == nil) ||
		(u.Phone != nil && next.Phone != nil && *u.Phone == *next.Phone)
	if next.Role == u.Role && next.IsActive == u.IsActive && next.FullName == u.FullName && samePhone {
		return u, false
	}
	u.Role, u.IsActive, u.FullName = next.Role, next.IsActive, next.FullName
	if next.Phone != nil {
		p := *next.Phone
		u.Phone = &p
	} else {
		u.Phone = nil
	}
	return u, true
}

// Tokens mirrors repository.TokenRepo.
type Tokens struct{ s *Store }

func (r *Tokens) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if _, dup := s.tokens[tokenHash]; dup {
		return fmt.Errorf("duplicate token hash")
	}
	s.tokens[tokenHash] = model.RefreshToken{
		ID: s.nextID(), UserID: userID, TokenHash: tokenHash, ExpiresAt: exp.UTC(), CreatedAt: s.now(),
	}
	s.writes++
	return nil
}

func (r *Tokens) ConsumeRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || !t.ExpiresAt.After(now) {
		return 0, apperr.ErrNotFound
	}
	at := now.UTC()
	t.RevokedAt = &at
	s.tokens[tokenHash] = t
	s.writes++
	return t.UserID, nil
}

func (r *Tokens) RevokeByHash(ctx context.Context, tokenHash string) error {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok || t.RevokedAt != nil {
		return apperr.ErrNotFound
	}
	at := s.now()
	t.RevokedAt = &at
	s.tokens[tokenHash] = t
	s.writes++
	return nil
}

func (r *Tokens) RevokeAllForUser(ctx context.Context, userID uint64) error {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	at := s.now()
	for h, t := range s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &at
			s.tokens[h] = t
		}
	}
	s.writes++
	return nil
}

// Active counts the unrevoked, unexpired refresh tokens of a user.
func (r *Tokens) Active(userID uint64) int {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID && t.RevokedAt == nil && t.ExpiresAt.After(s.now()) {
			n++
		}
	}
	return n
}

// Properties mirrors repository.PropertyRepo.
type Properties struct{ s *Store }

func (r *Properties) Create(ctx context.Context, p *model.Property) error {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if p.Status == "" {
		p.Status = model.StatusAvailable
	}
	if p.RecordState == "" {
		p.RecordState = model.RecordActive
	}
	if p.ImageURLs == nil {
		p.ImageURLs = []string{}
	}
	p.ID = s.nextID()
	p.CreatedAt, p.UpdatedAt = s.now(), s.now()
	s.properties[p.ID] = cloneProperty(*p)
	s.writes++
	return nil
}

func (r *Properties) GetByID(ctx context.Context, id uint64) (model.Property, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return model.Property{}, err
	}
	defer s.mu.Unlock()
	p, ok := s.properties[id]
	if !ok {
		return model.Property{}, apperr.ErrNotFound
	}
	return cloneProperty(p), nil
}

func (r *Properties) List(ctx context.Context, f model.PropertyFilter) ([]model.Property, int, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return nil, 0, err
	}
	defer s.mu.Unlock()
	out := []model.Property{}
	for _, p := range s.properties {
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if !f.IncludeArchived && p.Archived() {
			continue
		}
		out = append(out, cloneProperty(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Page), len(out), nil
}

func (r *Properties) Mutate(ctx context.Context, id uint64, fn func(p *model.Property) error) (model.Property, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return model.Property{}, err
	}
	defer s.mu.Unlock()
	p, ok := s.properties[id]
	if !ok {
		return model.Property{}, apperr.ErrNotFound
	}
	next := cloneProperty(p)
	if err := fn(&next); err != nil {
		return model.Property{}, err
	}
	next.ID, next.CreatedAt, next.UpdatedAt = p.ID, p.CreatedAt, s.now()
	s.properties[id] = cloneProperty(next)
	s.writes++
	return next, nil
}

func (r *Properties) Delete(ctx context.Context, id uint64) error {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if _, ok := s.properties[id]; !ok {
		return apperr.ErrNotFound
	}
	for _, inv := range s.investments {
		if inv.PropertyID == id {
			return fmt.Errorf("%w: property %d has investments", apperr.ErrConflict, id)
		}
	}
	delete(s.properties, id)
	for uid, u := range s.updates {
		if u.PropertyID != nil && *u.PropertyID == id {
			delete(s.updates, uid)
		}
	}
	s.writes++
	return nil
}

// Investments mirrors repository.InvestmentRepo.
type Investments struct{ s *Store }

func (r *Investments) Assign(ctx context.Context, inv *model.Investment, check func(u model.User, p model.Property) error) (bool, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	u, ok := s.users[inv.UserID]
	if !ok {
		return false, fmt.Errorf("user %d: %w", inv.UserID, apperr.ErrNotFound)
	}
	p, ok := s.properties[inv.PropertyID]
	if !ok {
		return false, fmt.Errorf("property %d: %w", inv.PropertyID, apperr.ErrNotFound)
	}
	if err := check(u, cloneProperty(p)); err != nil {
		return false, err
	}
	inv.ID = s.nextID()
	inv.CreatedAt, inv.UpdatedAt = s.now(), s.now()
	s.investments[inv.ID] = *inv
	transitioned := false
	if p.Status == model.StatusAvailable {
		p.Status = model.StatusInvested
		p.UpdatedAt = s.now()
		s.properties[p.ID] = p
		transitioned = true
	}
	s.writes++
	return transitioned, nil
}

func (r *Investments) GetByID(ctx context.Context, id uint64) (model.Investment, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return model.Investment{}, err
	}
	defer s.mu.Unlock()
	inv, ok := s.investments[id]
	if !ok {
		return model.Investment{}, apperr.ErrNotFound
	}
	return inv, nil
}

func (r *Investments) UpdateCurrentValue(ctx context.Context, id uint64, value decimal.Decimal) (model.Investment, model.Investment, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return model.Investment{}, model.Investment{}, err
	}
	defer s.mu.Unlock()
	before, ok := s.investments[id]
	if !ok {
		return model.Investment{}, model.Investment{}, fmt.Errorf("investment %d: %w", id, apperr.ErrNotFound)
	}
	after := before
	after.CurrentValue = value
	after.UpdatedAt = s.now()
	s.investments[id] = after
	s.writes++
	return before, after, nil
}

func (r *Investments) List(ctx context.Context, f model.InvestmentFilter) ([]model.InvestmentDetail, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	out := []model.InvestmentDetail{}
	for _, inv := range s.investments {
		if f.UserID != 0 && inv.UserID != f.UserID {
			continue
		}
		if f.PropertyID != 0 && inv.PropertyID != f.PropertyID {
			continue
		}
		p := s.properties[inv.PropertyID]
		out = append(out, model.InvestmentDetail{
			Investment:       inv,
			PropertyTitle:    p.Title,
			PropertyLocation: p.Location,
			PropertyStatus:   p.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Updates mirrors repository.UpdateRepo.
type Updates struct{ s *Store }

func (r *Updates) Create(ctx context.Context, u *model.Update) error {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if u.PropertyID != nil {
		if _, ok := s.properties[*u.PropertyID]; !ok {
			return fmt.Errorf("property %d: %w", *u.PropertyID, apperr.ErrNotFound)
		}
	}
	u.ID = s.nextID()
	u.CreatedAt, u.UpdatedAt = s.now(), s.now()
	s.updates[u.ID] = *u
	s.writes++
	return nil
}

func (r *Updates) GetByID(ctx context.Context, id uint64) (model.Update, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return model.Update{}, err
	}
	defer s.mu.Unlock()
	u, ok := s.updates[id]
	if !ok {
		return model.Update{}, apperr.ErrNotFound
	}
	return u, nil
}

func (r *Updates) Save(ctx context.Context, u *model.Update) error {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	old, ok := s.updates[u.ID]
	if !ok {
		return fmt.Errorf("update %d: %w", u.ID, apperr.ErrNotFound)
	}
	u.CreatedAt, u.UpdatedAt = old.CreatedAt, s.now()
	s.updates[u.ID] = *u
	s.writes++
	return nil
}

func (r *Updates) Delete(ctx context.Context, id uint64) error {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if _, ok := s.updates[id]; !ok {
		return fmt.Errorf("update %d: %w", id, apperr.ErrNotFound)
	}
	delete(s.updates, id)
	s.writes++
	return nil
}

func (r *Updates) List(ctx context.Context, f model.UpdateFilter) ([]model.Update, int, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return nil, 0, err
	}
	defer s.mu.Unlock()
	want := map[uint64]bool{}
	for _, id := range f.PropertyIDs {
		want[id] = true
	}
	all := len(f.PropertyIDs) == 0 && !f.IncludeGeneral
	out := []model.Update{}
	for _, u := range s.updates {
		switch {
		case all:
		case u.PropertyID == nil && f.IncludeGeneral:
		case u.PropertyID != nil && want[*u.PropertyID]:
		default:
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Page), len(out), nil
}

// Applications mirrors repository.ApplicationRepo.
type Applications struct{ s *Store }

func cloneApplication(a model.Application) model.Application {
	if a.InvestmentAmount != nil {
		v := *a.InvestmentAmount
		a.InvestmentAmount = &v
	}
	return a
}

func (s *Store) applicationDetail(a model.Application) model.ApplicationDetail {
	d := model.ApplicationDetail{Application: cloneApplication(a)}
	if u, ok := s.users[a.UserID]; ok {
		d.UserName, d.UserEmail = u.FullName, u.Email
	}
	if a.ReviewedBy != nil {
		if r, ok := s.users[*a.ReviewedBy]; ok {
			name := r.FullName
			d.ReviewerName = &name
		}
	}
	return d
}

func (r *Applications) Create(ctx context.Context, app *model.Application, check func(u model.User, open int) error) error {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	u, ok := s.users[app.UserID]
	if !ok {
		return fmt.Errorf("user %d: %w", app.UserID, apperr.ErrNotFound)
	}
	open := 0
	for _, a := range s.apps {
		if a.UserID == app.UserID && !a.Status.Final() {
			open++
		}
	}
	if err := check(u, open); err != nil {
		return err
	}
	if app.Status == "" {
		app.Status = model.ApplicationPending
	}
	app.ID = s.nextID()
	app.CreatedAt, app.UpdatedAt = s.now(), s.now()
	s.apps[app.ID] = cloneApplication(*app)
	s.writes++
	return nil
}

func (r *Applications) GetByID(ctx context.Context, id uint64) (model.ApplicationDetail, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return model.ApplicationDetail{}, err
	}
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return model.ApplicationDetail{}, fmt.Errorf("application %d: %w", id, apperr.ErrNotFound)
	}
	return s.applicationDetail(a), nil
}

func (r *Applications) List(ctx context.Context, f model.ApplicationFilter) ([]model.ApplicationDetail, int, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return nil, 0, err
	}
	defer s.mu.Unlock()
	out := []model.ApplicationDetail{}
	for _, a := range s.apps {
		if f.UserID != 0 && a.UserID != f.UserID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, s.applicationDetail(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Page), len(out), nil
}

func (r *Applications) Edit(ctx context.Context, id uint64, fn func(a *model.Application) error) (model.Application, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return model.Application{}, err
	}
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return model.Application{}, fmt.Errorf("application %d: %w", id, apperr.ErrNotFound)
	}
	next := cloneApplication(a)
	if err := fn(&next); err != nil {
		return model.Application{}, err
	}
	a.Motivation, a.InvestmentAmount, a.Experience = next.Motivation, next.InvestmentAmount, next.Experience
	a.UpdatedAt = s.now()
	s.apps[id] = cloneApplication(a)
	s.writes++
	return cloneApplication(a), nil
}

func (r *Applications) Review(ctx context.Context, id uint64, fn func(a *model.Application, u *model.User, activeAdmins int) error) (model.Application, model.User, model.User, error) {
	s := r.s
	if err := s.lock(ctx); err != nil {
		return model.Application{}, model.User{}, model.User{}, err
	}
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return model.Application{}, model.User{}, model.User{}, fmt.Errorf("application %d: %w", id, apperr.ErrNotFound)
	}
	u, ok := s.users[a.UserID]
	if !ok {
		return model.Application{}, model.User{}, model.User{}, fmt.Errorf("user %d: %w", a.UserID, apperr.ErrNotFound)
	}
	admins := 0
	for _, other := range s.users {
		if other.Role == model.RoleAdmin && other.IsActive {
			admins++
		}
	}
	next, nextUser := cloneApplication(a), u
	if err := fn(&next, &nextUser, admins); err != nil {
		return model.Application{}, model.User{}, model.User{}, err
	}
	a.Status, a.ReviewedBy, a.ReviewedAt = next.Status, next.ReviewedBy, next.ReviewedAt
	a.AdminNotes, a.RejectionReason = next.AdminNotes, next.RejectionReason
	a.UpdatedAt = s.now()
	s.apps[id] = cloneApplication(a)
	after := u
	if nextUser.Role != u.Role {
		after.Role, after.UpdatedAt = nextUser.Role, s.now()
		s.users[u.ID] = after
	}
	s.writes++
	return cloneApplication(a), u, after, nil
}

// Logger returns a gommon logger that writes nowhere.
func Logger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

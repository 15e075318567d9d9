package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/queue"
)

// Ledger owns properties and investments. Growth figures are derived on
// every read through model.ComputeGrowth and never stored.
type Ledger struct {
	users       UserStore
	properties  PropertyStore
	investments InvestmentStore
	events      EventPublisher
	policy      Policy
	log         Logger
}

// NewLedger wires a Ledger.
func NewLedger(users UserStore, properties PropertyStore, investments InvestmentStore, events EventPublisher, policy Policy, log Logger) *Ledger {
	return &Ledger{
		users:       users,
		properties:  properties,
		investments: investments,
		events:      events,
		policy:      policy.normalize(),
		log:         log,
	}
}

// Position is an investment with its property summary and derived growth.
type Position struct {
	model.InvestmentDetail
	Growth model.Growth
}

func newPosition(d model.InvestmentDetail) (Position, error) {
	g, err := d.Investment.Growth()
	if err != nil {
		return Position{}, fmt.Errorf("investment %d: %w", d.ID, err)
	}
	return Position{InvestmentDetail: d, Growth: g}, nil
}

// Portfolio is every position of one investor plus totals.
type Portfolio struct {
	UserID    uint64
	Positions []Position
	Totals    model.PortfolioTotals
}

// PropertyInput carries the fields of a new property.
type PropertyInput struct {
	Title       string
	Location    string
	Description string
	ImageURLs   []string
}

// PropertyPatch carries the fields to change; nil fields are left alone.
// Status is not patchable: it moves only through assignment and MarkSold.
type PropertyPatch struct {
	Title       *string
	Location    *string
	Description *string
	ImageURLs   *[]string
}

func cleanImages(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// CreateProperty adds an AVAILABLE, ACTIVE property.
func (l *Ledger) CreateProperty(ctx context.Context, in PropertyInput) (model.Property, error) {
	p := model.Property{
		Title:       strings.TrimSpace(in.Title),
		Location:    strings.TrimSpace(in.Location),
		Description: strings.TrimSpace(in.Description),
		ImageURLs:   cleanImages(in.ImageURLs),
		Status:      model.StatusAvailable,
		RecordState: model.RecordActive,
	}
	if p.Title == "" || p.Location == "" {
		return model.Property{}, fmt.Errorf("%w: title and location are required", apperr.ErrInvalidInput)
	}
	if err := exec(ctx, l.policy, func(ctx context.Context) error { return l.properties.Create(ctx, &p) }); err != nil {
		return model.Property{}, err
	}
	l.log.Infof("ledger: property %d created", p.ID)
	return p, nil
}

func (l *Ledger) mutateProperty(ctx context.Context, id uint64, fn func(p *model.Property) error) (model.Property, error) {
	return write(ctx, l.policy, func(ctx context.Context) (model.Property, error) {
		return l.properties.Mutate(ctx, id, fn)
	})
}

// UpdateProperty applies a partial edit.
func (l *Ledger) UpdateProperty(ctx context.Context, id uint64, patch PropertyPatch) (model.Property, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return model.Property{}, fmt.Errorf("%w: title cannot be empty", apperr.ErrInvalidInput)
	}
	if patch.Location != nil && strings.TrimSpace(*patch.Location) == "" {
		return model.Property{}, fmt.Errorf("%w: location cannot be empty", apperr.ErrInvalidInput)
	}
	return l.mutateProperty(ctx, id, func(p *model.Property) error {
		if patch.Title != nil {
			p.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Location != nil {
			p.Location = strings.TrimSpace(*patch.Location)
		}
		if patch.Description != nil {
			p.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.ImageURLs != nil {
			p.ImageURLs = cleanImages(*patch.ImageURLs)
		}
		return nil
	})
}

// DeleteProperty removes a property without investment history. A
// property with investments fails with apperr.ErrConflict; archive it.
func (l *Ledger) DeleteProperty(ctx context.Context, id uint64) error {
	return exec(ctx, l.policy, func(ctx context.Context) error { return l.properties.Delete(ctx, id) })
}

// ArchiveProperty hides a property from the public listing and closes it
// to new investments. Archiving twice is a no-op.
func (l *Ledger) ArchiveProperty(ctx context.Context, id uint64) (model.Property, error) {
	return l.mutateProperty(ctx, id, func(p *model.Property) error {
		p.RecordState = model.RecordArchived
		return nil
	})
}

// RestoreProperty reverses ArchiveProperty.
func (l *Ledger) RestoreProperty(ctx context.Context, id uint64) (model.Property, error) {
	return l.mutateProperty(ctx, id, func(p *model.Property) error {
		p.RecordState = model.RecordActive
		return nil
	})
}

// MarkSold moves an AVAILABLE or INVESTED property to SOLD. SOLD is
// terminal; marking it again fails with apperr.ErrConflict.
func (l *Ledger) MarkSold(ctx context.Context, id uint64) (model.Property, error) {
	var from model.PropertyStatus
	p, err := l.mutateProperty(ctx, id, func(p *model.Property) error {
		if p.Status == model.StatusSold {
			return fmt.Errorf("%w: property %d is already sold", apperr.ErrConflict, p.ID)
		}
		from = p.Status
		p.Status = model.StatusSold
		return nil
	})
	if err != nil {
		return model.Property{}, err
	}
	l.log.Infof("ledger: property %d %s -> SOLD", p.ID, from)
	publish(ctx, l.events, l.log, queue.LedgerEvent{
		Type:           queue.PropertySold,
		OccurredAt:     time.Now().UTC(),
		PropertyID:     p.ID,
		PropertyStatus: string(p.Status),
	})
	return p, nil
}

// GetProperty returns one property. Archived properties are hidden unless
// includeArchived is set.
func (l *Ledger) GetProperty(ctx context.Context, id uint64, includeArchived bool) (model.Property, error) {
	p, err := read(ctx, l.policy, func(ctx context.Context) (model.Property, error) {
		return l.properties.GetByID(ctx, id)
	})
	if err != nil {
		return model.Property{}, err
	}
	if p.Archived() && !includeArchived {
		return model.Property{}, fmt.Errorf("property %d: %w", id, apperr.ErrNotFound)
	}
	return p, nil
}

// ListProperties returns one page of properties and the total count.
func (l *Ledger) ListProperties(ctx context.Context, f model.PropertyFilter) ([]model.Property, int, error) {
	type page struct {
		items []model.Property
		total int
	}
	p, err := read(ctx, l.policy, func(ctx context.Context) (page, error) {
		items, total, err := l.properties.List(ctx, f)
		return page{items, total}, err
	})
	return p.items, p.total, err
}

// AssignResult is returned by AssignInvestment. PropertyTransitioned is
// true for exactly one assignment per property: the one that moved it
// from AVAILABLE to INVESTED.
type AssignResult struct {
	Position             Position
	PropertyTransitioned bool
}

// AssignInvestment records an investment of initial for userID in
// propertyID. The owner must be an active INVESTOR or ADMIN and the
// property must be neither SOLD nor archived. A non-positive initial
// value, or one the store cannot hold exactly, fails with
// apperr.ErrInvalidValue before the store is touched. The call is never
// retried.
func (l *Ledger) AssignInvestment(ctx context.Context, userID, propertyID uint64, initial decimal.Decimal) (AssignResult, error) {
	if !initial.IsPositive() {
		return AssignResult{}, fmt.Errorf("%w: initial value must be greater than zero", apperr.ErrInvalidValue)
	}
	if err := model.CheckMoney("initial value", initial); err != nil {
		return AssignResult{}, err
	}
	inv := model.Investment{
		UserID:       userID,
		PropertyID:   propertyID,
		InitialValue: initial,
		CurrentValue: initial,
	}
	var target model.Property
	check := func(u model.User, p model.Property) error {
		// Property state is checked first: a SOLD property rejects every
		// owner.
		if p.Status == model.StatusSold {
			return fmt.Errorf("%w: property %d is sold", apperr.ErrInvalidProperty, p.ID)
		}
		if p.Archived() {
			return fmt.Errorf("%w: property %d is archived", apperr.ErrInvalidProperty, p.ID)
		}
		if !u.IsActive {
			return fmt.Errorf("%w: user %d is disabled", apperr.ErrInvalidRole, u.ID)
		}
		if !u.Role.CanHoldInvestments() {
			return fmt.Errorf("%w: user %d has role %s", apperr.ErrInvalidRole, u.ID, u.Role)
		}
		target = p
		return nil
	}
	transitioned, err := write(ctx, l.policy, func(ctx context.Context) (bool, error) {
		return l.investments.Assign(ctx, &inv, check)
	})
	if err != nil {
		return AssignResult{}, err
	}
	if transitioned {
		target.Status = model.StatusInvested
	}
	pos, err := newPosition(model.InvestmentDetail{
		Investment:       inv,
		PropertyTitle:    target.Title,
		PropertyLocation: target.Location,
		PropertyStatus:   target.Status,
	})
	if err != nil {
		return AssignResult{}, err
	}
	l.log.Infof("ledger: investment %d assigned user=%d property=%d initial=%s first=%t",
		inv.ID, userID, propertyID, initial.String(), transitioned)
	ev := queue.LedgerEvent{
		Type:         queue.InvestmentAssigned,
		OccurredAt:   time.Now().UTC(),
		UserID:       userID,
		PropertyID:   propertyID,
		InvestmentID: inv.ID,
		InitialValue: initial.String(),
	}
	if transitioned {
		ev.PropertyStatus = string(model.StatusInvested)
	}
	publish(ctx, l.events, l.log, ev)
	return AssignResult{Position: pos, PropertyTransitioned: transitioned}, nil
}

// UpdateValuation sets the current value of an investment. Zero is a
// valid valuation (total loss); negative values and values with more
// than two decimal places fail with apperr.ErrInvalidValue. The previous
// value reported in the event is the one overwritten under the row lock.
func (l *Ledger) UpdateValuation(ctx context.Context, investmentID uint64, value decimal.Decimal) (Position, error) {
	if value.IsNegative() {
		return Position{}, fmt.Errorf("%w: value cannot be negative", apperr.ErrInvalidValue)
	}
	if err := model.CheckMoney("value", value); err != nil {
		return Position{}, err
	}
	var prev model.Investment
	inv, err := write(ctx, l.policy, func(ctx context.Context) (model.Investment, error) {
		before, after, err := l.investments.UpdateCurrentValue(ctx, investmentID, value)
		prev = before
		return after, err
	})
	if err != nil {
		return Position{}, err
	}
	p, err := read(ctx, l.policy, func(ctx context.Context) (model.Property, error) {
		return l.properties.GetByID(ctx, inv.PropertyID)
	})
	if err != nil {
		return Position{}, err
	}
	pos, err := newPosition(model.InvestmentDetail{
		Investment:       inv,
		PropertyTitle:    p.Title,
		PropertyLocation: p.Location,
		PropertyStatus:   p.Status,
	})
	if err != nil {
		return Position{}, err
	}
	publish(ctx, l.events, l.log, queue.LedgerEvent{
		Type:          queue.ValuationUpdated,
		OccurredAt:    time.Now().UTC(),
		UserID:        inv.UserID,
		PropertyID:    inv.PropertyID,
		InvestmentID:  inv.ID,
		PreviousValue: prev.CurrentValue.String(),
		CurrentValue:  inv.CurrentValue.String(),
	})
	return pos, nil
}

func (l *Ledger) positions(ctx context.Context, f model.InvestmentFilter) ([]Position, error) {
	details, err := read(ctx, l.policy, func(ctx context.Context) ([]model.InvestmentDetail, error) {
		return l.investments.List(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(details))
	for _, d := range details {
		pos, err := newPosition(d)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

// GetPortfolio returns every position of the investor with totals.
// Figures are recomputed from the stored values on each call.
func (l *Ledger) GetPortfolio(ctx context.Context, investorID uint64) (Portfolio, error) {
	if _, err := read(ctx, l.policy, func(ctx context.Context) (model.User, error) {
		return l.users.GetByID(ctx, investorID)
	}); err != nil {
		return Portfolio{}, err
	}
	positions, err := l.positions(ctx, model.InvestmentFilter{UserID: investorID})
	if err != nil {
		return Portfolio{}, err
	}
	invs := make([]model.Investment, len(positions))
	for i, p := range positions {
		invs[i] = p.Investment
	}
	return Portfolio{UserID: investorID, Positions: positions, Totals: model.Totals(invs)}, nil
}

// GetInvestment returns one position owned by investorID. Another owner's
// investment is reported as not found.
func (l *Ledger) GetInvestment(ctx context.Context, investorID, investmentID uint64) (Position, error) {
	positions, err := l.positions(ctx, model.InvestmentFilter{UserID: investorID})
	if err != nil {
		return Position{}, err
	}
	for _, p := range positions {
		if p.ID == investmentID {
			return p, nil
		}
	}
	return Position{}, fmt.Errorf("investment %d: %w", investmentID, apperr.ErrNotFound)
}

// ListInvestments returns positions matching f.
func (l *Ledger) ListInvestments(ctx context.Context, f model.InvestmentFilter) ([]Position, error) {
	return l.positions(ctx, f)
}

package model

import "github.com/shopspring/decimal"

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Page is a 1-based pagination request.
type Page struct {
	Page     int
	PageSize int
}

// Normalize clamps the page into a valid range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// UserFilter narrows a user listing. A nil Role lists every role.
type UserFilter struct {
	Role *Role
	Page Page
}

// PropertyFilter narrows a property listing. A nil Status lists every
// status; archived rows are skipped unless IncludeArchived is set.
type PropertyFilter struct {
	Status          *PropertyStatus
	IncludeArchived bool
	Page            Page
}

// InvestmentFilter selects investments by owner and/or property. Zero
// values match everything.
type InvestmentFilter struct {
	UserID     uint64
	PropertyID uint64
}

// UpdateFilter selects news items. PropertyIDs restricts the result to
// the given properties; IncludeGeneral adds items without a property.
// With no PropertyIDs and IncludeGeneral false every item matches.
type UpdateFilter struct {
	PropertyIDs    []uint64
	IncludeGeneral bool
	Page           Page
}

// InvestmentDetail is an investment joined with the property fields shown
// next to it in portfolios and admin listings.
type InvestmentDetail struct {
	Investment
	PropertyTitle    string
	PropertyLocation string
	PropertyStatus   PropertyStatus
}

// PortfolioTotals aggregates a set of investments.
type PortfolioTotals struct {
	Count         int
	Properties    int
	InitialValue  decimal.Decimal
	CurrentValue  decimal.Decimal
	GrowthAmount  decimal.Decimal
	GrowthPercent decimal.Decimal
}

// Totals sums the investments. GrowthPercent is zero when nothing has
// been invested.
func Totals(invs []Investment) PortfolioTotals {
	t := PortfolioTotals{
		Count:         len(invs),
		InitialValue:  decimal.Zero,
		CurrentValue:  decimal.Zero,
		GrowthAmount:  decimal.Zero,
		GrowthPercent: decimal.Zero,
	}
	seen := make(map[uint64]struct{}, len(invs))
	for _, inv := range invs {
		t.InitialValue = t.InitialValue.Add(inv.InitialValue)
		t.CurrentValue = t.CurrentValue.Add(inv.CurrentValue)
		seen[inv.PropertyID] = struct{}{}
	}
	t.Properties = len(seen)
	if g, err := ComputeGrowth(t.InitialValue, t.CurrentValue); err == nil {
		t.GrowthAmount = g.Amount
		t.GrowthPercent = g.Percent
	}
	return t
}

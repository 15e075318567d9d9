package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/estate-ledger/internal/apperr"
)

// Investment links an investor to a property. InitialValue is fixed at
// creation; CurrentValue is the latest admin valuation. Growth is never
// stored, see ComputeGrowth.
type Investment struct {
	ID           uint64          // investments.id
	UserID       uint64          // investments.user_id
	PropertyID   uint64          // investments.property_id
	InitialValue decimal.Decimal // investments.initial_value
	CurrentValue decimal.Decimal // investments.current_value
	CreatedAt    time.Time       // investments.created_at
	UpdatedAt    time.Time       // investments.updated_at
}

// MoneyScale is the number of decimal places stored for a money value.
const MoneyScale = 2

// MaxMoney is the exclusive upper bound of a stored money value, the
// range of a DECIMAL(18,2) column.
var MaxMoney = decimal.New(1, 16)

// CheckMoney rejects values the investments columns cannot hold exactly:
// more than two decimal places or a magnitude of 1e16 or more. Values are
// never rounded.
func CheckMoney(field string, v decimal.Decimal) error {
	if !v.Equal(v.Truncate(MoneyScale)) {
		return fmt.Errorf("%w: %s allows at most %d decimal places", apperr.ErrInvalidValue, field, MoneyScale)
	}
	if v.Abs().Cmp(MaxMoney) >= 0 {
		return fmt.Errorf("%w: %s must be below %s", apperr.ErrInvalidValue, field, MaxMoney.String())
	}
	return nil
}

// Growth holds the derived financial metrics of an investment. Percent is
// a fraction: 0.25 means the value grew by a quarter.
type Growth struct {
	Amount  decimal.Decimal
	Percent decimal.Decimal
}

// ComputeGrowth derives growth from the initial and current value. It is
// the only place growth is calculated; every read path calls it.
func ComputeGrowth(initial, current decimal.Decimal) (Growth, error) {
	if initial.IsZero() {
		return Growth{}, apperr.ErrDivisionUndefined
	}
	amount := current.Sub(initial)
	return Growth{Amount: amount, Percent: amount.Div(initial)}, nil
}

// Growth derives the metrics for i.
func (i Investment) Growth() (Growth, error) {
	return ComputeGrowth(i.InitialValue, i.CurrentValue)
}

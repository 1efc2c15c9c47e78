package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MultiplierTier is a named set of bonus weights and a daily reward budget.
// All bonuses are fractions added to Base; negative values are penalties.
type MultiplierTier struct {
	Name          string
	Priority      int // higher wins when several holidays are active
	Currency      string
	RewardsPerDay int

	Base      decimal.Decimal
	Weekend   decimal.Decimal
	Birthday  decimal.Decimal
	Video     decimal.Decimal
	Streaming decimal.Decimal
	Muted     decimal.Decimal
	Deafened  decimal.Decimal
	Group     decimal.Decimal // per additional occupant
	GroupMax  decimal.Decimal
}

// ActivityController holds the per-community calendar flags for the current day.
type ActivityController struct {
	ID         string    `json:"id"`
	IsHoliday  bool      `json:"is_holiday"`
	IsWeekend  bool      `json:"is_weekend"`
	BaseTier   string    `json:"base_tier"`
	ActiveTier string    `json:"active_tier,omitempty"` // holiday override, empty when none
	Holidays   []string  `json:"holidays,omitempty"`    // holidays active on ResolvedOn
	ResolvedOn time.Time `json:"resolved_on"`
}

// TierSnapshot is the immutable view of the controller used by every tick of
// one day. It is rebuilt only at the daily boundary.
type TierSnapshot struct {
	Controller ActivityController
	Base       MultiplierTier
	Override   *MultiplierTier
	Currency   Currency
	Date       time.Time
}

// Active returns the override tier when a holiday is active, else the base tier.
func (s TierSnapshot) Active() MultiplierTier {
	if s.Override != nil {
		return *s.Override
	}
	return s.Base
}

// Places is the decimal precision of the active tier's currency.
func (s TierSnapshot) Places() int32 {
	return s.Currency.DecimalPlaces
}

// Package reward decides what a member's reward period is worth given the
// day's remaining budget.
//
// Each member may bank RewardsPerDay full rewards a day. Once the budget is
// spent, a better multiplier replaces the weakest one already banked and the
// member is paid only the difference, so the histogram always holds the best
// BudgetCapacity multipliers seen today.
package reward

import (
	"errors"
	"fmt"

	"VoiceEconomy/internal/histogram"
	"VoiceEconomy/internal/model"

	"github.com/shopspring/decimal"
)

// ErrBudgetCorrupt is returned when the budget is exhausted but no
// multiplier is banked. The member gets no reward for the period.
var ErrBudgetCorrupt = errors.New("reward budget exhausted with empty histogram")

// Outcome classifies a reward period.
type Outcome int

const (
	NoReward Outcome = iota
	Rewarded         // a free slot was consumed
	Upgraded         // the weakest banked multiplier was replaced
)

func (o Outcome) String() string {
	switch o {
	case Rewarded:
		return "rewarded"
	case Upgraded:
		return "upgraded"
	default:
		return "no_reward"
	}
}

// Result describes what one reward period paid.
type Result struct {
	Outcome    Outcome
	Amount     decimal.Decimal
	Multiplier decimal.Decimal
	Evicted    decimal.Decimal // set when Outcome is Upgraded
}

// Rewarded reports whether anything was paid.
func (r Result) Rewarded() bool { return r.Outcome != NoReward }

// Tick applies one candidate multiplier to the member's budget.
//
// candidate must already be rounded to places. The returned amount is
// rounded to places too; the caller adds it to the day's points.
func Tick(state *model.MemberActivityState, candidate, basePoints decimal.Decimal, places int32) (Result, error) {
	if state.Histogram.Counts == nil {
		state.Histogram = histogram.New(places)
	}
	res := Result{Outcome: NoReward, Amount: decimal.Zero, Multiplier: candidate}

	if state.RewardSlotsRemaining > 0 {
		state.RewardSlotsRemaining--
		state.Histogram.Add(candidate)
		res.Outcome = Rewarded
		res.Amount = basePoints.Mul(candidate).Round(places)
		return res, nil
	}

	worst, ok := state.Histogram.Worst()
	if !ok {
		return res, fmt.Errorf("member %s: %w", state.MemberID, ErrBudgetCorrupt)
	}
	if candidate.LessThanOrEqual(worst) {
		return res, nil
	}

	state.Histogram.Remove(worst)
	state.Histogram.Add(candidate)
	res.Outcome = Upgraded
	res.Evicted = worst
	res.Amount = basePoints.Mul(candidate.Sub(worst)).Round(places)
	return res, nil
}

// Recharge resets the budget to capacity with an empty histogram.
func Recharge(state *model.MemberActivityState, capacity int, places int32) {
	state.BudgetCapacity = capacity
	state.RewardSlotsRemaining = capacity
	state.Histogram = histogram.New(places)
}

// CheckBudget verifies that the banked slots plus the remaining slots add up
// to the day's capacity.
func CheckBudget(state *model.MemberActivityState) error {
	if state.RewardSlotsRemaining < 0 {
		return nil
	}
	used := state.Histogram.Total()
	if used+state.RewardSlotsRemaining != state.BudgetCapacity {
		return fmt.Errorf("member %s: %d banked + %d remaining != capacity %d",
			state.MemberID, used, state.RewardSlotsRemaining, state.BudgetCapacity)
	}
	return nil
}

// Package rollover settles a member's day: it folds the daily state into
// the long-term aggregate, deposits the day's points and recharges the
// budget for the next day.
package rollover

import (
	"errors"
	"fmt"
	"log"
	"time"

	"VoiceEconomy/internal/histogram"
	"VoiceEconomy/internal/model"
	"VoiceEconomy/internal/reward"

	"github.com/shopspring/decimal"
)

// ErrNegativePoints is returned for a day that ended below zero points.
// Neither state is modified.
var ErrNegativePoints = errors.New("negative daily points")

// Depositor credits settled points to a member's bank account. A ref that
// was already credited is not paid again and reports false.
type Depositor interface {
	DepositOnce(ref, account string, amount decimal.Decimal, currency string) (bool, error)
}

// Settlement summarises one member's rollover.
type Settlement struct {
	MemberID          string
	Points            decimal.Decimal
	Currency          model.Currency
	Deposited         bool
	SecondsInCall     int64
	SlotsUsed         int
	BestMultiplier    decimal.Decimal // best multiplier banked today, zero if none
	NewPointsRecord   bool
	NewCallTimeRecord bool
}

// Coordinator runs daily rollovers against a bank.
type Coordinator struct {
	bank                 Depositor
	tickInterval         time.Duration
	defaultRewardsPerDay int
}

// NewCoordinator creates a Coordinator. defaultRewardsPerDay is used for
// tiers that do not set their own budget.
func NewCoordinator(bank Depositor, tickInterval time.Duration, defaultRewardsPerDay int) *Coordinator {
	return &Coordinator{bank: bank, tickInterval: tickInterval, defaultRewardsPerDay: defaultRewardsPerDay}
}

// Capacity returns the daily reward budget a tier grants.
func (c *Coordinator) Capacity(tier model.MultiplierTier) int {
	if tier.RewardsPerDay > 0 {
		return tier.RewardsPerDay
	}
	return c.defaultRewardsPerDay
}

// Rollover settles daily into longTerm.
//
// Points are deposited in the closing day's currency, the one they were
// earned under; the new budget comes from the opening day's tier. When the
// deposit fails neither state is modified, so the day can be settled again.
func (c *Coordinator) Rollover(daily *model.MemberActivityState, longTerm *model.MemberLongTermState, closing, opening model.TierSnapshot, now time.Time) (Settlement, error) {
	points := daily.PointsEarnedToday
	if points.IsNegative() {
		return Settlement{MemberID: daily.MemberID, Points: points, Currency: closing.Currency},
			fmt.Errorf("member %s: %w: %s", daily.MemberID, ErrNegativePoints, points)
	}
	seconds := c.seconds(daily.TicksInCallToday)

	st := Settlement{
		MemberID:      daily.MemberID,
		Points:        points,
		Currency:      closing.Currency,
		SecondsInCall: seconds,
		SlotsUsed:     daily.Histogram.Total(),
	}
	if best, ok := daily.Histogram.Best(); ok {
		st.BestMultiplier = best
	}

	merged := longTerm.Clone()
	merged.MemberID = daily.MemberID
	merged.PointsEarned = merged.PointsEarned.Add(points)
	merged.Histogram = mergeHistograms(merged.Histogram, daily.Histogram)
	if best, ok := merged.Histogram.Best(); ok {
		merged.HighestMultiplier = best
	}
	if points.GreaterThan(merged.HighestPointsEarned) {
		merged.HighestPointsEarned = points
		st.NewPointsRecord = true
	}
	if seconds > merged.HighestSecondsInCall {
		merged.HighestSecondsInCall = seconds
		st.NewCallTimeRecord = true
	}
	merged.SecondsInCall += seconds
	merged.SecondsVideoOn += c.seconds(daily.TicksVideoOnToday)
	merged.SecondsStreaming += c.seconds(daily.TicksStreamingToday)
	merged.SecondsMuted += c.seconds(daily.TicksMutedToday)
	merged.SecondsDeafened += c.seconds(daily.TicksDeafenedToday)
	merged.DaysSettled++
	merged.LastRolloverAt = now

	if points.IsPositive() {
		applied, err := c.bank.DepositOnce(depositRef(daily.MemberID, closing), daily.MemberID, points, closing.Currency.Name)
		if err != nil {
			return st, fmt.Errorf("deposit for %s: %w", daily.MemberID, err)
		}
		if !applied {
			log.Printf("[WARN] %s already paid for day resolved at %s, settling without deposit",
				daily.MemberID, closing.Controller.ResolvedOn.Format(time.RFC3339))
		}
		st.Deposited = true
	}

	*longTerm = *merged

	daily.IsBirthday = false
	daily.PointsEarnedToday = decimal.Zero
	daily.TicksInCallToday = 0
	daily.TicksVideoOnToday = 0
	daily.TicksStreamingToday = 0
	daily.TicksMutedToday = 0
	daily.TicksDeafenedToday = 0
	reward.Recharge(daily, c.Capacity(opening.Active()), opening.Places())
	daily.UpdatedAt = now

	return st, nil
}

// depositRef identifies one member's settlement of one resolved day. Every
// resolution stamps a new ResolvedOn, and a restored day keeps the stored one.
func depositRef(memberID string, closing model.TierSnapshot) string {
	if closing.Controller.ResolvedOn.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s@%d", memberID, closing.Controller.ResolvedOn.UnixNano())
}

// mergeHistograms sums two histograms at the finer of their precisions.
func mergeHistograms(longTerm, daily histogram.Histogram) histogram.Histogram {
	places := longTerm.Places
	if longTerm.Len() == 0 || daily.Places > places {
		places = daily.Places
	}
	out := histogram.New(places)
	out.Merge(longTerm)
	out.Merge(daily)
	return out
}

func (c *Coordinator) seconds(ticks int64) int64 {
	return int64(time.Duration(ticks) * c.tickInterval / time.Second)
}

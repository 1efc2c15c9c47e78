package multiplier

import (
	"VoiceEconomy/internal/model"

	"github.com/shopspring/decimal"
)

// Compute returns one reward period's multiplier for a member.
//
// occupancy is the number of other tracked members in the same channel.
// The sum is rounded half away from zero to the currency precision; the
// rounded value is both the reward multiplier and the histogram key.
// Penalties never push the multiplier below zero.
func Compute(state *model.MemberActivityState, snap model.TierSnapshot, occupancy int) decimal.Decimal {
	tier := snap.Active()
	m := tier.Base

	flags := []struct {
		on    bool
		bonus decimal.Decimal
	}{
		{state.IsBirthday, tier.Birthday},
		{state.VideoOn, tier.Video},
		{state.Streaming, tier.Streaming},
		{state.Muted, tier.Muted},
		{state.Deafened, tier.Deafened},
	}
	for _, f := range flags {
		if f.on {
			m = m.Add(f.bonus)
		}
	}

	m = m.Add(groupBonus(tier, occupancy))
	m = m.Add(GlobalBonus(snap.Controller, snap.Base, snap.Override))

	m = m.Round(snap.Places())
	if m.IsNegative() {
		return decimal.Zero
	}
	return m
}

// groupBonus grows with each additional occupant up to the tier's cap.
func groupBonus(tier model.MultiplierTier, occupancy int) decimal.Decimal {
	if occupancy <= 0 {
		return decimal.Zero
	}
	return decimal.Min(tier.Group.Mul(decimal.NewFromInt(int64(occupancy))), tier.GroupMax)
}

package notifier

import (
	"fmt"
	"strings"

	"VoiceEconomy/internal/model"
	"VoiceEconomy/internal/rollover"
)

// topEarners is how many members the rollover summary lists.
const topEarners = 5

// FormatRolloverSummary formats a finished rollover for the community channel.
func FormatRolloverSummary(r *rollover.Report) string {
	var b strings.Builder
	cur := r.Closing.Currency

	b.WriteString(fmt.Sprintf("📅 **Daily rollover** | %s\n\n", r.StartedAt.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Members settled: %d\n", len(r.Settlements)))
	b.WriteString(fmt.Sprintf("Total paid out: %s\n", cur.Format(r.TotalPoints())))
	if len(r.Failures) > 0 {
		b.WriteString(fmt.Sprintf("⚠️ Not settled: %d (retried next rollover)\n", len(r.Failures)))
	}

	if top := r.Top(topEarners); len(top) > 0 {
		b.WriteString("\n🏆 **Top earners:**\n")
		for i, s := range top {
			line := fmt.Sprintf("  %d. %s: %s", i+1, s.MemberID, s.Currency.Format(s.Points))
			if s.NewPointsRecord {
				line += " (new record)"
			}
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(FormatTierSnapshot(r.Opening))
	return b.String()
}

// FormatTierSnapshot describes the multipliers in effect for a day.
func FormatTierSnapshot(snap model.TierSnapshot) string {
	var b strings.Builder
	tier := snap.Active()

	b.WriteString(fmt.Sprintf("🎚️ **Today:** %s tier", tier.Name))
	if snap.Controller.IsHoliday {
		b.WriteString(fmt.Sprintf(" (%s)", strings.Join(snap.Controller.Holidays, ", ")))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Base multiplier: %s\n", tier.Base.String()))
	if snap.Controller.IsWeekend && tier.Weekend.IsPositive() {
		b.WriteString(fmt.Sprintf("Weekend bonus: +%s\n", tier.Weekend.String()))
	}
	if tier.RewardsPerDay > 0 {
		b.WriteString(fmt.Sprintf("Rewards per day: %d\n", tier.RewardsPerDay))
	}
	b.WriteString(fmt.Sprintf("Currency: %s\n", snap.Currency.Name))
	return b.String()
}

package rollover

import (
	"sort"
	"time"

	"VoiceEconomy/internal/model"

	"github.com/shopspring/decimal"
)

// Failure is a member whose day could not be settled.
type Failure struct {
	MemberID string
	Err      error
}

// Report collects the outcome of one rollover across all members.
type Report struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Closing     model.TierSnapshot
	Opening     model.TierSnapshot
	Settlements []Settlement
	Failures    []Failure
}

// TotalPoints sums the points settled in this run.
func (r *Report) TotalPoints() decimal.Decimal {
	total := decimal.Zero
	for _, s := range r.Settlements {
		total = total.Add(s.Points)
	}
	return total
}

// Top returns up to n settlements with the most points, ties by member ID.
func (r *Report) Top(n int) []Settlement {
	out := make([]Settlement, 0, len(r.Settlements))
	for _, s := range r.Settlements {
		if s.Points.IsPositive() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Points.Cmp(out[j].Points); c != 0 {
			return c > 0
		}
		return out[i].MemberID < out[j].MemberID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

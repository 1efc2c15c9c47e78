package activity

import (
	"context"
	"errors"
	"log"
	"sync"

	"VoiceEconomy/internal/model"
	"VoiceEconomy/internal/multiplier"
	"VoiceEconomy/internal/reward"

	"github.com/shopspring/decimal"
)

// TickStats summarises one tick.
type TickStats struct {
	Members   int
	InVoice   int
	Evaluated int // members whose reward period ended this tick
	Rewarded  int
	Upgraded  int
	NoReward  int
	Corrupt   int
	Points    decimal.Decimal
}

func (s *TickStats) add(o tickOutcome) {
	if !o.inVoice {
		return
	}
	s.InVoice++
	if !o.evaluated {
		return
	}
	s.Evaluated++
	switch o.result.Outcome {
	case reward.Rewarded:
		s.Rewarded++
	case reward.Upgraded:
		s.Upgraded++
	default:
		s.NoReward++
	}
	if o.corrupt {
		s.Corrupt++
	}
	s.Points = s.Points.Add(o.result.Amount)
}

type tickOutcome struct {
	inVoice   bool
	evaluated bool
	corrupt   bool
	result    reward.Result
}

// Tick advances every member in voice by one tick.
//
// Members are processed concurrently. A member whose reward period ends is
// scored against the day's snapshot and the budget ledger. Failed saves are
// logged and not replayed; the in-memory state stays authoritative.
func (e *Engine) Tick(ctx context.Context) (TickStats, error) {
	start := e.clock.Now()

	e.day.RLock()
	defer e.day.RUnlock()
	snap := e.snap

	members := e.sortedMembers()
	occupancy := make(map[string]int)
	for _, m := range members {
		m.mu.Lock()
		if ch := m.state.ChannelID; ch != "" {
			occupancy[ch]++
		}
		m.mu.Unlock()
	}

	var (
		mu    sync.Mutex
		stats = TickStats{Members: len(members), Points: decimal.Zero}
	)
	g, gctx := e.runGroup(ctx)
	for _, m := range members {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out := e.tickMember(gctx, m, snap, occupancy)
			mu.Lock()
			stats.add(out)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	e.metrics.TicksProcessed.Inc()
	e.metrics.MembersInVoice.Set(float64(stats.InVoice))
	e.metrics.TickDuration.Observe(e.clock.Since(start).Seconds())
	return stats, ctx.Err()
}

func (e *Engine) tickMember(ctx context.Context, m *member, snap model.TierSnapshot, occupancy map[string]int) tickOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	if !s.InVoice() {
		return tickOutcome{}
	}
	out := tickOutcome{inVoice: true}

	s.TicksUntilReward--
	s.TicksInCallToday++
	if s.VideoOn {
		s.TicksVideoOnToday++
	}
	if s.Streaming {
		s.TicksStreamingToday++
	}
	if s.Muted {
		s.TicksMutedToday++
	}
	if s.Deafened {
		s.TicksDeafenedToday++
	}

	if s.TicksUntilReward <= 0 {
		s.TicksUntilReward = e.settings.TicksPerReward
		out.evaluated = true

		places := snap.Places()
		candidate := multiplier.Compute(s, snap, occupancy[s.ChannelID]-1)
		res, err := reward.Tick(s, candidate, e.settings.BasePoints, places)
		if err != nil {
			out.corrupt = errors.Is(err, reward.ErrBudgetCorrupt)
			if out.corrupt {
				e.metrics.BudgetCorrupt.Inc()
			}
			log.Printf("[ERROR] reward tick: %v", err)
		}
		out.result = res
		e.metrics.RewardsByOutcome.WithLabelValues(res.Outcome.String()).Inc()
		if res.Rewarded() {
			s.PointsEarnedToday = s.PointsEarnedToday.Add(res.Amount).Round(places)
			if res.Amount.IsPositive() {
				e.metrics.PointsAwarded.Add(res.Amount.InexactFloat64())
			}
		}
	}

	s.UpdatedAt = e.clock.Now()
	if err := e.saveMember(ctx, s); err != nil {
		log.Printf("[ERROR] %v", err)
	}
	return out
}

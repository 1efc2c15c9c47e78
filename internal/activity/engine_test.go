package activity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"VoiceEconomy/internal/bank"
	"VoiceEconomy/internal/histogram"
	"VoiceEconomy/internal/holiday"
	"VoiceEconomy/internal/metrics"
	"VoiceEconomy/internal/model"
	"VoiceEconomy/internal/multiplier"
	"VoiceEconomy/internal/recorder"
	"VoiceEconomy/internal/reward"
	"VoiceEconomy/internal/rollover"
	"VoiceEconomy/internal/store"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	coin   = model.Currency{Name: "coin", Plural: "coins", Value: 1, DecimalPlaces: 2}
	monday = time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func baseTier(rewardsPerDay int) model.MultiplierTier {
	return model.MultiplierTier{
		Name: "base", Currency: "coin", RewardsPerDay: rewardsPerDay,
		Base: d("1"), Weekend: d("0.5"), Birthday: d("2"),
		Video: d("0.04"), Streaming: d("0.06"), Muted: d("-0.01"), Deafened: d("-0.12"),
		Group: d("0.01"), GroupMax: d("0.1"),
	}
}

type fixture struct {
	engine  *Engine
	bank    *bank.Manager
	store   *store.MemoryStore
	clock   *clockwork.FakeClock
	metrics *metrics.EngineMetrics
}

type fixtureOpts struct {
	now            time.Time
	ticksPerReward int
	rewardsPerDay  int
	holidays       holiday.Set
	extraTiers     []model.MultiplierTier
	depositor      rollover.Depositor
	recorder       recorder.Recorder
	store          *store.MemoryStore
	resetHour      int
	readOnly       bool
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()
	if o.now.IsZero() {
		o.now = monday
	}
	if o.ticksPerReward == 0 {
		o.ticksPerReward = 1
	}
	if o.store == nil {
		o.store = store.NewMemoryStore()
	}

	b, err := bank.NewManager("", []model.Currency{coin, {Name: "candy", Value: 1, DecimalPlaces: 0}})
	require.NoError(t, err)
	var dep rollover.Depositor = b
	if o.depositor != nil {
		dep = o.depositor
	}

	clock := clockwork.NewFakeClockAt(o.now)
	tiers := append([]model.MultiplierTier{baseTier(o.rewardsPerDay)}, o.extraTiers...)
	m := metrics.NewEngineMetrics(prometheus.NewRegistry())

	e, err := NewEngine(context.Background(), Settings{
		ControllerID:   "guild",
		BaseTier:       "base",
		TicksPerReward: o.ticksPerReward,
		BasePoints:     d("1"),
		Workers:        4,
		ReadOnly:       o.readOnly,
	}, Deps{
		Resolver:    multiplier.NewResolver(tiers, o.holidays, b, clock, time.UTC, o.resetHour),
		Coordinator: rollover.NewCoordinator(dep, time.Second, 100),
		Store:       o.store,
		Recorder:    o.recorder,
		Metrics:     m,
		Clock:       clock,
	})
	require.NoError(t, err)
	return &fixture{engine: e, bank: b, store: o.store, clock: clock, metrics: m}
}

func (f *fixture) join(t *testing.T, id, channel string, vs model.VoiceState) {
	t.Helper()
	vs.InChannel = true
	vs.ChannelID = channel
	require.NoError(t, f.engine.ApplyVoiceState(context.Background(), id, vs))
}

func (f *fixture) tick(t *testing.T, n int) TickStats {
	t.Helper()
	var last TickStats
	for i := 0; i < n; i++ {
		var err error
		last, err = f.engine.Tick(context.Background())
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	return last
}

func (f *fixture) points(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	m, ok := f.engine.Member(id)
	require.True(t, ok, id)
	return m.PointsEarnedToday
}

func TestEngine_RewardAfterTicksPerReward(t *testing.T) {
	f := newFixture(t, fixtureOpts{ticksPerReward: 3, rewardsPerDay: 10})
	f.join(t, "alice", "lobby", model.VoiceState{CameraOn: true})

	st := f.tick(t, 2)
	assert.Equal(t, 0, st.Evaluated)
	assert.True(t, f.points(t, "alice").IsZero())

	st = f.tick(t, 1)
	assert.Equal(t, 1, st.Evaluated)
	assert.Equal(t, 1, st.Rewarded)

	m, _ := f.engine.Member("alice")
	assert.True(t, m.PointsEarnedToday.Equal(d("1.04")), "base 1 + video 0.04, got %s", m.PointsEarnedToday)
	assert.Equal(t, 3, m.TicksUntilReward)
	assert.Equal(t, int64(3), m.TicksInCallToday)
	assert.Equal(t, int64(3), m.TicksVideoOnToday)
	assert.Zero(t, m.TicksMutedToday)
	assert.Equal(t, 9, m.RewardSlotsRemaining)
	assert.NoError(t, reward.CheckBudget(m))

	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.TicksProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RewardsByOutcome.WithLabelValues("rewarded")))
}

func TestEngine_GroupBonusCountsOtherOccupants(t *testing.T) {
	f := newFixture(t, fixtureOpts{rewardsPerDay: 10})
	f.join(t, "alice", "a", model.VoiceState{})
	f.join(t, "bob", "a", model.VoiceState{SelfMuted: true})
	f.join(t, "carol", "b", model.VoiceState{})
	require.NoError(t, f.engine.ApplyVoiceState(context.Background(), "dave", model.VoiceState{}))

	st := f.tick(t, 1)
	assert.Equal(t, 4, st.Members)
	assert.Equal(t, 3, st.InVoice)

	assert.True(t, f.points(t, "alice").Equal(d("1.01")))
	assert.True(t, f.points(t, "bob").Equal(d("1")), "muted penalty offsets the group bonus")
	assert.True(t, f.points(t, "carol").Equal(d("1")))
	assert.True(t, f.points(t, "dave").IsZero())
}

func TestEngine_BudgetReplacement(t *testing.T) {
	f := newFixture(t, fixtureOpts{rewardsPerDay: 2})
	f.join(t, "alice", "lobby", model.VoiceState{})

	f.tick(t, 2)
	assert.True(t, f.points(t, "alice").Equal(d("2")))

	f.join(t, "alice", "lobby", model.VoiceState{CameraOn: true})
	st := f.tick(t, 1)
	assert.Equal(t, 1, st.Upgraded)
	assert.True(t, f.points(t, "alice").Equal(d("2.04")), "only the increment over the evicted 1.00 is paid")

	f.tick(t, 1)
	assert.True(t, f.points(t, "alice").Equal(d("2.08")))

	st = f.tick(t, 1)
	assert.Equal(t, 1, st.NoReward, "1.04 does not beat the worst banked 1.04")
	assert.True(t, f.points(t, "alice").Equal(d("2.08")))

	m, _ := f.engine.Member("alice")
	assert.Equal(t, uint32(2), m.Histogram.Count(d("1.04")))
	assert.Equal(t, 0, m.RewardSlotsRemaining)
	assert.NoError(t, reward.CheckBudget(m))
}

func TestEngine_WeekendBonus(t *testing.T) {
	saturday := time.Date(2026, time.October, 24, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, fixtureOpts{now: saturday, rewardsPerDay: 10})
	f.join(t, "alice", "lobby", model.VoiceState{})
	require.NoError(t, f.engine.SetBirthday(context.Background(), "alice", true))

	f.tick(t, 1)
	assert.True(t, f.points(t, "alice").Equal(d("3.5")), "base 1 + birthday 2 + weekend 0.5")
}

func TestEngine_HolidayOverride(t *testing.T) {
	halloween := time.Date(2026, time.October, 31, 10, 0, 0, 0, time.UTC)
	spooky := baseTier(5)
	spooky.Name = "spooky"
	spooky.Currency = "candy"
	spooky.Base = d("3")
	spooky.Weekend = decimal.Zero

	f := newFixture(t, fixtureOpts{
		now:           halloween,
		rewardsPerDay: 10,
		extraTiers:    []model.MultiplierTier{spooky},
		holidays:      holiday.Set{Fixed: []holiday.Fixed{{Name: "Halloween", Month: time.October, Day: 31, Tier: "spooky"}}},
	})

	snap := f.engine.Snapshot()
	assert.Equal(t, "spooky", snap.Active().Name)
	assert.Equal(t, "candy", snap.Currency.Name)

	f.join(t, "alice", "lobby", model.VoiceState{CameraOn: true})
	m, _ := f.engine.Member("alice")
	assert.Equal(t, 5, m.RewardSlotsRemaining, "new members get the active tier's budget")

	f.tick(t, 1)
	assert.True(t, f.points(t, "alice").Equal(d("3")), "candy has no decimals: 3.04 rounds to 3")
}

func TestEngine_LeavingStopsTicks(t *testing.T) {
	f := newFixture(t, fixtureOpts{rewardsPerDay: 10})
	f.join(t, "alice", "lobby", model.VoiceState{Streaming: true})
	f.tick(t, 1)

	require.NoError(t, f.engine.ApplyVoiceState(context.Background(), "alice", model.VoiceState{}))
	st := f.tick(t, 5)
	assert.Equal(t, 0, st.InVoice)

	m, _ := f.engine.Member("alice")
	assert.Equal(t, int64(1), m.TicksInCallToday)
	assert.True(t, m.Streaming, "flags are kept while out of voice")
	assert.True(t, m.PointsEarnedToday.Equal(d("1.06")))
}

func TestEngine_ApplyVoiceStateRejectsMissingChannel(t *testing.T) {
	f := newFixture(t, fixtureOpts{rewardsPerDay: 10})
	err := f.engine.ApplyVoiceState(context.Background(), "alice", model.VoiceState{InChannel: true})
	assert.ErrorIs(t, err, ErrNoChannel)
	_, ok := f.engine.Member("alice")
	assert.False(t, ok)
}

func TestEngine_StateIsPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{rewardsPerDay: 10})
	f.join(t, "alice", "lobby", model.VoiceState{})
	f.tick(t, 3)

	saved, err := f.store.LoadMember(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, saved.PointsEarnedToday.Equal(d("3")))

	ctrl, err := f.store.LoadController(ctx, "guild")
	require.NoError(t, err)
	assert.Equal(t, "base", ctrl.BaseTier)

	restarted := newFixture(t, fixtureOpts{rewardsPerDay: 10, store: f.store})
	require.NoError(t, restarted.engine.Load(ctx))
	assert.False(t, restarted.engine.Stale())
	assert.True(t, restarted.points(t, "alice").Equal(d("3")))

	restarted.tick(t, 1)
	assert.True(t, restarted.points(t, "alice").Equal(d("4")))
}

func TestEngine_CorruptBudgetIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.SaveMember(ctx, &model.MemberActivityState{
		MemberID:          "mallory",
		ChannelID:         "lobby",
		TicksUntilReward:  1,
		BudgetCapacity:    5,
		PointsEarnedToday: decimal.Zero,
		Histogram:         histogram.New(2),
	}))

	f := newFixture(t, fixtureOpts{rewardsPerDay: 10, store: s})
	require.NoError(t, f.engine.Load(ctx))
	f.join(t, "alice", "other", model.VoiceState{})

	st := f.tick(t, 1)
	assert.Equal(t, 1, st.Corrupt)
	assert.Equal(t, 1, st.Rewarded, "other members are still scheduled")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BudgetCorrupt))
	assert.True(t, f.points(t, "mallory").IsZero())
}

func TestEngine_Rollover(t *testing.T) {
	ctx := context.Background()
	rec, err := recorder.NewSQLiteRecorder(":memory:")
	require.NoError(t, err)
	defer rec.Close()

	f := newFixture(t, fixtureOpts{rewardsPerDay: 3, recorder: rec})
	f.join(t, "alice", "lobby", model.VoiceState{CameraOn: true})
	f.join(t, "bob", "elsewhere", model.VoiceState{})
	f.tick(t, 4)
	require.NoError(t, f.engine.ApplyVoiceState(ctx, "bob", model.VoiceState{}))
	require.NoError(t, f.engine.ApplyVoiceState(ctx, "carol", model.VoiceState{}))

	f.clock.Advance(12 * time.Hour) // Tuesday
	report, err := f.engine.Rollover(ctx)
	require.NoError(t, err)

	require.Len(t, report.Settlements, 3)
	assert.Empty(t, report.Failures)
	assert.True(t, report.TotalPoints().Equal(d("6.12")), "alice 3×1.04, bob 3×1.00")

	bal, err := f.bank.Balance("alice", "coin")
	require.NoError(t, err)
	assert.Equal(t, "3.12", bal.StringFixed(2))

	alice, _ := f.engine.Member("alice")
	assert.True(t, alice.PointsEarnedToday.IsZero())
	assert.Equal(t, 3, alice.RewardSlotsRemaining)
	assert.Equal(t, "lobby", alice.ChannelID)

	lt, err := f.engine.LongTerm(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, lt.PointsEarned.Equal(d("3.12")))
	assert.True(t, lt.HighestMultiplier.Equal(d("1.04")))
	assert.Equal(t, int64(4), lt.SecondsInCall)

	_, err = f.engine.LongTerm(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, time.October, f.engine.Snapshot().Date.Month())
	assert.Equal(t, 20, f.engine.Snapshot().Date.Day())

	runs, err := rec.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].RunID)
	assert.Equal(t, 3, runs[0].Settled)

	// Alice keeps earning on the new day.
	f.tick(t, 1)
	assert.True(t, f.points(t, "alice").Equal(d("1.04")))
}

type flakyBank struct {
	*bank.Manager
	fail map[string]bool
}

func (b flakyBank) DepositOnce(ref, account string, amount decimal.Decimal, currency string) (bool, error) {
	if b.fail[account] {
		return false, errors.New("bank offline")
	}
	return b.Manager.DepositOnce(ref, account, amount, currency)
}

func TestEngine_RolloverKeepsUnsettledMembers(t *testing.T) {
	ctx := context.Background()
	b, err := bank.NewManager("", []model.Currency{coin})
	require.NoError(t, err)
	fb := flakyBank{Manager: b, fail: map[string]bool{"bob": true}}

	f := newFixture(t, fixtureOpts{rewardsPerDay: 10, depositor: fb})
	f.join(t, "alice", "lobby", model.VoiceState{})
	f.join(t, "bob", "lobby", model.VoiceState{})
	f.tick(t, 2)

	report, err := f.engine.Rollover(ctx)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "bob", report.Failures[0].MemberID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Settlements.WithLabelValues("failed")))

	bob, _ := f.engine.Member("bob")
	assert.True(t, bob.PointsEarnedToday.Equal(d("2.02")), "unsettled points carry to the next rollover")
	_, err = f.engine.LongTerm(ctx, "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)

	fb.fail["bob"] = false
	report, err = f.engine.Rollover(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	bal, err := b.Balance("bob", "coin")
	require.NoError(t, err)
	assert.Equal(t, "2.02", bal.StringFixed(2))
}

func TestEngine_StaleControllerIsSettledUnderItsOwnDay(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	sunday := time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveController(ctx, &model.ActivityController{
		ID: "guild", BaseTier: "base", IsWeekend: true, ResolvedOn: sunday,
	}))

	f := newFixture(t, fixtureOpts{rewardsPerDay: 10, store: s})
	assert.True(t, f.engine.Stale())
	assert.True(t, f.engine.Snapshot().Controller.IsWeekend)

	_, err := f.engine.Rollover(ctx)
	require.NoError(t, err)
	assert.False(t, f.engine.Stale())
	assert.False(t, f.engine.Snapshot().Controller.IsWeekend, "Monday")
}

func TestEngine_StaleFollowsResetHour(t *testing.T) {
	ctx := context.Background()
	resolved := time.Date(2026, time.October, 19, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		restartAt time.Time
		stale     bool
	}{
		{"before the next reset", time.Date(2026, time.October, 20, 3, 0, 0, 0, time.UTC), false},
		{"at the next reset", time.Date(2026, time.October, 20, 6, 0, 0, 0, time.UTC), true},
		{"after the next reset", time.Date(2026, time.October, 20, 9, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			require.NoError(t, s.SaveController(ctx, &model.ActivityController{
				ID: "guild", BaseTier: "base", ResolvedOn: resolved,
			}))
			f := newFixture(t, fixtureOpts{now: tt.restartAt, rewardsPerDay: 2, store: s, resetHour: 6})
			assert.Equal(t, tt.stale, f.engine.Stale())
			assert.Equal(t, 19, f.engine.Snapshot().Date.Day())
		})
	}
}

func TestEngine_RestartBeforeResetSettlesOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.SaveController(ctx, &model.ActivityController{
		ID: "guild", BaseTier: "base", ResolvedOn: time.Date(2026, time.October, 19, 6, 0, 0, 0, time.UTC),
	}))
	f := newFixture(t, fixtureOpts{
		now: time.Date(2026, time.October, 20, 3, 0, 0, 0, time.UTC), rewardsPerDay: 2, store: s, resetHour: 6,
	})
	require.False(t, f.engine.Stale())

	f.join(t, "alice", "lobby", model.VoiceState{})
	f.tick(t, 5)
	assert.True(t, f.points(t, "alice").Equal(d("2")), "budget caps the day at two rewards")

	f.clock.Advance(3*time.Hour - 5*time.Second)
	_, err := f.engine.Rollover(ctx)
	require.NoError(t, err)

	lt, err := f.engine.LongTerm(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, lt.DaysSettled)
	assert.True(t, lt.PointsEarned.Equal(d("2")))
	assert.Equal(t, 20, f.engine.Snapshot().Date.Day())
}

func TestEngine_PenaltyTierNeverPaysNegative(t *testing.T) {
	ctx := context.Background()
	penalty := baseTier(0)
	penalty.Name = "penalty"
	penalty.Base = d("0.1")
	set := holiday.Set{Fixed: []holiday.Fixed{{Name: "Quiet Day", Month: time.October, Day: 19, Tier: "penalty"}}}

	f := newFixture(t, fixtureOpts{rewardsPerDay: 3, holidays: set, extraTiers: []model.MultiplierTier{penalty}})
	require.Equal(t, "penalty", f.engine.Snapshot().Active().Name)
	f.join(t, "dave", "lobby", model.VoiceState{SelfDeafened: true})

	st := f.tick(t, 2)
	assert.Equal(t, 1, st.Rewarded)
	assert.True(t, f.points(t, "dave").IsZero())
	assert.Zero(t, testutil.ToFloat64(f.metrics.PointsAwarded))

	report, err := f.engine.Rollover(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	assert.Zero(t, testutil.ToFloat64(f.metrics.PointsSettled))
}

type countingRecorder struct {
	recorder.NoopRecorder
	resolutions int
}

func (r *countingRecorder) RecordResolution(*recorder.ResolutionEvent) error {
	r.resolutions++
	return nil
}

func TestEngine_ReadOnlyLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	rec := &countingRecorder{}

	f := newFixture(t, fixtureOpts{rewardsPerDay: 10, store: s, recorder: rec, readOnly: true})
	assert.Equal(t, "base", f.engine.Snapshot().Active().Name)
	assert.Zero(t, rec.resolutions)
	_, err := s.LoadController(ctx, "guild")
	assert.ErrorIs(t, err, store.ErrNotFound)

	newFixture(t, fixtureOpts{rewardsPerDay: 10, store: s, recorder: rec})
	assert.Equal(t, 1, rec.resolutions)
	_, err = s.LoadController(ctx, "guild")
	assert.NoError(t, err)
}

func TestEngine_ConcurrentTicks(t *testing.T) {
	f := newFixture(t, fixtureOpts{rewardsPerDay: 5})
	const n = 40
	for i := 0; i < n; i++ {
		f.join(t, fmt.Sprintf("m%02d", i), fmt.Sprintf("ch%d", i%4), model.VoiceState{})
	}

	st := f.tick(t, 8)
	assert.Equal(t, n, st.InVoice)
	for i := 0; i < n; i++ {
		m, ok := f.engine.Member(fmt.Sprintf("m%02d", i))
		require.True(t, ok)
		assert.Equal(t, int64(8), m.TicksInCallToday)
		assert.True(t, m.PointsEarnedToday.Equal(d("5.45")), "%s: 5 slots at 1.09", m.MemberID)
		assert.NoError(t, reward.CheckBudget(m))
	}
}

// Package activity tracks members in voice and turns their time into
// rewards. The Engine owns the current day's tier snapshot and every
// member's daily state; persistence and history go through collaborators.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"VoiceEconomy/internal/metrics"
	"VoiceEconomy/internal/model"
	"VoiceEconomy/internal/multiplier"
	"VoiceEconomy/internal/recorder"
	"VoiceEconomy/internal/reward"
	"VoiceEconomy/internal/rollover"
	"VoiceEconomy/internal/store"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrNoChannel is returned for a voice state that is in a channel but names none.
var ErrNoChannel = errors.New("in channel without channel id")

// Settings are the engine's tunables.
type Settings struct {
	ControllerID   string
	BaseTier       string
	TicksPerReward int
	BasePoints     decimal.Decimal
	Workers        int // concurrent member ticks, 0 for unlimited

	// ReadOnly resolves the day without saving the controller or recording
	// the resolution. Used by inspection commands.
	ReadOnly bool
}

// Deps are the engine's collaborators. Recorder, Metrics and Clock are optional.
type Deps struct {
	Resolver    *multiplier.Resolver
	Coordinator *rollover.Coordinator
	Store       store.Store
	Recorder    recorder.Recorder
	Metrics     *metrics.EngineMetrics
	Clock       clockwork.Clock
}

type member struct {
	mu    sync.Mutex
	state *model.MemberActivityState
}

// Engine runs ticks and rollovers for one controller.
type Engine struct {
	settings    Settings
	resolver    *multiplier.Resolver
	coordinator *rollover.Coordinator
	store       store.Store
	recorder    recorder.Recorder
	metrics     *metrics.EngineMetrics
	clock       clockwork.Clock

	// day is held for reading by ticks and ingestion and for writing by
	// rollover, which swaps snap and ctrl.
	day   sync.RWMutex
	snap  model.TierSnapshot
	ctrl  model.ActivityController
	stale bool

	mu      sync.Mutex
	members map[string]*member
}

// NewEngine loads the controller and resolves today's tiers.
//
// When the stored controller was resolved on an earlier day, that day's
// snapshot is restored instead so its points can still be settled; Stale
// then reports true until the next Rollover.
func NewEngine(ctx context.Context, settings Settings, deps Deps) (*Engine, error) {
	if deps.Resolver == nil || deps.Coordinator == nil || deps.Store == nil {
		return nil, fmt.Errorf("engine: resolver, coordinator and store are required")
	}
	if settings.TicksPerReward <= 0 {
		return nil, fmt.Errorf("engine: ticks per reward must be positive")
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewEngineMetrics(prometheus.NewRegistry())
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	e := &Engine{
		settings:    settings,
		resolver:    deps.Resolver,
		coordinator: deps.Coordinator,
		store:       deps.Store,
		recorder:    deps.Recorder,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
		members:     make(map[string]*member),
	}

	ctrl, err := e.store.LoadController(ctx, settings.ControllerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		ctrl = &model.ActivityController{ID: settings.ControllerID}
	case err != nil:
		return nil, fmt.Errorf("load controller: %w", err)
	}
	ctrl.BaseTier = settings.BaseTier

	if !ctrl.ResolvedOn.IsZero() && !e.resolver.IsToday(ctrl.ResolvedOn) {
		snap, err := e.resolver.Restore(*ctrl)
		if err == nil {
			e.snap, e.ctrl, e.stale = snap, *ctrl, true
			log.Printf("[WARN] controller %s last resolved on %s, rollover pending",
				ctrl.ID, ctrl.ResolvedOn.Format(time.DateOnly))
			return e, nil
		}
		log.Printf("[WARN] restore controller %s: %v, resolving today instead", ctrl.ID, err)
	}

	snap, err := e.resolver.Resolve(ctrl)
	if err != nil {
		return nil, fmt.Errorf("resolve tiers: %w", err)
	}
	e.snap, e.ctrl = snap, *ctrl
	if !settings.ReadOnly {
		e.saveController(ctx, ctrl)
		e.recordResolution(snap)
	}
	log.Printf("[INFO] tier resolved: %s (weekend=%v holiday=%v)", snap.Active().Name, ctrl.IsWeekend, ctrl.IsHoliday)
	return e, nil
}

// Load restores every member's daily state from the store.
func (e *Engine) Load(ctx context.Context) error {
	states, err := e.store.ListMembers(ctx)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range states {
		if err := reward.CheckBudget(s); err != nil {
			log.Printf("[WARN] loaded inconsistent budget: %v", err)
		}
		e.members[s.MemberID] = &member{state: s}
	}
	e.metrics.MembersTracked.Set(float64(len(e.members)))
	log.Printf("[INFO] loaded %d members", len(states))
	return nil
}

// Stale reports whether the current snapshot belongs to an earlier day.
func (e *Engine) Stale() bool {
	e.day.RLock()
	defer e.day.RUnlock()
	return e.stale
}

// Snapshot returns the tier snapshot in effect.
func (e *Engine) Snapshot() model.TierSnapshot {
	e.day.RLock()
	defer e.day.RUnlock()
	return e.snap
}

// Member returns a copy of a member's daily state.
func (e *Engine) Member(memberID string) (*model.MemberActivityState, bool) {
	e.mu.Lock()
	m, ok := e.members[memberID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), true
}

// LongTerm returns a member's settled totals.
func (e *Engine) LongTerm(ctx context.Context, memberID string) (*model.MemberLongTermState, error) {
	return e.store.LoadLongTerm(ctx, memberID)
}

// ApplyVoiceState records a presence change for a member.
func (e *Engine) ApplyVoiceState(ctx context.Context, memberID string, vs model.VoiceState) error {
	if vs.InChannel && vs.ChannelID == "" {
		return fmt.Errorf("member %s: %w", memberID, ErrNoChannel)
	}

	e.day.RLock()
	defer e.day.RUnlock()

	m := e.member(memberID)
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	if vs.InChannel {
		s.ChannelID = vs.ChannelID
		s.VideoOn = vs.CameraOn
		s.Streaming = vs.Streaming
		s.Muted = vs.SelfMuted
		s.Deafened = vs.SelfDeafened
	} else {
		s.ChannelID = ""
	}
	s.UpdatedAt = e.clock.Now()
	return e.saveMember(ctx, s)
}

// SetBirthday flags a member as having their birthday today. The flag is
// cleared at rollover.
func (e *Engine) SetBirthday(ctx context.Context, memberID string, on bool) error {
	e.day.RLock()
	defer e.day.RUnlock()

	m := e.member(memberID)
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.IsBirthday = on
	m.state.UpdatedAt = e.clock.Now()
	return e.saveMember(ctx, m.state)
}

// member returns the tracked member, creating it with a full budget.
// Callers hold the day lock.
func (e *Engine) member(memberID string) *member {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m, ok := e.members[memberID]; ok {
		return m
	}
	s := &model.MemberActivityState{
		MemberID:          memberID,
		TicksUntilReward:  e.settings.TicksPerReward,
		PointsEarnedToday: decimal.Zero,
	}
	reward.Recharge(s, e.coordinator.Capacity(e.snap.Active()), e.snap.Places())
	m := &member{state: s}
	e.members[memberID] = m
	e.metrics.MembersTracked.Set(float64(len(e.members)))
	return m
}

// sortedMembers returns the tracked members ordered by ID.
func (e *Engine) sortedMembers() []*member {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.members))
	for id := range e.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*member, len(ids))
	for i, id := range ids {
		out[i] = e.members[id]
	}
	return out
}

func (e *Engine) saveMember(ctx context.Context, s *model.MemberActivityState) error {
	if err := e.store.SaveMember(ctx, s); err != nil {
		e.metrics.SaveErrors.WithLabelValues("member").Inc()
		return fmt.Errorf("save member %s: %w", s.MemberID, err)
	}
	return nil
}

func (e *Engine) saveController(ctx context.Context, ctrl *model.ActivityController) {
	if err := e.store.SaveController(ctx, ctrl); err != nil {
		e.metrics.SaveErrors.WithLabelValues("controller").Inc()
		log.Printf("[ERROR] save controller %s: %v", ctrl.ID, err)
	}
}

func (e *Engine) recordResolution(snap model.TierSnapshot) {
	ctrl := snap.Controller
	if err := e.recorder.RecordResolution(&recorder.ResolutionEvent{
		ControllerID: ctrl.ID,
		Date:         snap.Date,
		BaseTier:     ctrl.BaseTier,
		ActiveTier:   ctrl.ActiveTier,
		Holidays:     ctrl.Holidays,
		IsWeekend:    ctrl.IsWeekend,
		IsHoliday:    ctrl.IsHoliday,
		Currency:     snap.Currency.Name,
	}); err != nil {
		log.Printf("[ERROR] record resolution: %v", err)
	}
}

// runGroup returns an errgroup bounded by the configured worker count.
func (e *Engine) runGroup(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	if e.settings.Workers > 0 {
		g.SetLimit(e.settings.Workers)
	}
	return g, gctx
}

// Package multiplier decides which tier is active for the day and computes
// per-member reward multipliers from it.
package multiplier

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"VoiceEconomy/internal/holiday"
	"VoiceEconomy/internal/model"

	"github.com/jonboulle/clockwork"
)

var (
	ErrBaseTierMissing = errors.New("base tier not configured")
	ErrTierNotFound    = errors.New("tier not found")
)

// Calendar reports the holidays falling on a day.
type Calendar interface {
	ActiveOn(day time.Time) []holiday.Match
}

// CurrencyLookup resolves a tier's currency.
type CurrencyLookup interface {
	Currency(name string) (model.Currency, error)
}

// Resolver picks the active tier for a controller once per day.
type Resolver struct {
	tiers      map[string]model.MultiplierTier
	calendar   Calendar
	currencies CurrencyLookup
	clock      clockwork.Clock
	loc        *time.Location
	resetHour  int
}

// NewResolver creates a Resolver. A nil clock uses the real clock and a nil
// location uses time.Local. A reward day starts at resetHour in loc.
func NewResolver(tiers []model.MultiplierTier, cal Calendar, currencies CurrencyLookup, clock clockwork.Clock, loc *time.Location, resetHour int) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	r := &Resolver{
		tiers:      make(map[string]model.MultiplierTier, len(tiers)),
		calendar:   cal,
		currencies: currencies,
		clock:      clock,
		loc:        loc,
		resetHour:  resetHour,
	}
	for _, t := range tiers {
		r.tiers[t.Name] = t
	}
	return r
}

// Tier looks up a tier by name.
func (r *Resolver) Tier(name string) (model.MultiplierTier, error) {
	t, ok := r.tiers[name]
	if !ok {
		return model.MultiplierTier{}, fmt.Errorf("%w: %q", ErrTierNotFound, name)
	}
	return t, nil
}

// Today returns the current time in the resolver's location.
func (r *Resolver) Today() time.Time {
	return r.clock.Now().In(r.loc)
}

// Resolve updates the controller's weekend and holiday flags for today and
// returns the snapshot every tick of the day will use.
//
// When several holidays are active, the tier with the highest priority wins;
// equal priorities go to the holiday with the lowest name.
func (r *Resolver) Resolve(ctrl *model.ActivityController) (model.TierSnapshot, error) {
	base, ok := r.tiers[ctrl.BaseTier]
	if !ok {
		return model.TierSnapshot{}, fmt.Errorf("controller %s: %w (%q)", ctrl.ID, ErrBaseTierMissing, ctrl.BaseTier)
	}

	now := r.Today()
	today := r.Day(now)
	wd := today.Weekday()

	var matches []holiday.Match
	if r.calendar != nil {
		matches = r.calendar.ActiveOn(today)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Holiday != matches[j].Holiday {
			return matches[i].Holiday < matches[j].Holiday
		}
		return matches[i].Tier < matches[j].Tier
	})

	var (
		override *model.MultiplierTier
		names    []string
	)
	for _, m := range matches {
		t, ok := r.tiers[m.Tier]
		if !ok {
			return model.TierSnapshot{}, fmt.Errorf("holiday %s: %w: %q", m.Holiday, ErrTierNotFound, m.Tier)
		}
		names = append(names, m.Holiday)
		if override == nil || t.Priority > override.Priority {
			picked := t
			override = &picked
		}
	}

	active := base
	if override != nil {
		active = *override
	}
	cur, err := r.currencies.Currency(active.Currency)
	if err != nil {
		return model.TierSnapshot{}, fmt.Errorf("tier %s: %w", active.Name, err)
	}

	ctrl.IsWeekend = wd == time.Saturday || wd == time.Sunday
	ctrl.IsHoliday = override != nil
	ctrl.Holidays = names
	ctrl.ActiveTier = ""
	if override != nil {
		ctrl.ActiveTier = override.Name
	}
	ctrl.ResolvedOn = now

	return model.TierSnapshot{
		Controller: *ctrl,
		Base:       base,
		Override:   override,
		Currency:   cur,
		Date:       today,
	}, nil
}

// Restore rebuilds the snapshot of a previously resolved day from the
// controller's stored flags, without consulting the calendar.
func (r *Resolver) Restore(ctrl model.ActivityController) (model.TierSnapshot, error) {
	base, ok := r.tiers[ctrl.BaseTier]
	if !ok {
		return model.TierSnapshot{}, fmt.Errorf("controller %s: %w (%q)", ctrl.ID, ErrBaseTierMissing, ctrl.BaseTier)
	}

	var override *model.MultiplierTier
	active := base
	if ctrl.ActiveTier != "" {
		t, ok := r.tiers[ctrl.ActiveTier]
		if !ok {
			return model.TierSnapshot{}, fmt.Errorf("controller %s: %w: %q", ctrl.ID, ErrTierNotFound, ctrl.ActiveTier)
		}
		override = &t
		active = t
	}
	cur, err := r.currencies.Currency(active.Currency)
	if err != nil {
		return model.TierSnapshot{}, fmt.Errorf("tier %s: %w", active.Name, err)
	}

	ctrl.Holidays = append([]string(nil), ctrl.Holidays...)
	return model.TierSnapshot{
		Controller: ctrl,
		Base:       base,
		Override:   override,
		Currency:   cur,
		Date:       r.Day(ctrl.ResolvedOn),
	}, nil
}

// Day returns midnight of the reward day containing t. Before the reset
// hour, t still belongs to the previous calendar day.
func (r *Resolver) Day(t time.Time) time.Time {
	y, m, d := t.In(r.loc).Add(-time.Duration(r.resetHour) * time.Hour).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}

// IsToday reports whether t falls in the current reward day.
func (r *Resolver) IsToday(t time.Time) bool {
	return r.Day(t).Equal(r.Day(r.Today()))
}

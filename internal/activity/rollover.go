package activity

import (
	"context"
	"errors"
	"fmt"
	"log"

	"VoiceEconomy/internal/model"
	"VoiceEconomy/internal/recorder"
	"VoiceEconomy/internal/rollover"
	"VoiceEconomy/internal/store"
)

// Rollover closes the current day for every member and opens the next.
//
// The opening day is resolved first; if that fails nothing changes. Members
// whose deposit fails keep their daily state and are settled again at the
// next rollover.
func (e *Engine) Rollover(ctx context.Context) (*rollover.Report, error) {
	start := e.clock.Now()

	e.day.Lock()
	defer e.day.Unlock()

	ctrl := e.ctrl
	ctrl.Holidays = append([]string(nil), e.ctrl.Holidays...)
	opening, err := e.resolver.Resolve(&ctrl)
	if err != nil {
		return nil, fmt.Errorf("resolve opening day: %w", err)
	}

	report := &rollover.Report{
		RunID:     recorder.NewRunID(),
		StartedAt: start,
		Closing:   e.snap,
		Opening:   opening,
	}
	log.Printf("[INFO] rollover %s: closing %s, opening %s",
		report.RunID, e.snap.Active().Name, opening.Active().Name)

	for _, m := range e.sortedMembers() {
		st, err := e.settle(ctx, m, e.snap, opening)
		evt := &recorder.SettlementEvent{
			RunID:             report.RunID,
			MemberID:          st.MemberID,
			Points:            st.Points,
			Currency:          st.Currency.Name,
			Deposited:         st.Deposited,
			SlotsUsed:         st.SlotsUsed,
			BestMultiplier:    st.BestMultiplier,
			SecondsInCall:     st.SecondsInCall,
			NewPointsRecord:   st.NewPointsRecord,
			NewCallTimeRecord: st.NewCallTimeRecord,
		}
		if err != nil {
			log.Printf("[ERROR] rollover %s: %v", st.MemberID, err)
			report.Failures = append(report.Failures, rollover.Failure{MemberID: st.MemberID, Err: err})
			evt.Err = err.Error()
			e.metrics.Settlements.WithLabelValues("failed").Inc()
		} else {
			report.Settlements = append(report.Settlements, st)
			e.metrics.Settlements.WithLabelValues("settled").Inc()
			if st.Points.IsPositive() {
				e.metrics.PointsSettled.Add(st.Points.InexactFloat64())
			}
		}
		if err := e.recorder.RecordSettlement(evt); err != nil {
			log.Printf("[ERROR] record settlement: %v", err)
		}
	}

	e.snap, e.ctrl, e.stale = opening, ctrl, false
	e.saveController(ctx, &ctrl)
	e.recordResolution(opening)

	report.FinishedAt = e.clock.Now()
	if err := e.recorder.RecordRun(&recorder.RunEvent{
		RunID:        report.RunID,
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
		ClosingTier:  report.Closing.Active().Name,
		OpeningTier:  opening.Active().Name,
		Members:      len(report.Settlements) + len(report.Failures),
		Settled:      len(report.Settlements),
		Failed:       len(report.Failures),
		TotalPoints:  report.TotalPoints(),
		CurrencyName: report.Closing.Currency.Name,
	}); err != nil {
		log.Printf("[ERROR] record run: %v", err)
	}
	e.metrics.RolloverDuration.Observe(report.FinishedAt.Sub(start).Seconds())

	log.Printf("[INFO] rollover %s done: %d settled, %d failed, %s paid",
		report.RunID, len(report.Settlements), len(report.Failures),
		report.Closing.Currency.Format(report.TotalPoints()))
	return report, nil
}

// settle rolls one member over. Callers hold the day write lock.
func (e *Engine) settle(ctx context.Context, m *member, closing, opening model.TierSnapshot) (rollover.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.state.MemberID
	failed := rollover.Settlement{MemberID: id, Points: m.state.PointsEarnedToday, Currency: closing.Currency}

	lt, err := e.store.LoadLongTerm(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		lt = &model.MemberLongTermState{MemberID: id}
	case err != nil:
		return failed, fmt.Errorf("load long-term %s: %w", id, err)
	}

	daily := m.state.Clone()
	st, err := e.coordinator.Rollover(daily, lt, closing, opening, e.clock.Now())
	if err != nil {
		return failed, err
	}
	m.state = daily

	// The deposit is done; save failures below are logged, not retried.
	if err := e.store.SaveLongTerm(ctx, lt); err != nil {
		e.metrics.SaveErrors.WithLabelValues("long_term").Inc()
		log.Printf("[ERROR] save long-term %s: %v", id, err)
	}
	if err := e.saveMember(ctx, daily); err != nil {
		log.Printf("[ERROR] %v", err)
	}
	return st, nil
}

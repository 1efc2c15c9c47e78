package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics holds Prometheus metrics for ticks and rollovers.
type EngineMetrics struct {
	TicksProcessed   prometheus.Counter
	TickDuration     prometheus.Histogram
	RewardsByOutcome *prometheus.CounterVec
	PointsAwarded    prometheus.Counter
	BudgetCorrupt    prometheus.Counter
	SaveErrors       *prometheus.CounterVec
	MembersInVoice   prometheus.Gauge
	MembersTracked   prometheus.Gauge

	RolloverDuration prometheus.Histogram
	Settlements      *prometheus.CounterVec
	PointsSettled    prometheus.Counter
}

// NewEngineMetrics creates and registers engine metrics on the given registry.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		TicksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_processed_total",
			Help:      "Total number of scheduler ticks processed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of one tick across all members in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		RewardsByOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_total",
			Help:      "Total number of reward evaluations, by outcome.",
		}, []string{"outcome"}),
		PointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_awarded_total",
			Help:      "Total points credited to daily balances.",
		}),
		BudgetCorrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_corrupt_total",
			Help:      "Reward evaluations skipped because a member's budget was inconsistent.",
		}),
		SaveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "save_errors_total",
			Help:      "Total number of failed state saves, by kind.",
		}, []string{"kind"}),
		MembersInVoice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members_in_voice",
			Help:      "Members in a voice channel at the last tick.",
		}),
		MembersTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members_tracked",
			Help:      "Members with daily activity state.",
		}),
		RolloverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rollover_duration_seconds",
			Help:      "Duration of the daily rollover in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Total member settlements, by result.",
		}, []string{"result"}),
		PointsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_settled_total",
			Help:      "Total points deposited at rollover.",
		}),
	}

	reg.MustRegister(
		m.TicksProcessed, m.TickDuration, m.RewardsByOutcome, m.PointsAwarded,
		m.BudgetCorrupt, m.SaveErrors, m.MembersInVoice, m.MembersTracked,
		m.RolloverDuration, m.Settlements, m.PointsSettled,
	)
	return m
}

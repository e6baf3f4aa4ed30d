package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zsprackett/quota-tray/internal/events"
	"github.com/zsprackett/quota-tray/internal/scheduler"
	"github.com/zsprackett/quota-tray/internal/state"
)

// Recorder holds the refresh-loop Prometheus collectors. It observes cycles
// from the scheduler and usage events from the state fan-out.
type Recorder struct {
	CyclesTotal     *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	LastSuccess     prometheus.Gauge
	UsagePercentage *prometheus.GaugeVec
	QuotaTokens     *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quota_tray",
				Name:      "refresh_cycles_total",
				Help:      "Total refresh cycles by trigger and outcome",
			},
			[]string{"trigger", "outcome"}, // outcome: "ok" or an error kind
		),
		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "quota_tray",
				Name:      "fetch_duration_seconds",
				Help:      "Usage API request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "quota_tray",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful refresh",
			},
		),
		UsagePercentage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quota_tray",
				Name:      "usage_percentage",
				Help:      "Usage percentage per limit type",
			},
			[]string{"type"},
		),
		QuotaTokens: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quota_tray",
				Name:      "quota_tokens",
				Help:      "Token quota of the TOKENS_LIMIT window",
			},
			[]string{"state"}, // "total" / "used" / "remaining"
		),
	}
	reg.MustRegister(r.CyclesTotal, r.FetchDuration, r.LastSuccess, r.UsagePercentage, r.QuotaTokens)
	return r
}

// ObserveCycle implements scheduler.CycleObserver.
func (r *Recorder) ObserveCycle(trigger scheduler.Trigger, o state.Outcome, fetchDuration time.Duration) {
	outcome := "ok"
	if o.Err != nil {
		outcome = string(o.Err.Kind)
	}
	r.CyclesTotal.WithLabelValues(string(trigger), outcome).Inc()
	if fetchDuration > 0 {
		r.FetchDuration.Observe(fetchDuration.Seconds())
	}
}

// Broadcast implements events.Broadcaster.
func (r *Recorder) Broadcast(e events.Event) {
	if e.Type != events.TypeUsageUpdate || e.Usage == nil {
		return
	}
	r.LastSuccess.Set(float64(e.Time.Unix()))
	for _, l := range e.Usage.Limits {
		r.UsagePercentage.WithLabelValues(l.Type).Set(l.Percentage)
	}
	if _, ok := e.Usage.TokenLimit(); ok {
		r.QuotaTokens.WithLabelValues("total").Set(float64(e.Usage.TotalQuota))
		r.QuotaTokens.WithLabelValues("used").Set(float64(e.Usage.UsedQuota))
		r.QuotaTokens.WithLabelValues("remaining").Set(float64(e.Usage.RemainingQuota))
	}
}

var _ scheduler.CycleObserver = (*Recorder)(nil)
var _ events.Broadcaster = (*Recorder)(nil)

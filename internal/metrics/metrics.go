// Package metrics exposes progress and schedule health as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sitepulse/internal/progress"
)

var statuses = []progress.Status{
	progress.StatusOnPlan,
	progress.StatusDelay,
	progress.StatusCompleted,
	progress.StatusHold,
	progress.StatusCancelled,
}

// Recorder owns its registry so several engines can coexist in one process.
// A nil *Recorder ignores every observation.
type Recorder struct {
	Registry *prometheus.Registry

	records     *prometheus.GaugeVec
	incomplete  *prometheus.GaugeVec
	warnings    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	revenue     *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		Registry: reg,
		records: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitepulse_records",
				Help: "Records in the last computation by phase and status",
			},
			[]string{"phase", "status"},
		),
		incomplete: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitepulse_incomplete_records",
				Help: "Records flagged as having incomplete input data",
			},
			[]string{"phase"},
		),
		warnings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_data_quality_warnings_total",
				Help: "Data-quality warnings raised while computing progress",
			},
			[]string{"phase", "code"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_step_transitions_total",
				Help: "Step machine mutations by phase and result",
			},
			[]string{"phase", "result"},
		),
		revenue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitepulse_design_revenue",
				Help: "Design revenue recognition from the last rollup",
			},
			[]string{"kind"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitepulse_computation_duration_seconds",
				Help:    "Time spent loading and computing a dashboard view",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"view"},
		),
	}
}

// ObserveRecords replaces the per-status gauges for a phase and counts warnings.
func (r *Recorder) ObserveRecords(phase string, recs []progress.Record) {
	if r == nil {
		return
	}
	counts := map[progress.Status]int{}
	incomplete := 0
	for _, rec := range recs {
		counts[rec.Status]++
		if rec.IncompleteData {
			incomplete++
		}
		for _, w := range rec.Warnings {
			r.warnings.WithLabelValues(phase, string(w.Code)).Inc()
		}
	}
	for _, s := range statuses {
		r.records.WithLabelValues(phase, string(s)).Set(float64(counts[s]))
	}
	r.incomplete.WithLabelValues(phase).Set(float64(incomplete))
}

// ObserveTransition counts an accepted or rejected step move.
func (r *Recorder) ObserveTransition(phase string, err error) {
	if r == nil {
		return
	}
	result := "accepted"
	if err != nil {
		result = "rejected"
	}
	r.transitions.WithLabelValues(phase, result).Inc()
}

func (r *Recorder) ObserveRollups(ro progress.Rollups) {
	if r == nil {
		return
	}
	r.revenue.WithLabelValues("budget").Set(ro.TotalBudget)
	r.revenue.WithLabelValues("forecast").Set(ro.TotalForecast)
	r.revenue.WithLabelValues("earned").Set(ro.TotalEarned)
}

func (r *Recorder) ObserveDuration(view string, started time.Time) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(view).Observe(time.Since(started).Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}

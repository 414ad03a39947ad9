package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts runs by result. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "live_editor",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by result (ok or failure reason).",
		}, []string{"result"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "live_editor",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs, including failed ones.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
	}
}

// rejected counts a Busy rejection. No run happened, so nothing is timed.
func (m *Metrics) rejected() {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(ReasonBusy)).Inc()
}

func (m *Metrics) observe(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}

package trace

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exports per-stage timing via Prometheus. It owns its
// collectors so tests can register them against private registries.
type PrometheusSink struct {
	stageDuration *prometheus.HistogramVec
	stagesTotal   *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labeld_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 30},
		}, []string{"stage"}),
		stagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labeld_stages_total",
			Help: "Completed pipeline stages partitioned by name.",
		}, []string{"stage"}),
	}
	for _, collector := range []prometheus.Collector{s.stageDuration, s.stagesTotal} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register trace collector: %w", err)
		}
	}
	return s, nil
}

// Record updates the collectors for one completed stage. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Record(evt Event) {
	name := string(evt.Stage)
	s.stageDuration.WithLabelValues(name).Observe(evt.StageDur.Seconds())
	s.stagesTotal.WithLabelValues(name).Inc()
}

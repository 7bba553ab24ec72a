package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts submission outcomes.
type Metrics struct {
	submissions      *prometheus.CounterVec
	optionalFailures prometheus.Counter
}

// NewMetrics creates the submission counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookintake_submissions_total",
				Help: "Submission attempts by outcome.",
			},
			[]string{"outcome"},
		),
		optionalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookintake_optional_image_failures_total",
			Help: "Copyright page images dropped because normalization or upload failed.",
		}),
	}
	for _, c := range []prometheus.Collector{m.submissions, m.optionalFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) outcome(o string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(o).Inc()
}

func (m *Metrics) optionalFailure() {
	if m == nil {
		return
	}
	m.optionalFailures.Inc()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer is the default metrics sink, registered on Registry.
var Observer = NewMetrics()

// Registry is the registry the default Observer is registered to.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(Observer.prometheus.Collectors()...)
}

// Metrics records the activity of the similarity engine.
type Metrics struct {
	prometheus Prometheus
}

// NewMetrics creates a new unregistered Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		prometheus: NewPrometheusMetrics(),
	}
}

// Register registers the collectors on the given registerer.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range m.prometheus.Collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Run counts a finished computation.
func (m *Metrics) Run(mode string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.prometheus.Runs.WithLabelValues(mode, outcome).Inc()
}

// Pairs counts the compared pairs.
func (m *Metrics) Pairs(n int) {
	m.prometheus.Pairs.Add(float64(n))
}

// Regularised counts a covariance that needed regularisation.
func (m *Metrics) Regularised() {
	m.prometheus.Regularised.Inc()
}

// Observe records the duration of a stage since the given start.
func (m *Metrics) Observe(stage string, start time.Time) {
	m.prometheus.Duration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

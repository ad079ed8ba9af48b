package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "free_ensemble"

// Prometheus holds the collectors of the similarity engine.
type Prometheus struct {
	Runs        *prometheus.CounterVec
	Pairs       prometheus.Counter
	Regularised prometheus.Counter
	Duration    *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors.
func NewPrometheusMetrics() Prometheus {
	return Prometheus{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "similarity computations by estimator mode and outcome",
			}, []string{"mode", "outcome"}),
		Pairs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pairs_total",
				Help:      "ensemble pairs compared",
			}),
		Regularised: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regularised_total",
				Help:      "covariances that needed diagonal jitter to become invertible",
			}),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "duration_seconds",
				Help:      "duration of the pipeline stages",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
			}, []string{"stage"}),
	}
}

// Collectors returns all the collectors for registration.
func (p Prometheus) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.Runs, p.Pairs, p.Regularised, p.Duration}
}

// Serve exposes the registry on /metrics at the given port.
// It blocks until the server fails.
func Serve(registry *prometheus.Registry, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	log.Info().Int("port", port).Msg("serving metrics")
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

// Package harmonic computes the harmonic similarity of conformational ensembles.
//
// Every ensemble is modelled as a multivariate normal distribution N(mean, covariance)
// of its (weighted) coordinates, and the similarity of two ensembles is the
// symmetrised Kullback-Leibler divergence of their distributions.
// Identical ensembles score 0, the score grows without bound as they diverge.
package harmonic

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/drakos74/free-ensemble/internal/align"
	"github.com/drakos74/free-ensemble/internal/concurrent"
	ensmath "github.com/drakos74/free-ensemble/internal/math"
	"github.com/drakos74/free-ensemble/internal/metrics"
	"github.com/drakos74/free-ensemble/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Engine computes harmonic similarity matrices.
// An engine is immutable once built and may be shared between goroutines.
type Engine struct {
	estimator  ensmath.Estimator
	weights    model.Weights
	align      bool
	inPlace    bool
	statistics bool
	workers    int
	jitter     float64
	metrics    *metrics.Metrics
}

// New creates a new engine with the shrinkage estimator and no alignment.
func New() *Engine {
	return &Engine{
		estimator: ensmath.Shrinkage{},
		workers:   runtime.NumCPU(),
		jitter:    ensmath.DefaultJitter,
		metrics:   metrics.Observer,
	}
}

// WithMode selects the covariance estimator for the given mode.
func (e *Engine) WithMode(mode model.Mode) (*Engine, error) {
	estimator, err := ensmath.NewEstimator(mode)
	if err != nil {
		return nil, err
	}
	return e.WithEstimator(estimator), nil
}

// WithEstimator sets a custom covariance estimator.
func (e *Engine) WithEstimator(estimator ensmath.Estimator) *Engine {
	e.estimator = estimator
	return e
}

// WithWeights sets the per-atom weights, nil means uniform.
func (e *Engine) WithWeights(weights model.Weights) *Engine {
	e.weights = weights
	return e
}

// Align enables the superposition of all frames onto the first frame of the first ensemble.
func (e *Engine) Align(align bool) *Engine {
	e.align = align
	return e
}

// InPlace makes the alignment overwrite the input coordinates.
// Without it the inputs are never modified.
func (e *Engine) InPlace(inPlace bool) *Engine {
	e.inPlace = inPlace
	return e
}

// Statistics attaches the per-ensemble statistics to the result.
func (e *Engine) Statistics(statistics bool) *Engine {
	e.statistics = statistics
	return e
}

// Workers limits the number of concurrent units of work.
func (e *Engine) Workers(workers int) *Engine {
	if workers > 0 {
		e.workers = workers
	}
	return e
}

// Jitter sets the relative diagonal regularisation for covariances that are not invertible.
func (e *Engine) Jitter(jitter float64) *Engine {
	if jitter > 0 {
		e.jitter = jitter
	}
	return e
}

// WithMetrics sets the metrics sink.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	if m != nil {
		e.metrics = m
	}
	return e
}

// Mode returns the mode of the engine estimator.
func (e *Engine) Mode() model.Mode {
	return e.estimator.Mode()
}

// Compute computes the similarity matrix of the given ensembles.
// All inputs are validated before any computation starts,
// on failure no partial result is returned.
func (e *Engine) Compute(ctx context.Context, ensembles []*model.Ensemble) (*Result, error) {
	start := time.Now()
	result, err := e.compute(ctx, ensembles)
	e.metrics.Run(string(e.Mode()), err)
	e.metrics.Observe("total", start)
	if err != nil {
		log.Error().
			Err(err).
			Str("mode", string(e.Mode())).
			Int("ensembles", len(ensembles)).
			Msg("could not compute harmonic similarity")
		return nil, err
	}
	result.Elapsed = time.Since(start)
	log.Info().
		Str("id", result.ID).
		Str("mode", string(result.Mode)).
		Int("ensembles", result.Matrix.Len()).
		Bool("aligned", result.Aligned).
		Dur("elapsed", result.Elapsed).
		Msg("computed harmonic similarity")
	return result, nil
}

func (e *Engine) compute(ctx context.Context, ensembles []*model.Ensemble) (*Result, error) {
	if err := e.Validate(ensembles); err != nil {
		return nil, err
	}

	n := len(ensembles)
	result := &Result{
		ID:    uuid.New().String(),
		Mode:  e.Mode(),
		Names: make([]string, n),
	}
	for i, ens := range ensembles {
		result.Names[i] = ens.Name
	}

	if e.align {
		start := time.Now()
		aligned, reports, err := align.New().
			WithWeights(e.weights).
			InPlace(e.inPlace).
			Align(ctx, ensembles)
		if err != nil {
			return nil, fmt.Errorf("could not align ensembles: %w", err)
		}
		ensembles = aligned
		result.Aligned = true
		result.Alignment = reports
		e.metrics.Observe("align", start)
	}

	start := time.Now()
	stats, err := e.estimate(ctx, ensembles)
	if err != nil {
		return nil, err
	}
	e.metrics.Observe("statistics", start)

	start = time.Now()
	gaussians, err := e.prepare(ctx, stats)
	if err != nil {
		return nil, err
	}
	e.metrics.Observe("regularise", start)

	start = time.Now()
	matrix, err := e.divergence(ctx, gaussians)
	if err != nil {
		return nil, err
	}
	e.metrics.Observe("divergence", start)

	result.Matrix = matrix
	if e.statistics {
		result.Statistics = stats
	}
	return result, nil
}

// Validate checks the ensembles against the engine configuration.
func (e *Engine) Validate(ensembles []*model.Ensemble) error {
	if len(ensembles) == 0 {
		return fmt.Errorf("no ensembles to compare: %w", model.ErrEmptyInput)
	}
	for i, ens := range ensembles {
		if ens == nil {
			return fmt.Errorf("ensemble %d is nil: %w", i, model.ErrEmptyInput)
		}
		if err := ens.Validate(); err != nil {
			return fmt.Errorf("invalid ensemble %d: %w", i, err)
		}
	}
	d := ensembles[0].Dim()
	for i, ens := range ensembles {
		if ens.Dim() != d {
			return &model.DimensionMismatchError{
				Ensemble: i,
				Expected: d,
				Actual:   ens.Dim(),
			}
		}
	}
	if err := e.weights.Validate(ensembles[0].Atoms); err != nil {
		return err
	}
	required := e.estimator.MinFrames(d)
	for i, ens := range ensembles {
		if ens.Len() < required {
			return &model.InsufficientSamplesError{
				Ensemble: i,
				Frames:   ens.Len(),
				Required: required,
				Mode:     e.Mode(),
			}
		}
	}
	return nil
}

// estimate computes the statistics of every ensemble, one unit of work per ensemble.
func (e *Engine) estimate(ctx context.Context, ensembles []*model.Ensemble) ([]model.Statistics, error) {
	atoms := ensembles[0].Atoms
	var weights []float64
	if e.weights != nil {
		weights = e.weights.Coordinates(atoms)
	}

	stats := make([]model.Statistics, len(ensembles))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, ens := range ensembles {
		i, ens := i, ens
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			est, err := e.estimator.Estimate(ens.Matrix(), weights)
			if err != nil {
				return fmt.Errorf("could not estimate statistics of ensemble %d: %w", i, err)
			}
			stats[i] = model.Statistics{
				Ensemble:   i,
				Name:       ens.Name,
				Frames:     ens.Len(),
				Mode:       e.Mode(),
				Mean:       est.Mean,
				Covariance: est.Covariance,
				Shrinkage:  est.Shrinkage,
			}
			log.Debug().
				Int("ensemble", i).
				Str("name", ens.Name).
				Int("frames", ens.Len()).
				Float64("shrinkage", est.Shrinkage).
				Msg("estimated ensemble statistics")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// prepare regularises the covariances into invertible gaussians.
func (e *Engine) prepare(ctx context.Context, stats []model.Statistics) ([]*ensmath.Gaussian, error) {
	gaussians := make([]*ensmath.Gaussian, len(stats))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range stats {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			gaussian, err := ensmath.NewGaussian(stats[i].Mean, stats[i].Covariance, e.jitter)
			if err != nil {
				if errors.Is(err, model.ErrSingularCovariance) {
					return &model.SingularCovarianceError{Ensemble: i}
				}
				return fmt.Errorf("could not prepare ensemble %d: %w", i, err)
			}
			if gaussian.Jitter() > 0 {
				e.metrics.Regularised()
				log.Warn().
					Int("ensemble", i).
					Str("name", stats[i].Name).
					Float64("jitter", gaussian.Jitter()).
					Msg("regularised covariance")
			}
			gaussians[i] = gaussian
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return gaussians, nil
}

// divergence fills the similarity matrix, one unit of work per unordered pair.
func (e *Engine) divergence(ctx context.Context, gaussians []*ensmath.Gaussian) (*model.Matrix, error) {
	n := len(gaussians)
	matrix := model.NewMatrix(n)
	scores := make([]float64, n*(n-1)/2)
	progress := concurrent.NewCounter(len(scores))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			i, j, slot := i, j, k
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				v, err := ensmath.SymmetricKL(gaussians[i], gaussians[j])
				if err != nil {
					return fmt.Errorf("could not compute divergence of ensembles %d and %d: %w", i, j, err)
				}
				scores[slot] = v
				log.Debug().
					Int("i", i).
					Int("j", j).
					Float64("score", v).
					Int("done", progress.Track()).
					Int("pairs", progress.Total()).
					Msg("compared ensembles")
				return nil
			})
			k++
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	k = 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			matrix.Set(i, j, scores[k])
			k++
		}
	}
	e.metrics.Pairs(progress.Get())
	log.Debug().
		Int("pairs", progress.Get()).
		Bool("complete", progress.Done()).
		Msg("filled similarity matrix")
	return matrix, nil
}

// Similarity computes the harmonic similarity of the ensembles with the given options.
func Similarity(ctx context.Context, ensembles []*model.Ensemble, mode model.Mode, weights model.Weights, align bool) (*Result, error) {
	engine, err := New().WithMode(mode)
	if err != nil {
		return nil, err
	}
	return engine.
		WithWeights(weights).
		Align(align).
		Statistics(true).
		Compute(ctx, ensembles)
}

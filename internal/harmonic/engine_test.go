package harmonic

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	ensmath "github.com/drakos74/free-ensemble/internal/math"
	"github.com/drakos74/free-ensemble/internal/metrics"
	"github.com/drakos74/free-ensemble/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const atoms = 20

// masses cycles through the masses of backbone atoms.
func masses(n int) model.Weights {
	backbone := []float64{14.007, 12.011, 12.011, 15.999}
	w := make(model.Weights, n)
	for i := range w {
		w[i] = backbone[i%len(backbone)]
	}
	return w
}

// rotate rotates the frame around the z and x axes and translates it.
func rotate(frame []float64, alpha, beta float64, shift [3]float64) []float64 {
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	cb, sb := math.Cos(beta), math.Sin(beta)
	out := make([]float64, len(frame))
	for a := 0; a < len(frame)/3; a++ {
		x, y, z := frame[3*a], frame[3*a+1], frame[3*a+2]
		x, y = ca*x-sa*y, sa*x+ca*y
		y, z = cb*y-sb*z, sb*y+cb*z
		out[3*a] = x + shift[0]
		out[3*a+1] = y + shift[1]
		out[3*a+2] = z + shift[2]
	}
	return out
}

type generator struct {
	rng  *rand.Rand
	base []float64
}

func newGenerator(seed int64, atoms int) *generator {
	rng := rand.New(rand.NewSource(seed))
	return &generator{
		rng:  rng,
		base: ensmath.Structure(rng, atoms, 3.8),
	}
}

// ensemble samples an ensemble with randomly placed frames.
func (g *generator) ensemble(name string, frames int, osc ensmath.Oscillator) *model.Ensemble {
	osc.Base = g.base
	e := model.NewEnsemble(name, len(g.base)/3)
	for _, f := range osc.Frames(g.rng, frames) {
		shift := [3]float64{g.rng.Float64() * 10, g.rng.Float64() * 10, g.rng.Float64() * 10}
		e.Add(rotate(f, g.rng.Float64()*2*math.Pi, g.rng.Float64()*math.Pi, shift)...)
	}
	return e
}

// still samples an ensemble without rigid motions.
func (g *generator) still(name string, frames int, osc ensmath.Oscillator) *model.Ensemble {
	osc.Base = g.base
	e := model.NewEnsemble(name, len(g.base)/3)
	for _, f := range osc.Frames(g.rng, frames) {
		e.Add(f...)
	}
	return e
}

func assertMatrix(t *testing.T, m *model.Matrix, n int) {
	require.Equal(t, n, m.Len())
	for i := 0; i < n; i++ {
		assert.Equal(t, 0.0, m.At(i, i))
		for j := 0; j < n; j++ {
			assert.Equal(t, m.At(i, j), m.At(j, i))
			assert.True(t, m.At(i, j) >= 0, "negative score at %d,%d: %f", i, j, m.At(i, j))
			assert.True(t, ensmath.Finite(m.At(i, j)))
		}
	}
}

// countingEstimator counts the estimations it performs.
type countingEstimator struct {
	ensmath.Estimator
	calls int64
}

func (c *countingEstimator) Estimate(frames mat.Matrix, weights []float64) (ensmath.Estimate, error) {
	atomic.AddInt64(&c.calls, 1)
	return c.Estimator.Estimate(frames, weights)
}

func TestEngine_Scenario(t *testing.T) {
	g := newGenerator(17, atoms)
	ensembles := []*model.Ensemble{
		g.ensemble("run-1", 98, ensmath.Oscillator{Noise: 0.4, Amplitude: 1.0}),
		g.ensemble("run-2", 102, ensmath.Oscillator{Noise: 0.6, Amplitude: 0.2, Period: 0.3}),
		g.ensemble("run-3", 10, ensmath.Oscillator{Noise: 0.3, Amplitude: 2.0, Anisotropy: 1}),
		g.ensemble("run-4", 57, ensmath.Oscillator{Noise: 0.8, Amplitude: 0.5, Anisotropy: 0.5}),
	}

	result, err := New().
		WithWeights(masses(atoms)).
		Align(true).
		Statistics(true).
		Compute(context.Background(), ensembles)
	require.NoError(t, err)

	assert.Equal(t, model.Shrinkage, result.Mode)
	assert.True(t, result.Aligned)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, []string{"run-1", "run-2", "run-3", "run-4"}, result.Names)
	assertMatrix(t, result.Matrix, 4)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if i != j {
				assert.True(t, result.Matrix.At(i, j) > 0, "ensembles %d and %d judged identical", i, j)
			}
		}
	}

	require.Len(t, result.Statistics, 4)
	for i, st := range result.Statistics {
		assert.Equal(t, i, st.Ensemble)
		assert.Equal(t, ensembles[i].Len(), st.Frames)
		assert.Len(t, st.Mean, 3*atoms)
		r, c := st.Covariance.Dims()
		assert.Equal(t, 3*atoms, r)
		assert.Equal(t, 3*atoms, c)
		assert.True(t, st.Shrinkage >= 0 && st.Shrinkage <= 1)
	}
	// fewer frames than dimensions needs shrinkage
	assert.True(t, result.Statistics[2].Shrinkage > 0)
	require.Len(t, result.Alignment, 4)
}

func TestEngine_PairwiseScores(t *testing.T) {
	g := newGenerator(21, 6)
	ensembles := []*model.Ensemble{
		g.still("a", 60, ensmath.Oscillator{Noise: 0.3, Amplitude: 1}),
		g.still("b", 45, ensmath.Oscillator{Noise: 0.6, Amplitude: 0.2}),
		g.still("c", 30, ensmath.Oscillator{Noise: 0.4, Amplitude: 2, Anisotropy: 1}),
		g.still("d", 80, ensmath.Oscillator{Noise: 0.9}),
	}

	for _, workers := range []int{1, 8} {
		t.Run(fmt.Sprintf("workers-%d", workers), func(t *testing.T) {
			result, err := New().Workers(workers).Statistics(true).Compute(context.Background(), ensembles)
			require.NoError(t, err)
			require.Len(t, result.Statistics, 4)

			gaussians := make([]*ensmath.Gaussian, 4)
			for i, st := range result.Statistics {
				gaussians[i], err = ensmath.NewGaussian(st.Mean, st.Covariance, ensmath.DefaultJitter)
				require.NoError(t, err)
			}
			for i := 0; i < 4; i++ {
				for j := i + 1; j < 4; j++ {
					expected, err := ensmath.SymmetricKL(gaussians[i], gaussians[j])
					require.NoError(t, err)
					assert.True(t, expected > 0)
					assert.InDelta(t, expected, result.Matrix.At(i, j), 1e-9*(1+expected), "pair %d,%d", i, j)
					assert.InDelta(t, expected, result.Matrix.At(j, i), 1e-9*(1+expected), "pair %d,%d", j, i)
				}
			}
		})
	}
}

func TestEngine_TwoEnsembles(t *testing.T) {
	g := newGenerator(22, 4)
	a := g.still("a", 30, ensmath.Oscillator{Noise: 0.5})
	b := g.still("b", 30, ensmath.Oscillator{Noise: 0.8, Amplitude: 1})

	result, err := New().Workers(2).Compute(context.Background(), []*model.Ensemble{a, b})
	require.NoError(t, err)
	assertMatrix(t, result.Matrix, 2)
	assert.True(t, result.Matrix.At(0, 1) > 0)
}

func TestEngine_Identity(t *testing.T) {

	type test struct {
		mode  model.Mode
		align bool
	}

	tests := map[string]test{
		"shrinkage": {
			mode: model.Shrinkage,
		},
		"shrinkage-aligned": {
			mode:  model.Shrinkage,
			align: true,
		},
		"maximum-likelihood": {
			mode: model.MaximumLikelihood,
		},
		"maximum-likelihood-aligned": {
			mode:  model.MaximumLikelihood,
			align: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			g := newGenerator(23, 5)
			a := g.ensemble("a", 80, ensmath.Oscillator{Noise: 0.5, Amplitude: 1})
			b := g.ensemble("b", 80, ensmath.Oscillator{Noise: 0.9, Amplitude: 0.1})
			engine, err := New().WithMode(tt.mode)
			require.NoError(t, err)
			result, err := engine.Align(tt.align).Compute(context.Background(), []*model.Ensemble{a, a.Clone(), b})
			require.NoError(t, err)
			assertMatrix(t, result.Matrix, 3)
			assert.InDelta(t, 0, result.Matrix.At(0, 1), 1e-8)
			assert.True(t, result.Matrix.At(0, 2) > 0)
			assert.InDelta(t, result.Matrix.At(0, 2), result.Matrix.At(1, 2), 1e-8)
			assert.Nil(t, result.Statistics)
		})
	}
}

func TestEngine_WeightInvariance(t *testing.T) {
	g := newGenerator(5, 8)
	ensembles := []*model.Ensemble{
		g.ensemble("a", 40, ensmath.Oscillator{Noise: 0.5, Amplitude: 1}),
		g.ensemble("b", 12, ensmath.Oscillator{Noise: 0.2, Amplitude: 0.4}),
		g.ensemble("c", 30, ensmath.Oscillator{Noise: 0.7, Amplitude: 0.1, Anisotropy: 1}),
	}

	for _, aligned := range []bool{false, true} {
		plain, err := New().Align(aligned).Compute(context.Background(), ensembles)
		require.NoError(t, err)

		uniform := make(model.Weights, 8)
		for i := range uniform {
			uniform[i] = 2.5
		}
		weighted, err := New().Align(aligned).WithWeights(uniform).Compute(context.Background(), ensembles)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				assert.InDelta(t, plain.Matrix.At(i, j), weighted.Matrix.At(i, j), 1e-9*(1+plain.Matrix.At(i, j)))
			}
		}
	}
}

func TestEngine_InsufficientSamples(t *testing.T) {
	g := newGenerator(31, atoms)
	ensembles := []*model.Ensemble{
		g.still("a", 100, ensmath.Oscillator{Noise: 0.5, Amplitude: 1}),
		g.still("b", 100, ensmath.Oscillator{Noise: 0.4}),
		g.still("c", 10, ensmath.Oscillator{Noise: 0.6, Amplitude: 0.3}),
	}

	ml, err := New().WithMode(model.MaximumLikelihood)
	require.NoError(t, err)
	counter := &countingEstimator{Estimator: ensmath.MaximumLikelihood{}}
	_, err = ml.WithEstimator(counter).Compute(context.Background(), ensembles)
	require.ErrorIs(t, err, model.ErrInsufficientSamples)
	var ise *model.InsufficientSamplesError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 2, ise.Ensemble)
	assert.Equal(t, 10, ise.Frames)
	assert.Equal(t, 3*atoms+1, ise.Required)
	assert.Equal(t, int64(0), atomic.LoadInt64(&counter.calls))

	result, err := New().Compute(context.Background(), ensembles)
	require.NoError(t, err)
	assertMatrix(t, result.Matrix, 3)
}

func TestEngine_DimensionMismatch(t *testing.T) {
	a := newGenerator(1, 6).still("a", 30, ensmath.Oscillator{Noise: 0.5})
	b := newGenerator(2, 7).still("b", 30, ensmath.Oscillator{Noise: 0.5})

	counter := &countingEstimator{Estimator: ensmath.Shrinkage{}}
	_, err := New().WithEstimator(counter).Compute(context.Background(), []*model.Ensemble{a, a.Clone(), b})
	require.ErrorIs(t, err, model.ErrDimensionMismatch)
	var dme *model.DimensionMismatchError
	require.ErrorAs(t, err, &dme)
	assert.Equal(t, 2, dme.Ensemble)
	assert.Equal(t, 18, dme.Expected)
	assert.Equal(t, 21, dme.Actual)
	assert.Equal(t, int64(0), atomic.LoadInt64(&counter.calls))
}

func TestEngine_InvalidWeights(t *testing.T) {
	g := newGenerator(3, 4)
	ensembles := []*model.Ensemble{
		g.still("a", 20, ensmath.Oscillator{Noise: 0.5}),
		g.still("b", 20, ensmath.Oscillator{Noise: 0.3}),
	}

	tests := map[string]model.Weights{
		"length":   {1, 1, 1},
		"negative": {1, -1, 1, 1},
		"zero":     {0, 0, 0, 0},
		"nan":      {1, math.NaN(), 1, 1},
	}

	for name, weights := range tests {
		t.Run(name, func(t *testing.T) {
			counter := &countingEstimator{Estimator: ensmath.Shrinkage{}}
			_, err := New().
				WithEstimator(counter).
				WithWeights(weights).
				Align(true).
				Compute(context.Background(), ensembles)
			assert.ErrorIs(t, err, model.ErrInvalidWeight)
			assert.Equal(t, int64(0), atomic.LoadInt64(&counter.calls))
		})
	}
}

func TestEngine_PartiallyZeroWeights(t *testing.T) {
	g := newGenerator(8, 4)
	ensembles := []*model.Ensemble{
		g.ensemble("a", 30, ensmath.Oscillator{Noise: 0.5, Amplitude: 1}),
		g.ensemble("b", 30, ensmath.Oscillator{Noise: 0.3}),
	}
	for _, mode := range []model.Mode{model.Shrinkage, model.MaximumLikelihood} {
		engine, err := New().WithMode(mode)
		require.NoError(t, err)
		result, err := engine.
			WithWeights(model.Weights{1, 0, 2, 1}).
			Align(true).
			Compute(context.Background(), ensembles)
		require.NoError(t, err)
		assertMatrix(t, result.Matrix, 2)
		assert.True(t, result.Matrix.At(0, 1) > 0)
	}
}

func TestEngine_SingularCovariance(t *testing.T) {
	g := newGenerator(4, 2)
	varied := g.still("varied", 20, ensmath.Oscillator{Noise: 0.5})
	frozen := model.NewEnsemble("frozen", 2)
	for i := 0; i < 20; i++ {
		frozen.Add(g.base...)
	}

	for _, mode := range []model.Mode{model.Shrinkage, model.MaximumLikelihood} {
		engine, err := New().WithMode(mode)
		require.NoError(t, err)
		_, err = engine.Compute(context.Background(), []*model.Ensemble{varied, frozen})
		require.ErrorIs(t, err, model.ErrSingularCovariance)
		var sce *model.SingularCovarianceError
		require.ErrorAs(t, err, &sce)
		assert.Equal(t, 1, sce.Ensemble)
	}
}

func TestEngine_Immutability(t *testing.T) {
	g := newGenerator(12, 6)
	ensembles := []*model.Ensemble{
		g.ensemble("a", 25, ensmath.Oscillator{Noise: 0.5, Amplitude: 1}),
		g.ensemble("b", 25, ensmath.Oscillator{Noise: 0.3}),
	}
	original := []*model.Ensemble{ensembles[0].Clone(), ensembles[1].Clone()}

	copied, err := New().Align(true).Compute(context.Background(), ensembles)
	require.NoError(t, err)
	assert.Equal(t, original, ensembles)

	inPlace, err := New().Align(true).InPlace(true).Compute(context.Background(), ensembles)
	require.NoError(t, err)
	assert.NotEqual(t, original[1], ensembles[1])
	// frame 0 of the first ensemble is the reference
	assert.InDeltaSlice(t, original[0].Frames[0], ensembles[0].Frames[0], 1e-9)

	assert.InDelta(t, copied.Matrix.At(0, 1), inPlace.Matrix.At(0, 1), 1e-9)
}

func TestEngine_Cancelled(t *testing.T) {
	g := newGenerator(6, 4)
	ensembles := []*model.Ensemble{
		g.still("a", 20, ensmath.Oscillator{Noise: 0.5}),
		g.still("b", 20, ensmath.Oscillator{Noise: 0.3}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, aligned := range []bool{false, true} {
		result, err := New().Align(aligned).Compute(ctx, ensembles)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, result)
	}
}

func TestEngine_Empty(t *testing.T) {
	_, err := New().Compute(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrEmptyInput)

	_, err = New().Compute(context.Background(), []*model.Ensemble{model.NewEnsemble("empty", 3)})
	assert.ErrorIs(t, err, model.ErrEmptyInput)
}

func TestEngine_SingleEnsemble(t *testing.T) {
	g := newGenerator(7, 3)
	result, err := New().Compute(context.Background(), []*model.Ensemble{g.still("a", 10, ensmath.Oscillator{Noise: 0.5})})
	require.NoError(t, err)
	assertMatrix(t, result.Matrix, 1)
}

func TestEngine_Workers(t *testing.T) {
	g := newGenerator(9, 5)
	ensembles := make([]*model.Ensemble, 6)
	for i := range ensembles {
		ensembles[i] = g.still(string(rune('a'+i)), 30, ensmath.Oscillator{Noise: 0.2 + 0.1*float64(i), Amplitude: float64(i)})
	}
	m := metrics.NewMetrics()
	serial, err := New().Workers(1).WithMetrics(m).Compute(context.Background(), ensembles)
	require.NoError(t, err)
	parallel, err := New().Workers(8).WithMetrics(m).Compute(context.Background(), ensembles)
	require.NoError(t, err)
	assert.Equal(t, serial.Matrix, parallel.Matrix)
	assert.NotEqual(t, serial.ID, parallel.ID)
}

func TestSimilarity(t *testing.T) {
	g := newGenerator(10, 4)
	ensembles := []*model.Ensemble{
		g.ensemble("a", 30, ensmath.Oscillator{Noise: 0.5, Amplitude: 1}),
		g.ensemble("b", 30, ensmath.Oscillator{Noise: 0.3}),
	}
	result, err := Similarity(context.Background(), ensembles, model.MaximumLikelihood, masses(4), true)
	require.NoError(t, err)
	assert.Equal(t, model.MaximumLikelihood, result.Mode)
	assert.Len(t, result.Statistics, 2)
	assertMatrix(t, result.Matrix, 2)

	_, err = Similarity(context.Background(), ensembles, model.NoMode, nil, false)
	assert.Error(t, err)
}

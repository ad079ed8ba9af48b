package math

import (
	"fmt"
	"math"

	"github.com/drakos74/free-ensemble/internal/model"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Estimator estimates the mean and covariance of a set of frames.
type Estimator interface {
	// Mode returns the estimator mode.
	Mode() model.Mode
	// MinFrames is the minimum number of frames the estimator accepts for the given dimension.
	MinFrames(dim int) int
	// Estimate computes the statistics of the frames (one per row),
	// after scaling every coordinate by the square root of its weight.
	// weights holds one weight per coordinate, nil means uniform.
	Estimate(frames mat.Matrix, weights []float64) (Estimate, error)
}

// Estimate is the result of a covariance estimation.
type Estimate struct {
	Mean       []float64
	Covariance *mat.SymDense
	Shrinkage  float64
}

// NewEstimator returns the estimator for the given mode.
func NewEstimator(mode model.Mode) (Estimator, error) {
	switch mode {
	case model.Shrinkage:
		return Shrinkage{}, nil
	case model.MaximumLikelihood:
		return MaximumLikelihood{}, nil
	}
	return nil, fmt.Errorf("no estimator for mode '%s'", mode)
}

// MaximumLikelihood is the empirical covariance estimator.
type MaximumLikelihood struct{}

func (MaximumLikelihood) Mode() model.Mode {
	return model.MaximumLikelihood
}

// MinFrames requires more frames than dimensions,
// otherwise the empirical covariance is rank deficient.
func (MaximumLikelihood) MinFrames(dim int) int {
	return dim + 1
}

func (ml MaximumLikelihood) Estimate(frames mat.Matrix, weights []float64) (Estimate, error) {
	x, err := weighted(frames, weights)
	if err != nil {
		return Estimate{}, err
	}
	n, _ := x.Dims()
	if n < 2 {
		return Estimate{}, fmt.Errorf("%d frames: %w", n, model.ErrInsufficientSamples)
	}
	return Estimate{
		Mean:       mean(x),
		Covariance: empirical(x),
	}, nil
}

// Shrinkage is the Ledoit-Wolf estimator, shrinking the empirical covariance S
// towards m*I where m = tr(S)/d. The intensity is
//
//	delta = min(b2, d2) / d2
//	d2 = |S - mI|^2
//	b2 = (sum_k |x_k|^4 - n|S|^2) / n^2
//
// with x_k the centered frames and |.| the Frobenius norm.
type Shrinkage struct{}

func (Shrinkage) Mode() model.Mode {
	return model.Shrinkage
}

func (Shrinkage) MinFrames(dim int) int {
	return 2
}

func (lw Shrinkage) Estimate(frames mat.Matrix, weights []float64) (Estimate, error) {
	x, err := weighted(frames, weights)
	if err != nil {
		return Estimate{}, err
	}
	n, d := x.Dims()
	if n < 2 {
		return Estimate{}, fmt.Errorf("%d frames: %w", n, model.ErrInsufficientSamples)
	}

	mu := mean(x)
	s := empirical(x)

	m := mat.Trace(s) / float64(d)

	// d2 = |S - mI|^2 , s2 = |S|^2
	var d2, s2 float64
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			v := s.At(i, j)
			s2 += v * v
			if i == j {
				v -= m
			}
			d2 += v * v
		}
	}

	// sum of |x_k|^4 over the centered frames
	var q float64
	for k := 0; k < n; k++ {
		var norm float64
		for j := 0; j < d; j++ {
			c := x.At(k, j) - mu[j]
			norm += c * c
		}
		q += norm * norm
	}
	nf := float64(n)
	b2 := math.Max(0, (q-nf*s2)/(nf*nf))

	var delta float64
	if d2 > 0 {
		delta = Clamp(b2/d2, 0, 1)
	}

	cov := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := (1 - delta) * s.At(i, j)
			if i == j {
				v += delta * m
			}
			cov.SetSym(i, j, v)
		}
	}

	return Estimate{
		Mean:       mu,
		Covariance: cov,
		Shrinkage:  delta,
	}, nil
}

// weighted scales every coordinate column by the square root of its weight.
func weighted(frames mat.Matrix, weights []float64) (*mat.Dense, error) {
	n, d := frames.Dims()
	x := mat.DenseCopyOf(frames)
	if weights == nil {
		return x, nil
	}
	if len(weights) != d {
		return nil, fmt.Errorf("%d weights for %d coordinates: %w", len(weights), d, model.ErrInvalidWeight)
	}
	for j, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("coordinate %d has negative weight %f: %w", j, w, model.ErrInvalidWeight)
		}
		sw := math.Sqrt(w)
		for i := 0; i < n; i++ {
			x.Set(i, j, sw*x.At(i, j))
		}
	}
	return x, nil
}

// mean returns the column means of x.
func mean(x *mat.Dense) []float64 {
	n, d := x.Dims()
	mu := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		mu[j] = stat.Mean(col, nil)
	}
	return mu
}

// empirical returns the covariance of the rows of x normalised by n.
func empirical(x *mat.Dense) *mat.SymDense {
	n, _ := x.Dims()
	var cov mat.SymDense
	// stat normalises by n-1
	stat.CovarianceMatrix(&cov, x, nil)
	cov.ScaleSym(float64(n-1)/float64(n), &cov)
	return &cov
}

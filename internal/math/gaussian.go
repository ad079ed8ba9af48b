package math

import (
	"errors"
	"fmt"
	"math"

	"github.com/drakos74/free-ensemble/internal/model"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultJitter is the relative diagonal jitter added to a covariance
	// that is not positive definite, as a fraction of its mean variance.
	DefaultJitter = 1e-10
	// MaxJitterAttempts is the number of times the jitter grows by a factor of 10
	// before the covariance is declared singular.
	MaxJitterAttempts = 8
)

// Gaussian is a multivariate normal distribution prepared for divergence computations.
type Gaussian struct {
	dim    int
	mean   *mat.VecDense
	cov    *mat.SymDense
	chol   mat.Cholesky
	logDet float64
	jitter float64
}

// NewGaussian prepares N(mean, cov).
// When cov is not positive definite, eps*I is added with eps = jitter * tr(cov)/d,
// growing eps tenfold up to MaxJitterAttempts times.
// A zero trace or a failed regularisation returns model.ErrSingularCovariance.
func NewGaussian(mean []float64, cov *mat.SymDense, jitter float64) (*Gaussian, error) {
	d := len(mean)
	if r, _ := cov.Dims(); r != d {
		return nil, fmt.Errorf("covariance of size %d for mean of size %d: %w", r, d, model.ErrDimensionMismatch)
	}
	if jitter <= 0 {
		jitter = DefaultJitter
	}
	g := &Gaussian{
		dim:  d,
		mean: mat.NewVecDense(d, append([]float64(nil), mean...)),
		cov:  cov,
	}
	if g.chol.Factorize(cov) {
		g.logDet = g.chol.LogDet()
		return g, nil
	}

	scale := mat.Trace(cov) / float64(d)
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("covariance trace is %f: %w", scale*float64(d), model.ErrSingularCovariance)
	}
	reg := mat.NewSymDense(d, nil)
	eps := jitter * scale
	for attempt := 0; attempt < MaxJitterAttempts; attempt++ {
		reg.CopySym(cov)
		for i := 0; i < d; i++ {
			reg.SetSym(i, i, reg.At(i, i)+eps)
		}
		if g.chol.Factorize(reg) {
			g.cov = reg
			g.logDet = g.chol.LogDet()
			g.jitter = eps
			return g, nil
		}
		eps *= 10
	}
	return nil, fmt.Errorf("no positive definite covariance after %d attempts: %w",
		MaxJitterAttempts, model.ErrSingularCovariance)
}

// Dim returns the dimension of the distribution.
func (g *Gaussian) Dim() int {
	return g.dim
}

// LogDet returns the log-determinant of the (regularised) covariance.
func (g *Gaussian) LogDet() float64 {
	return g.logDet
}

// Jitter returns the diagonal regularisation that was applied, 0 if none.
func (g *Gaussian) Jitter() float64 {
	return g.jitter
}

// Covariance returns the covariance used, including any regularisation.
func (g *Gaussian) Covariance() *mat.SymDense {
	return g.cov
}

// KL is the Kullback-Leibler divergence KL(p||q) of two gaussians of equal dimension.
//
//	KL(p||q) = 0.5 * [ tr(Sq^-1 Sp) + (mq-mp)' Sq^-1 (mq-mp) - d + ln|Sq| - ln|Sp| ]
func KL(p, q *Gaussian) (float64, error) {
	if p.dim != q.dim {
		return 0, fmt.Errorf("divergence between dimensions %d and %d: %w", p.dim, q.dim, model.ErrDimensionMismatch)
	}
	tr, err := q.traceSolve(p.cov)
	if err != nil {
		return 0, err
	}
	quad, err := q.quadratic(p.mean)
	if err != nil {
		return 0, err
	}
	return 0.5 * (tr + quad - float64(p.dim) + q.logDet - p.logDet), nil
}

// SymmetricKL is the symmetrised divergence 0.5 * [KL(p||q) + KL(q||p)].
// It is clamped at zero against round-off, a non-finite divergence is an error.
func SymmetricKL(p, q *Gaussian) (float64, error) {
	pq, err := KL(p, q)
	if err != nil {
		return 0, err
	}
	qp, err := KL(q, p)
	if err != nil {
		return 0, err
	}
	v := 0.5 * (pq + qp)
	if !Finite(v) {
		return 0, fmt.Errorf("divergence is %f: %w", v, model.ErrSingularCovariance)
	}
	if v < 0 {
		return 0, nil
	}
	return v, nil
}

// traceSolve returns tr(S^-1 a).
func (g *Gaussian) traceSolve(a mat.Matrix) (float64, error) {
	var x mat.Dense
	if err := g.chol.SolveTo(&x, a); !conditioned(err) {
		return 0, fmt.Errorf("could not solve covariance system: %w", err)
	}
	return mat.Trace(&x), nil
}

// quadratic returns (m - g.mean)' S^-1 (m - g.mean).
func (g *Gaussian) quadratic(m *mat.VecDense) (float64, error) {
	var diff, y mat.VecDense
	diff.SubVec(m, g.mean)
	if err := g.chol.SolveVecTo(&y, &diff); !conditioned(err) {
		return 0, fmt.Errorf("could not solve covariance system: %w", err)
	}
	return mat.Dot(&diff, &y), nil
}

// conditioned accepts a nil error or a mat.Condition warning,
// the solution is still computed for ill-conditioned systems.
func conditioned(err error) bool {
	if err == nil {
		return true
	}
	var c mat.Condition
	return errors.As(err, &c)
}

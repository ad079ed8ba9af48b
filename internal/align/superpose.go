package align

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Superpose rigidly fits frame onto reference with the weighted Kabsch algorithm
// and returns the fitted coordinates together with the weighted RMSD after the fit.
//
// Both slices hold x, y, z per atom. weights has one entry per atom, nil means uniform.
//
// A brief overview:
//
// Center both coordinate sets on their weighted centroids.
//
// Compute the 3x3 weighted covariance H = sum_a w_a (f_a - cf)(r_a - cr)'
//
// Compute the SVD of H = U S V'
//
// Compute d = sign(det(V U'))
//
// The optimal rotation is R = V diag(1, 1, d) U' and the fitted frame is R(f - cf) + cr.
//
// A negative d means V U' is a reflection, flipping the last singular vector
// keeps the transform a proper rotation.
func Superpose(reference, frame, weights []float64) ([]float64, float64, error) {
	if len(reference) != len(frame) || len(frame)%3 != 0 {
		return nil, 0, fmt.Errorf("cannot superpose frames of size %d and %d", len(frame), len(reference))
	}
	atoms := len(frame) / 3
	if weights != nil && len(weights) != atoms {
		return nil, 0, fmt.Errorf("%d weights for %d atoms", len(weights), atoms)
	}
	w := func(a int) float64 {
		if weights == nil {
			return 1
		}
		return weights[a]
	}

	cr, total := centroid(reference, weights)
	cf, _ := centroid(frame, weights)
	if total <= 0 {
		return nil, 0, fmt.Errorf("total weight is %f", total)
	}

	h := mat.NewDense(3, 3, nil)
	for a := 0; a < atoms; a++ {
		wa := w(a)
		if wa == 0 {
			continue
		}
		for i := 0; i < 3; i++ {
			fi := frame[3*a+i] - cf[i]
			for j := 0; j < 3; j++ {
				h.Set(i, j, h.At(i, j)+wa*fi*(reference[3*a+j]-cr[j]))
			}
		}
	}

	r, err := rotation(h)
	if err != nil {
		return nil, 0, err
	}

	fitted := make([]float64, len(frame))
	var sq float64
	for a := 0; a < atoms; a++ {
		x := frame[3*a] - cf[0]
		y := frame[3*a+1] - cf[1]
		z := frame[3*a+2] - cf[2]
		for i := 0; i < 3; i++ {
			v := r.At(i, 0)*x + r.At(i, 1)*y + r.At(i, 2)*z + cr[i]
			fitted[3*a+i] = v
			d := v - reference[3*a+i]
			sq += w(a) * d * d
		}
	}

	return fitted, math.Sqrt(sq / total), nil
}

// rotation computes the optimal proper rotation for the covariance h.
func rotation(h *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return nil, fmt.Errorf("could not factorize covariance")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&v, u.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(&v, u.T())
	}
	return &r, nil
}

// RMSD computes the weighted root mean square deviation of two frames without fitting.
func RMSD(a, b, weights []float64) (float64, error) {
	if len(a) != len(b) || len(a)%3 != 0 {
		return 0, fmt.Errorf("cannot compare frames of size %d and %d", len(a), len(b))
	}
	atoms := len(a) / 3
	if weights != nil && len(weights) != atoms {
		return 0, fmt.Errorf("%d weights for %d atoms", len(weights), atoms)
	}
	var sq, total float64
	for at := 0; at < atoms; at++ {
		w := 1.0
		if weights != nil {
			w = weights[at]
		}
		for i := 0; i < 3; i++ {
			d := a[3*at+i] - b[3*at+i]
			sq += w * d * d
		}
		total += w
	}
	if total <= 0 {
		return 0, fmt.Errorf("total weight is %f", total)
	}
	return math.Sqrt(sq / total), nil
}

// centroid calculates the weighted average position of a frame.
func centroid(frame, weights []float64) ([3]float64, float64) {
	var c [3]float64
	var total float64
	for a := 0; a < len(frame)/3; a++ {
		w := 1.0
		if weights != nil {
			w = weights[a]
		}
		c[0] += w * frame[3*a]
		c[1] += w * frame[3*a+1]
		c[2] += w * frame[3*a+2]
		total += w
	}
	if total > 0 {
		c[0] /= total
		c[1] /= total
		c[2] /= total
	}
	return c, total
}

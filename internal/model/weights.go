package model

import (
	"fmt"
	"math"
)

// Weights holds one non-negative weight per selected atom (e.g. the atomic masses).
// A nil Weights means uniform weighting.
type Weights []float64

// Uniform creates equal weights for the given number of atoms.
func Uniform(atoms int) Weights {
	w := make(Weights, atoms)
	for i := range w {
		w[i] = 1
	}
	return w
}

// Validate checks the weights against the number of atoms.
func (w Weights) Validate(atoms int) error {
	if w == nil {
		return nil
	}
	if len(w) != atoms {
		return &InvalidWeightError{
			Index:  -1,
			Reason: fmt.Sprintf("expected %d weights, got %d", atoms, len(w)),
		}
	}
	var sum float64
	for i, v := range w {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			return &InvalidWeightError{Index: i, Reason: "is not finite"}
		case v < 0:
			return &InvalidWeightError{Index: i, Reason: "is negative"}
		}
		sum += v
	}
	if sum == 0 {
		return &InvalidWeightError{Index: -1, Reason: "all weights are zero"}
	}
	return nil
}

// Atoms returns the per-atom weights normalised to a mean of 1.
// nil weights produce all ones.
func (w Weights) Atoms(atoms int) []float64 {
	if w == nil {
		return Uniform(atoms)
	}
	var sum float64
	for _, v := range w {
		sum += v
	}
	mean := sum / float64(len(w))
	norm := make([]float64, len(w))
	for i, v := range w {
		norm[i] = v / mean
	}
	return norm
}

// Coordinates expands the normalised atom weights to one weight per coordinate.
func (w Weights) Coordinates(atoms int) []float64 {
	aw := w.Atoms(atoms)
	cw := make([]float64, 3*len(aw))
	for i, v := range aw {
		cw[3*i] = v
		cw[3*i+1] = v
		cw[3*i+2] = v
	}
	return cw
}

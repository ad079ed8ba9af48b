package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Ensemble is an ordered set of frames sampled for the same atom selection.
// Each frame holds the x, y, z coordinates of every selected atom, in atom order.
type Ensemble struct {
	Name   string      `json:"name"`
	Atoms  int         `json:"atoms"`
	Frames [][]float64 `json:"frames"`
}

// NewEnsemble creates a new ensemble for the given number of atoms.
func NewEnsemble(name string, atoms int) *Ensemble {
	return &Ensemble{
		Name:   name,
		Atoms:  atoms,
		Frames: make([][]float64, 0),
	}
}

// Add appends a frame to the ensemble.
func (e *Ensemble) Add(frame ...float64) *Ensemble {
	e.Frames = append(e.Frames, frame)
	return e
}

// Dim returns the coordinate dimension of the ensemble frames.
func (e *Ensemble) Dim() int {
	return 3 * e.Atoms
}

// Len returns the number of frames.
func (e *Ensemble) Len() int {
	return len(e.Frames)
}

// Clone creates a deep copy of the ensemble.
func (e *Ensemble) Clone() *Ensemble {
	frames := make([][]float64, len(e.Frames))
	for i, f := range e.Frames {
		frames[i] = append([]float64(nil), f...)
	}
	return &Ensemble{
		Name:   e.Name,
		Atoms:  e.Atoms,
		Frames: frames,
	}
}

// Validate checks that every frame matches the ensemble dimension
// and holds only finite values.
func (e *Ensemble) Validate() error {
	if e.Atoms <= 0 {
		return fmt.Errorf("ensemble '%s' has no atoms: %w", e.Name, ErrEmptyInput)
	}
	if len(e.Frames) == 0 {
		return fmt.Errorf("ensemble '%s' has no frames: %w", e.Name, ErrEmptyInput)
	}
	d := e.Dim()
	for i, f := range e.Frames {
		if len(f) != d {
			return fmt.Errorf("frame %d of ensemble '%s' has %d coordinates, expected %d: %w",
				i, e.Name, len(f), d, ErrDimensionMismatch)
		}
		for j, v := range f {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("frame %d of ensemble '%s' has non-finite coordinate %d", i, e.Name, j)
			}
		}
	}
	return nil
}

// Matrix returns the frames as a dense matrix, one row per frame.
// The matrix owns a copy of the coordinates.
func (e *Ensemble) Matrix() *mat.Dense {
	d := e.Dim()
	data := make([]float64, 0, len(e.Frames)*d)
	for _, f := range e.Frames {
		data = append(data, f...)
	}
	return mat.NewDense(len(e.Frames), d, data)
}

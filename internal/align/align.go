// Package align superposes the frames of a set of ensembles onto a common reference.
package align

import (
	"context"
	"fmt"

	"github.com/drakos74/free-ensemble/internal/buffer"
	"github.com/drakos74/free-ensemble/internal/model"
	"github.com/rs/zerolog/log"
)

// Report summarises the fit of one ensemble onto the reference.
type Report struct {
	Ensemble int
	Name     string
	// Initial collects the per-frame RMSD to the reference before the fit.
	Initial *buffer.Stats
	// RMSD collects the per-frame RMSD after the fit.
	RMSD *buffer.Stats
}

// Aligner superposes ensembles onto the first frame of the first ensemble.
type Aligner struct {
	weights model.Weights
	inPlace bool
}

// New creates a new aligner.
func New() *Aligner {
	return &Aligner{}
}

// WithWeights sets the per-atom weights for the least-squares fit.
func (a *Aligner) WithWeights(weights model.Weights) *Aligner {
	a.weights = weights
	return a
}

// InPlace makes the aligner overwrite the coordinates of the given ensembles
// instead of returning aligned copies.
func (a *Aligner) InPlace(inPlace bool) *Aligner {
	a.inPlace = inPlace
	return a
}

// Align fits every frame of every ensemble onto the reference frame.
// Unless the aligner is in-place the input ensembles are left untouched
// and aligned copies are returned.
func (a *Aligner) Align(ctx context.Context, ensembles []*model.Ensemble) ([]*model.Ensemble, []Report, error) {
	if len(ensembles) == 0 || ensembles[0].Len() == 0 {
		return nil, nil, fmt.Errorf("no reference frame: %w", model.ErrEmptyInput)
	}
	atoms := ensembles[0].Atoms
	if err := a.weights.Validate(atoms); err != nil {
		return nil, nil, err
	}
	var weights []float64
	if a.weights != nil {
		weights = a.weights.Atoms(atoms)
	}

	for i, e := range ensembles {
		if e.Atoms != atoms {
			return nil, nil, &model.DimensionMismatchError{
				Ensemble: i,
				Expected: 3 * atoms,
				Actual:   e.Dim(),
			}
		}
	}

	reference := append([]float64(nil), ensembles[0].Frames[0]...)

	aligned := make([]*model.Ensemble, len(ensembles))
	reports := make([]Report, len(ensembles))
	for i, e := range ensembles {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		target := e
		if !a.inPlace {
			target = e.Clone()
		}
		initial := buffer.NewStats()
		rmsd := buffer.NewStats()
		for f, frame := range target.Frames {
			before, err := RMSD(reference, frame, weights)
			if err != nil {
				return nil, nil, fmt.Errorf("could not compare frame %d of ensemble %d: %w", f, i, err)
			}
			initial.Push(before)
			fitted, r, err := Superpose(reference, frame, weights)
			if err != nil {
				return nil, nil, fmt.Errorf("could not align frame %d of ensemble %d: %w", f, i, err)
			}
			copy(frame, fitted)
			rmsd.Push(r)
		}
		aligned[i] = target
		reports[i] = Report{
			Ensemble: i,
			Name:     e.Name,
			Initial:  initial,
			RMSD:     rmsd,
		}
		log.Debug().
			Int("ensemble", i).
			Str("name", e.Name).
			Int("frames", rmsd.Count()).
			Float64("initial-avg", initial.Avg()).
			Float64("rmsd-avg", rmsd.Avg()).
			Float64("rmsd-max", rmsd.Max()).
			Bool("in-place", a.inPlace).
			Msg("aligned ensemble")
	}
	return aligned, reports, nil
}

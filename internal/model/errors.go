package model

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput          = errors.New("empty input")
	ErrDimensionMismatch   = errors.New("dimension mismatch")
	ErrInsufficientSamples = errors.New("insufficient samples")
	ErrInvalidWeight       = errors.New("invalid weight")
	ErrSingularCovariance  = errors.New("singular covariance")
)

// DimensionMismatchError reports an ensemble whose coordinate dimension
// differs from the one of the first ensemble.
type DimensionMismatchError struct {
	Ensemble int
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("ensemble %d has dimension %d, expected %d: %s", e.Ensemble, e.Actual, e.Expected, ErrDimensionMismatch)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// InsufficientSamplesError reports an ensemble with too few frames
// for the selected covariance estimator.
type InsufficientSamplesError struct {
	Ensemble int
	Frames   int
	Required int
	Mode     Mode
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("ensemble %d has %d frames, %s estimation requires at least %d: %s",
		e.Ensemble, e.Frames, e.Mode, e.Required, ErrInsufficientSamples)
}

func (e *InsufficientSamplesError) Is(target error) bool {
	return target == ErrInsufficientSamples
}

// InvalidWeightError reports a malformed weight vector.
// Index is -1 when the problem concerns the vector as a whole.
type InvalidWeightError struct {
	Index  int
	Reason string
}

func (e *InvalidWeightError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Reason, ErrInvalidWeight)
	}
	return fmt.Sprintf("weight %d %s: %s", e.Index, e.Reason, ErrInvalidWeight)
}

func (e *InvalidWeightError) Is(target error) bool {
	return target == ErrInvalidWeight
}

// SingularCovarianceError reports an ensemble whose covariance could not
// be regularised into an invertible matrix.
type SingularCovarianceError struct {
	Ensemble int
}

func (e *SingularCovarianceError) Error() string {
	return fmt.Sprintf("covariance of ensemble %d: %s", e.Ensemble, ErrSingularCovariance)
}

func (e *SingularCovarianceError) Is(target error) bool {
	return target == ErrSingularCovariance
}

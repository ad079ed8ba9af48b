package model

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Statistics are the harmonic statistics of one ensemble,
// the mean and covariance of its weighted coordinates.
type Statistics struct {
	Ensemble   int
	Name       string
	Frames     int
	Mode       Mode
	Mean       []float64
	Covariance *mat.SymDense
	// Shrinkage is the intensity blended towards the identity target, 0 for maximum-likelihood.
	Shrinkage float64
}

// Dim returns the dimension of the statistics.
func (s *Statistics) Dim() int {
	return len(s.Mean)
}

type statistics struct {
	Ensemble   int       `json:"ensemble"`
	Name       string    `json:"name"`
	Frames     int       `json:"frames"`
	Mode       Mode      `json:"mode"`
	Dim        int       `json:"dim"`
	Mean       []float64 `json:"mean"`
	Covariance []float64 `json:"covariance"`
	Shrinkage  float64   `json:"shrinkage"`
}

// MarshalJSON flattens the covariance in row-major order.
func (s Statistics) MarshalJSON() ([]byte, error) {
	d := len(s.Mean)
	cov := make([]float64, 0, d*d)
	if s.Covariance != nil {
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				cov = append(cov, s.Covariance.At(i, j))
			}
		}
	}
	return json.Marshal(statistics{
		Ensemble:   s.Ensemble,
		Name:       s.Name,
		Frames:     s.Frames,
		Mode:       s.Mode,
		Dim:        d,
		Mean:       s.Mean,
		Covariance: cov,
		Shrinkage:  s.Shrinkage,
	})
}

// UnmarshalJSON restores the statistics from the flattened representation.
func (s *Statistics) UnmarshalJSON(b []byte) error {
	var st statistics
	if err := json.Unmarshal(b, &st); err != nil {
		return err
	}
	if len(st.Mean) != st.Dim || len(st.Covariance) != st.Dim*st.Dim {
		return fmt.Errorf("inconsistent statistics for dim %d: mean %d covariance %d",
			st.Dim, len(st.Mean), len(st.Covariance))
	}
	s.Ensemble = st.Ensemble
	s.Name = st.Name
	s.Frames = st.Frames
	s.Mode = st.Mode
	s.Mean = st.Mean
	s.Shrinkage = st.Shrinkage
	s.Covariance = nil
	if st.Dim > 0 {
		s.Covariance = mat.NewSymDense(st.Dim, st.Covariance)
	}
	return nil
}

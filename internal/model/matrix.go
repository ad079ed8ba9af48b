package model

import (
	"encoding/json"
	"fmt"
)

// Matrix is a symmetric similarity matrix with a zero diagonal.
type Matrix struct {
	n    int
	data []float64
}

// NewMatrix creates a new n x n zero matrix.
func NewMatrix(n int) *Matrix {
	return &Matrix{
		n:    n,
		data: make([]float64, n*n),
	}
}

// Len returns the number of ensembles the matrix compares.
func (m *Matrix) Len() int {
	return m.n
}

// At returns the score for the pair i, j.
func (m *Matrix) At(i, j int) float64 {
	return m.data[i*m.n+j]
}

// Set sets the score for both i, j and j, i.
// The diagonal is fixed at zero.
func (m *Matrix) Set(i, j int, v float64) {
	if i == j {
		panic(fmt.Sprintf("cannot set diagonal element %d of similarity matrix", i))
	}
	m.data[i*m.n+j] = v
	m.data[j*m.n+i] = v
}

// Rows returns a copy of the matrix as rows.
func (m *Matrix) Rows() [][]float64 {
	rows := make([][]float64, m.n)
	for i := 0; i < m.n; i++ {
		rows[i] = append([]float64(nil), m.data[i*m.n:(i+1)*m.n]...)
	}
	return rows
}

// Pairs returns the upper triangle scores in row order.
func (m *Matrix) Pairs() []float64 {
	pp := make([]float64, 0, m.n*(m.n-1)/2)
	for i := 0; i < m.n; i++ {
		for j := i + 1; j < m.n; j++ {
			pp = append(pp, m.At(i, j))
		}
	}
	return pp
}

func (m *Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Rows())
}

func (m *Matrix) UnmarshalJSON(b []byte) error {
	var rows [][]float64
	if err := json.Unmarshal(b, &rows); err != nil {
		return err
	}
	n := len(rows)
	data := make([]float64, 0, n*n)
	for i, r := range rows {
		if len(r) != n {
			return fmt.Errorf("row %d has %d columns, expected %d", i, len(r), n)
		}
		data = append(data, r...)
	}
	for i := 0; i < n; i++ {
		if rows[i][i] != 0 {
			return fmt.Errorf("diagonal element %d is %v, expected 0", i, rows[i][i])
		}
		for j := i + 1; j < n; j++ {
			if rows[i][j] != rows[j][i] {
				return fmt.Errorf("element %d,%d is %v but %d,%d is %v", i, j, rows[i][j], j, i, rows[j][i])
			}
		}
	}
	m.n = n
	m.data = data
	return nil
}

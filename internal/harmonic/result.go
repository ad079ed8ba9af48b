package harmonic

import (
	"fmt"
	"strings"
	"time"

	"github.com/drakos74/free-ensemble/internal/align"
	"github.com/drakos74/free-ensemble/internal/buffer"
	ensmath "github.com/drakos74/free-ensemble/internal/math"
	"github.com/drakos74/free-ensemble/internal/model"
)

// Result is the outcome of a similarity computation.
type Result struct {
	ID         string             `json:"id"`
	Mode       model.Mode         `json:"mode"`
	Names      []string           `json:"names"`
	Matrix     *model.Matrix      `json:"matrix"`
	Statistics []model.Statistics `json:"statistics,omitempty"`
	Aligned    bool               `json:"aligned"`
	Alignment  []align.Report     `json:"-"`
	Elapsed    time.Duration      `json:"elapsed"`
}

// Summary collects the statistics of the off-diagonal scores.
func (r *Result) Summary() *buffer.Stats {
	return buffer.NewStats().Push(r.Matrix.Pairs()...)
}

// Closest returns the pair of distinct ensembles with the lowest score.
func (r *Result) Closest() (int, int, float64) {
	bi, bj, best := -1, -1, 0.0
	n := r.Matrix.Len()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if v := r.Matrix.At(i, j); bi < 0 || v < best {
				bi, bj, best = i, j, v
			}
		}
	}
	return bi, bj, best
}

// Format renders the matrix as a labelled table with the given precision.
func (r *Result) Format(precision int) string {
	n := r.Matrix.Len()
	cells := make([][]string, n+1)
	cells[0] = append([]string{""}, r.Names...)
	for i := 0; i < n; i++ {
		row := make([]string, n+1)
		row[0] = r.Names[i]
		for j := 0; j < n; j++ {
			row[j+1] = ensmath.Format(r.Matrix.At(i, j), precision)
		}
		cells[i+1] = row
	}

	width := make([]int, n+1)
	for _, row := range cells {
		for j, c := range row {
			if len(c) > width[j] {
				width[j] = len(c)
			}
		}
	}

	var b strings.Builder
	for _, row := range cells {
		for j, c := range row {
			if j > 0 {
				b.WriteString("  ")
			}
			b.WriteString(fmt.Sprintf("%*s", width[j], c))
		}
		b.WriteString("\n")
	}
	return b.String()
}

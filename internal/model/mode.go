package model

import (
	"fmt"
	"sort"
	"strings"
)

// Mode defines the covariance estimator used for an ensemble.
type Mode string

const (
	// NoMode is an undefined estimator
	NoMode Mode = ""
	// Shrinkage blends the empirical covariance with a scaled identity target.
	Shrinkage Mode = "shrinkage"
	// MaximumLikelihood is the plain empirical covariance.
	MaximumLikelihood Mode = "maximum-likelihood"
)

// Modes contains the known estimator modes and their accepted aliases.
var Modes = map[string]Mode{
	"shrinkage":          Shrinkage,
	"lw":                 Shrinkage,
	"ledoit-wolf":        Shrinkage,
	"maximum-likelihood": MaximumLikelihood,
	"ml":                 MaximumLikelihood,
}

// KnownModes returns the accepted mode names.
func KnownModes() []string {
	mm := make([]string, 0, len(Modes))
	for m := range Modes {
		mm = append(mm, m)
	}
	sort.Strings(mm)
	return mm
}

// ParseMode parses the mode from the given string.
func ParseMode(s string) (Mode, error) {
	if m, ok := Modes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return NoMode, fmt.Errorf("unknown covariance mode '%s' (known: %s)", s, strings.Join(KnownModes(), ", "))
}

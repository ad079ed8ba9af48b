package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/drakos74/free-ensemble/internal/model"
	"github.com/drakos74/free-ensemble/internal/storage"
)

// Document is the json representation of an ensemble file.
type Document struct {
	Name    string        `json:"name"`
	Atoms   int           `json:"atoms,omitempty"`
	Frames  [][]float64   `json:"frames"`
	Weights model.Weights `json:"weights,omitempty"`
}

// ReadEnsemble reads an ensemble document from the given path.
// The name defaults to the file name and the atom count is derived from the first frame when missing.
func ReadEnsemble(path string) (*model.Ensemble, model.Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read ensemble '%s' %s: %w", path, err.Error(), storage.NotFoundErr)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("could not decode ensemble '%s' %s: %w", path, err.Error(), storage.CouldNotLoadErr)
	}

	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if doc.Atoms == 0 && len(doc.Frames) > 0 {
		if len(doc.Frames[0])%3 != 0 {
			return nil, nil, fmt.Errorf("frame of ensemble '%s' has %d coordinates: %w", path, len(doc.Frames[0]), model.ErrDimensionMismatch)
		}
		doc.Atoms = len(doc.Frames[0]) / 3
	}

	ens := model.NewEnsemble(doc.Name, doc.Atoms)
	ens.Frames = doc.Frames
	return ens, doc.Weights, nil
}

// WriteEnsemble writes the ensemble document to the given path.
func WriteEnsemble(path string, ens *model.Ensemble, weights model.Weights) error {
	b, err := json.Marshal(Document{
		Name:    ens.Name,
		Atoms:   ens.Atoms,
		Frames:  ens.Frames,
		Weights: weights,
	})
	if err != nil {
		return fmt.Errorf("could not encode ensemble '%s': %w", ens.Name, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("could not make dir: %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("could not write ensemble '%s': %w", path, err)
	}
	return nil
}

// ReadWeights reads the per-atom weights from a json array.
func ReadWeights(path string) (model.Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read weights '%s' %s: %w", path, err.Error(), storage.NotFoundErr)
	}
	var weights model.Weights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("could not decode weights '%s' %s: %w", path, err.Error(), storage.CouldNotLoadErr)
	}
	return weights, nil
}

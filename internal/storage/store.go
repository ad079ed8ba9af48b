package storage

import (
	"errors"
	"fmt"
)

const (
	ResultDir   = "results"
	RegistryDir = "registry"
	RunsPath    = "runs"
)

var (
	// DefaultDir is the root directory of the file storage.
	DefaultDir = "file-storage"
)

// Shard creates a new storage implementation for the given shard.
type Shard func(shard string) (Persistence, error)

var (
	NotFoundErr     = errors.New("not found")
	CouldNotLoadErr = errors.New("could not load")
)

// Key is the storage key of a computation artifact.
type Key struct {
	Run   string `json:"run"`
	Label string `json:"label"`
}

// K is a simplified key for the registry
type K struct {
	Label string `json:"label"`
}

func (k Key) Path() string {
	return fmt.Sprintf("%s_%s", k.Run, k.Label)
}

// Registry appends items one by one and retrieves them all at once.
type Registry interface {
	Add(key K, value interface{}) error
	GetAll(key K, values interface{}) error
}

type Persistence interface {
	Store(k Key, value interface{}) error
	Load(k Key, value interface{}) error
}

package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/drakos74/free-ensemble/internal/storage"
	"github.com/rs/zerolog/log"
)

// BlobStorage stores every key as a json file under <path>/<table>/<shard>.
type BlobStorage struct {
	path  string
	table string
	shard string
}

// BlobShard creates blob storages for the given table under dir.
func BlobShard(dir, table string) storage.Shard {
	return func(shard string) (storage.Persistence, error) {
		return NewJsonBlob(dir, table).Shard(shard), nil
	}
}

// NewJsonBlob creates a new blob storage for the given table.
// table has the same schema, the shard is a logical split within it.
func NewJsonBlob(dir, table string) *BlobStorage {
	return &BlobStorage{
		path:  dir,
		table: table,
	}
}

// Shard sets the shard of the storage.
func (s *BlobStorage) Shard(shard string) *BlobStorage {
	s.shard = shard
	return s
}

// Dir returns the directory the files are stored in.
func (s *BlobStorage) Dir() string {
	return filepath.Join(s.path, s.table, s.shard)
}

func (s *BlobStorage) Store(k storage.Key, value interface{}) error {
	p := s.Dir()
	err := Save(p, k.Path(), value)
	if err == nil {
		log.Debug().Str("path", p).Str("file", k.Path()).Msg("stored json file")
	}
	return err
}

func (s *BlobStorage) Load(k storage.Key, value interface{}) error {
	return Load(s.Dir(), k.Path(), value)
}

// Save saves the given value as <fileName>.json into the given path.
func Save(filePath string, fileName string, value interface{}) error {
	// check if filepath exists
	info, err := os.Stat(filePath)
	if err != nil {
		err := os.MkdirAll(filePath, os.ModePerm)
		if err != nil {
			return fmt.Errorf("could not make dir: %s: %w", filePath, err)
		}
	} else if !info.IsDir() {
		return fmt.Errorf("path given is not a directory: %s", filePath)
	}

	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not encode value for '%s': %w", fileName, err)
	}

	p := filepath.Join(filePath, fmt.Sprintf("%s.json", fileName))
	err = os.WriteFile(p, b, 0644)
	if err != nil {
		return fmt.Errorf("could not write file '%s': %w", p, err)
	}
	return nil
}

// Load loads the <fileName>.json payload from the given path.
func Load(filePath string, fileName string, value interface{}) error {
	p := filepath.Join(filePath, fmt.Sprintf("%s.json", fileName))
	data, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("could not read file '%s' %s: %w", p, err.Error(), storage.NotFoundErr)
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return fmt.Errorf("could not decode '%s' %s: %w", p, err.Error(), storage.CouldNotLoadErr)
	}
	return nil
}

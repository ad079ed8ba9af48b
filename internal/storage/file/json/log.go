package json

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/drakos74/free-ensemble/internal/storage"
)

const (
	filename = "events.log"
)

// Registry appends json events one per line under <dir>/registry/<path>/<label>.
type Registry struct {
	root string
}

// NewEventRegistry creates a new registry rooted at the given directory and path.
func NewEventRegistry(dir, path string) *Registry {
	return &Registry{
		root: filepath.Join(dir, storage.RegistryDir, path),
	}
}

func (e *Registry) file(key storage.K) string {
	return filepath.Join(e.root, key.Label, filename)
}

// Add appends the value to the log of the key.
func (e *Registry) Add(key storage.K, value interface{}) error {
	dir := filepath.Dir(e.file(key))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("could not make dir: %s: %w", dir, err)
	}

	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not encode value '%+v': %w", value, err)
	}
	f, err := os.OpenFile(e.file(key), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("could not open log file: %w", err)
	}
	defer f.Close()

	if _, err = f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("could not write log file for '%+v': %w", key, err)
	}
	return nil
}

// GetAll decodes all events of the key into the given slice pointer.
func (e *Registry) GetAll(key storage.K, values interface{}) error {
	ptr := reflect.ValueOf(values)
	if ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("only accepting slice pointers as placeholder for the results: %T", values)
	}

	f, err := os.Open(e.file(key))
	if err != nil {
		return fmt.Errorf("could not open log for '%+v' %s: %w", key, err.Error(), storage.NotFoundErr)
	}
	defer f.Close()

	t := ptr.Elem().Type().Elem()
	events := reflect.MakeSlice(ptr.Elem().Type(), 0, 10)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev := reflect.New(t)
		if err := json.Unmarshal(line, ev.Interface()); err != nil {
			return fmt.Errorf("could not decode event '%s' %s: %w", string(line), err.Error(), storage.CouldNotLoadErr)
		}
		events = reflect.Append(events, ev.Elem())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("could not read events for '%+v': %w", key, err)
	}
	ptr.Elem().Set(events)
	return nil
}

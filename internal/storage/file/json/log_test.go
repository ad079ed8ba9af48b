package json

import (
	"testing"

	"github.com/drakos74/free-ensemble/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Event struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	Index int    `json:"index"`
}

func newEvent(i int) Event {
	return Event{
		Name:  "test",
		ID:    uuid.New().String(),
		Index: i,
	}
}

func TestRegistry_AddAndGetAll(t *testing.T) {
	registry := NewEventRegistry(t.TempDir(), "processor")

	k := storage.K{
		Label: "label",
	}

	events := make([]Event, 0)
	for i := 0; i < 10; i++ {
		ev := newEvent(i)
		events = append(events, ev)
		err := registry.Add(k, ev)
		assert.NoError(t, err)
	}

	var loaded []Event
	err := registry.GetAll(k, &loaded)
	require.NoError(t, err)
	assert.Equal(t, events, loaded)
}

func TestRegistry_GetAll(t *testing.T) {
	registry := NewEventRegistry(t.TempDir(), "processor")

	var loaded []Event
	err := registry.GetAll(storage.K{Label: "missing"}, &loaded)
	assert.ErrorIs(t, err, storage.NotFoundErr)

	err = registry.GetAll(storage.K{Label: "missing"}, loaded)
	assert.Error(t, err)
}

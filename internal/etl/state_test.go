package etl

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStoreRoundTrip(t *testing.T) {
	store := NewStateStore(t.TempDir())
	id := Identity{Name: "rest_api_jaffle_shop", Destination: "duckdb", Dataset: "rest_api_data"}

	state, err := store.Load(id)
	require.NoError(t, err)
	assert.Empty(t, state.Resources)
	assert.Nil(t, state.LastValue("orders", "ordered_at"))

	state.Resources["orders"] = &ResourceState{
		CursorPath:   "ordered_at",
		LastValue:    "2018-03-01T10:00:00",
		UniqueHashes: []string{"9f86d081884c7d659a2feaa0c55ad015"},
	}
	state.LastLoadID = "1700000000.000001"
	state.UpdatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Save(state))

	assert.Equal(t,
		filepath.Join(store.Dir, "rest_api_jaffle_shop", "duckdb", "rest_api_data", "state.json"),
		store.Path(id))
	_, err = os.Stat(store.Path(id) + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "2018-03-01T10:00:00", loaded.LastValue("orders", "ordered_at"))
	assert.Nil(t, loaded.LastValue("orders", "updated_at"), "cursor path changed")
	assert.Nil(t, loaded.Resource("orders", "updated_at"))
	assert.Equal(t, []string{"9f86d081884c7d659a2feaa0c55ad015"}, loaded.Resource("orders", "ordered_at").UniqueHashes)
	assert.Equal(t, "1700000000.000001", loaded.LastLoadID)
	assert.Equal(t, id, loaded.Identity)
}

func TestStateStoreSeparatesIdentities(t *testing.T) {
	store := NewStateStore(t.TempDir())
	a := Identity{Name: "p", Destination: "duckdb", Dataset: "one"}
	b := Identity{Name: "p", Destination: "duckdb", Dataset: "two"}

	state, err := store.Load(a)
	require.NoError(t, err)
	state.Resources["orders"] = &ResourceState{CursorPath: "ordered_at", LastValue: "x"}
	require.NoError(t, store.Save(state))

	other, err := store.Load(b)
	require.NoError(t, err)
	assert.Nil(t, other.LastValue("orders", "ordered_at"))
}

func TestStateStoreCorruptFile(t *testing.T) {
	store := NewStateStore(t.TempDir())
	id := Identity{Name: "p", Destination: "duckdb", Dataset: "d"}
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path(id)), 0o755))
	require.NoError(t, os.WriteFile(store.Path(id), []byte("{not json"), 0o644))

	_, err := store.Load(id)
	assert.Error(t, err)
}

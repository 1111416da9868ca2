package deadletter_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/deadletter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) deadletter.Store

func record(id string) deadletter.Record {
	return deadletter.NewRecord(id, "track",
		[]byte(`{"type":"track","payload":{"name":"`+id+`"}}`),
		errors.New("status 500"), 4)
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	t.Run(name+"/Save_and_Load", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		rec := record("d-1")
		require.NoError(t, store.Save(rec))

		loaded, err := store.Load("d-1")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, loaded.ID)
		assert.Equal(t, "track", loaded.EventType)
		assert.JSONEq(t, string(rec.Payload), string(loaded.Payload))
		assert.Equal(t, "status 500", loaded.Error)
		assert.Equal(t, 4, loaded.Attempts)
		assert.True(t, rec.FailedAt.Equal(loaded.FailedAt))
	})

	t.Run(name+"/Load_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Load("missing")
		assert.ErrorIs(t, err, deadletter.ErrNotFound)
	})

	t.Run(name+"/Save_Overwrite", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(record("d-1")))
		require.NoError(t, store.Save(record("d-2")))

		updated := record("d-1")
		updated.Attempts = 9
		require.NoError(t, store.Save(updated))

		list, err := store.List(0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "d-1", list[0].ID, "overwrite keeps position")
		assert.Equal(t, 9, list[0].Attempts)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		list, err := store.List(0)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run(name+"/List_Ordered_And_Limited", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		for i := 0; i < 5; i++ {
			require.NoError(t, store.Save(record(fmt.Sprintf("d-%d", i))))
		}

		all, err := store.List(0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i, rec := range all {
			assert.Equal(t, fmt.Sprintf("d-%d", i), rec.ID)
		}

		first, err := store.List(2)
		require.NoError(t, err)
		require.Len(t, first, 2)
		assert.Equal(t, "d-0", first[0].ID)
		assert.Equal(t, "d-1", first[1].ID)
	})

	t.Run(name+"/Delete_and_Count", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(record("d-1")))
		require.NoError(t, store.Save(record("d-2")))

		n, err := store.Count()
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, store.Delete("d-1"))
		require.NoError(t, store.Delete("d-1"), "deleting twice is not an error")

		n, err = store.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = store.Load("d-1")
		assert.ErrorIs(t, err, deadletter.ErrNotFound)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		assert.ErrorIs(t, store.Save(record("d-1")), deadletter.ErrStoreClosed)
		_, err := store.Load("d-1")
		assert.ErrorIs(t, err, deadletter.ErrStoreClosed)
		_, err = store.List(0)
		assert.ErrorIs(t, err, deadletter.ErrStoreClosed)
		_, err = store.Count()
		assert.ErrorIs(t, err, deadletter.ErrStoreClosed)
		assert.ErrorIs(t, store.Delete("d-1"), deadletter.ErrStoreClosed)
	})

	t.Run(name+"/Concurrent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		const workers = 20
		const perWorker = 10

		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					_ = store.Save(record(fmt.Sprintf("w%d-%d", w, i)))
					_, _ = store.List(5)
					_, _ = store.Count()
				}
			}(w)
		}
		wg.Wait()

		n, err := store.Count()
		require.NoError(t, err)
		assert.Equal(t, workers*perWorker, n)
	})
}

func TestStoreContract(t *testing.T) {
	storeContractTest(t, "Memory", func(t *testing.T) deadletter.Store {
		return deadletter.NewMemoryStore(0)
	})
	storeContractTest(t, "SQLite", func(t *testing.T) deadletter.Store {
		store, err := deadletter.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	})
}

func TestNewRecord(t *testing.T) {
	t.Run("generates id when empty", func(t *testing.T) {
		rec := deadletter.NewRecord("", "alias", []byte(`{}`), nil, 1)
		assert.NotEmpty(t, rec.ID)
		assert.Empty(t, rec.Error)
		assert.False(t, rec.FailedAt.IsZero())
	})

	t.Run("copies payload", func(t *testing.T) {
		payload := []byte(`{"a":1}`)
		rec := deadletter.NewRecord("x", "track", payload, nil, 1)
		payload[0] = '['
		assert.Equal(t, `{"a":1}`, string(rec.Payload))
	})

	t.Run("round trips as JSON", func(t *testing.T) {
		rec := record("d-9")
		data, err := rec.Marshal()
		require.NoError(t, err)

		got, err := deadletter.Unmarshal(data)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.JSONEq(t, string(rec.Payload), string(got.Payload))
		assert.True(t, rec.FailedAt.Equal(got.FailedAt))
	})

	t.Run("unmarshal rejects garbage", func(t *testing.T) {
		_, err := deadletter.Unmarshal([]byte("not json"))
		assert.Error(t, err)
	})
}

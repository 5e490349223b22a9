package testsupport

import (
	"context"
	"testing"

	"dayrun/internal/config"
	"dayrun/internal/day"
	"dayrun/internal/state"
)

// MustOpenStore opens the configured state store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) state.Store {
	t.Helper()

	store, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustPut stores rec or fails the test.
func MustPut(t testing.TB, store state.Store, rec state.Record) {
	t.Helper()

	if err := store.Put(context.Background(), rec); err != nil {
		t.Fatalf("store.Put(%s): %v", rec.Day, err)
	}
}

// MustGet loads the record for d, returning the implicit pending record when absent.
func MustGet(t testing.TB, store state.Store, d day.Day) state.Record {
	t.Helper()

	rec, err := state.Load(context.Background(), store, d)
	if err != nil {
		t.Fatalf("state.Load(%s): %v", d, err)
	}
	return rec
}

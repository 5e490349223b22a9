package state

import (
	"context"
	"fmt"

	"dayrun/internal/config"
	"dayrun/internal/day"
	"dayrun/internal/services"
)

// Store persists processing-day records. Every method either durably applies
// its change or returns an error wrapping services.ErrPersistence.
type Store interface {
	// Get returns the record for d and whether one was stored.
	Get(ctx context.Context, d day.Day) (Record, bool, error)
	// Put inserts or replaces the record for rec.Day.
	Put(ctx context.Context, rec Record) error
	// List returns matching records in ascending day order.
	List(ctx context.Context, filter Filter) ([]Record, error)
	// Reset returns d to pending. Resetting an unknown day is a no-op.
	Reset(ctx context.Context, d day.Day) error
	// ReclaimInterrupted marks running records left by other runs as failed.
	ReclaimInterrupted(ctx context.Context, runID string) (int64, error)
	Close() error
}

// Load returns the stored record for d, or the implicit pending record.
func Load(ctx context.Context, store Store, d day.Day) (Record, error) {
	rec, ok, err := store.Get(ctx, d)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return NewRecord(d), nil
	}
	return rec, nil
}

// Open builds the store selected by cfg.State.Backend.
func Open(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, persistenceError("open", "config is nil", nil)
	}
	switch cfg.State.Backend {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendYAML:
		return OpenYAML(cfg.StatePath())
	case config.BackendSQLite, "":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, persistenceError("open", "ensure directories", err)
		}
		return OpenSQLite(cfg.StatePath())
	default:
		return nil, services.Wrap(services.ErrConfiguration, "state", "open",
			fmt.Sprintf("unknown backend %q", cfg.State.Backend), nil)
	}
}

func persistenceError(operation, message string, err error) error {
	return services.Wrap(services.ErrPersistence, "state", operation, message, err)
}

package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dayrun/internal/day"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const recordColumns = "day, year, doy, status, attempts, last_attempt, last_error, error_kind, run_id, work_dir, log_path, relocated, created_at, updated_at"

// SQLiteStore persists records in a single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite initializes or connects to the state database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, persistenceError("open", "create state directory", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, persistenceError("open", "open sqlite db", err)
	}
	// One writer at a time; the run lock already serializes processes.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, persistenceError("open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, persistenceError("open", "init schema", err)
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (move the database aside to start fresh)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Get returns the record for d.
func (s *SQLiteStore) Get(ctx context.Context, d day.Day) (Record, bool, error) {
	ctx = ensureContext(ctx)
	var (
		rec Record
		ok  bool
	)
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM day_records WHERE day = ?`, d.String())
		scanned, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			ok = false
			return nil
		}
		if err != nil {
			return err
		}
		rec, ok = scanned, true
		return nil
	})
	if err != nil {
		return Record{}, false, persistenceError("get", d.String(), err)
	}
	return rec, ok, nil
}

// Put upserts rec inside a transaction. CreatedAt is preserved across updates.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO day_records (`+recordColumns+`)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(day) DO UPDATE SET
                 status = excluded.status,
                 attempts = excluded.attempts,
                 last_attempt = excluded.last_attempt,
                 last_error = excluded.last_error,
                 error_kind = excluded.error_kind,
                 run_id = excluded.run_id,
                 work_dir = excluded.work_dir,
                 log_path = excluded.log_path,
                 relocated = excluded.relocated,
                 updated_at = excluded.updated_at`,
			rec.Day.String(),
			rec.Day.Year,
			rec.Day.DOY,
			string(rec.Status),
			rec.Attempts,
			nullableTime(rec.LastAttempt),
			nullableString(rec.LastError),
			nullableString(rec.ErrorKind),
			nullableString(rec.RunID),
			nullableString(rec.WorkDir),
			nullableString(rec.LogPath),
			boolToInt(rec.Relocated),
			rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			rec.UpdatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return persistenceError("put", rec.Day.String(), err)
	}
	return nil
}

// List returns matching records ordered by day.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	ctx = ensureContext(ctx)
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "(year > ? OR (year = ? AND doy >= ?))")
		args = append(args, filter.From.Year, filter.From.Year, filter.From.DOY)
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "(year < ? OR (year = ? AND doy <= ?))")
		args = append(args, filter.To.Year, filter.To.Year, filter.To.DOY)
	}
	query := `SELECT ` + recordColumns + ` FROM day_records`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY year, doy"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var records []Record
	err := retryOnBusy(ctx, func() error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, persistenceError("list", "", err)
	}
	return records, nil
}

// Reset returns d to pending, clearing the last error.
func (s *SQLiteStore) Reset(ctx context.Context, d day.Day) error {
	ctx = ensureContext(ctx)
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE day_records SET status = ?, last_error = NULL, error_kind = NULL, updated_at = ? WHERE day = ?`,
			string(StatusPending), time.Now().UTC().Format(time.RFC3339Nano), d.String())
		return err
	})
	if err != nil {
		return persistenceError("reset", d.String(), err)
	}
	return nil
}

// ReclaimInterrupted marks running records owned by other runs as failed.
func (s *SQLiteStore) ReclaimInterrupted(ctx context.Context, runID string) (int64, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE day_records
             SET status = ?, last_error = ?, error_kind = NULL, updated_at = ?
             WHERE status = ? AND COALESCE(run_id, '') <> ?`,
			string(StatusFailed), InterruptedError, time.Now().UTC().Format(time.RFC3339Nano),
			string(StatusRunning), runID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, persistenceError("reclaim", "", err)
	}
	return affected, nil
}

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dayrun/internal/day"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		label       string
		year, doy   int
		status      string
		attempts    int
		lastAttempt sql.NullString
		lastError   sql.NullString
		errorKind   sql.NullString
		runID       sql.NullString
		workDir     sql.NullString
		logPath     sql.NullString
		relocated   int
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&label, &year, &doy, &status, &attempts,
		&lastAttempt, &lastError, &errorKind, &runID, &workDir, &logPath,
		&relocated, &createdRaw, &updatedRaw,
	); err != nil {
		return Record{}, err
	}

	parsedStatus, ok := ParseStatus(status)
	if !ok {
		return Record{}, fmt.Errorf("day %s: unknown status %q", label, status)
	}
	rec := Record{
		Day:       day.New(year, doy),
		Status:    parsedStatus,
		Attempts:  attempts,
		LastError: lastError.String,
		ErrorKind: errorKind.String,
		RunID:     runID.String,
		WorkDir:   workDir.String,
		LogPath:   logPath.String,
		Relocated: relocated != 0,
	}
	if t, err := parseTimeString(lastAttempt.String); err == nil {
		rec.LastAttempt = t
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"dayrun/internal/day"
	"dayrun/internal/fileutil"
)

// yamlRecord is the on-disk shape of a record file.
type yamlRecord struct {
	Day         string    `yaml:"day"`
	Status      Status    `yaml:"status"`
	Attempts    int       `yaml:"attempts"`
	LastAttempt time.Time `yaml:"last_attempt,omitempty"`
	LastError   string    `yaml:"last_error,omitempty"`
	ErrorKind   string    `yaml:"error_kind,omitempty"`
	RunID       string    `yaml:"run_id,omitempty"`
	WorkDir     string    `yaml:"work_dir,omitempty"`
	LogPath     string    `yaml:"log_path,omitempty"`
	Relocated   bool      `yaml:"relocated,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// YAMLStore keeps one YAML file per day under <root>/<yyyy>/<yyyy>-<ddd>.yaml.
// Files are replaced atomically so a crash leaves either the old or the new
// record, never a torn one.
type YAMLStore struct {
	root string
	mu   sync.Mutex
}

// OpenYAML prepares the record directory.
func OpenYAML(root string) (*YAMLStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, persistenceError("open", "yaml state directory not configured", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, persistenceError("open", "create yaml state directory", err)
	}
	return &YAMLStore{root: root}, nil
}

func (y *YAMLStore) path(d day.Day) string {
	return filepath.Join(y.root, fmt.Sprintf("%04d", d.Year), d.String()+".yaml")
}

func (y *YAMLStore) Get(_ context.Context, d day.Day) (Record, bool, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	rec, ok, err := y.read(y.path(d))
	if err != nil {
		return Record{}, false, persistenceError("get", d.String(), err)
	}
	return rec, ok, nil
}

func (y *YAMLStore) Put(_ context.Context, rec Record) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	path := y.path(rec.Day)
	if existing, ok, err := y.read(path); err == nil && ok {
		rec.CreatedAt = existing.CreatedAt
	}
	if err := y.write(path, rec); err != nil {
		return persistenceError("put", rec.Day.String(), err)
	}
	return nil
}

func (y *YAMLStore) List(_ context.Context, filter Filter) ([]Record, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	records := make(map[day.Day]Record)
	err := filepath.WalkDir(y.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != ".yaml" {
			return nil
		}
		rec, ok, err := y.read(path)
		if err != nil {
			return err
		}
		if ok {
			records[rec.Day] = rec
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError("list", "", err)
	}
	return filterRecords(records, filter), nil
}

func (y *YAMLStore) Reset(_ context.Context, d day.Day) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	path := y.path(d)
	rec, ok, err := y.read(path)
	if err != nil {
		return persistenceError("reset", d.String(), err)
	}
	if !ok {
		return nil
	}
	rec.Status = StatusPending
	rec.LastError = ""
	rec.ErrorKind = ""
	if err := y.write(path, rec); err != nil {
		return persistenceError("reset", d.String(), err)
	}
	return nil
}

func (y *YAMLStore) ReclaimInterrupted(ctx context.Context, runID string) (int64, error) {
	running, err := y.List(ctx, Filter{Statuses: []Status{StatusRunning}})
	if err != nil {
		return 0, err
	}
	y.mu.Lock()
	defer y.mu.Unlock()
	var count int64
	for _, rec := range running {
		if rec.RunID == runID {
			continue
		}
		rec.Status = StatusFailed
		rec.LastError = InterruptedError
		rec.ErrorKind = ""
		if err := y.write(y.path(rec.Day), rec); err != nil {
			return count, persistenceError("reclaim", rec.Day.String(), err)
		}
		count++
	}
	return count, nil
}

func (y *YAMLStore) Close() error { return nil }

func (y *YAMLStore) read(path string) (Record, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var raw yamlRecord
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Record{}, false, fmt.Errorf("decode %s: %w", path, err)
	}
	d, err := day.Parse(raw.Day, day.Day{})
	if err != nil {
		return Record{}, false, fmt.Errorf("decode %s: %w", path, err)
	}
	if _, ok := ParseStatus(string(raw.Status)); !ok {
		return Record{}, false, fmt.Errorf("decode %s: unknown status %q", path, raw.Status)
	}
	return Record{
		Day:         d,
		Status:      raw.Status,
		Attempts:    raw.Attempts,
		LastAttempt: raw.LastAttempt,
		LastError:   raw.LastError,
		ErrorKind:   raw.ErrorKind,
		RunID:       raw.RunID,
		WorkDir:     raw.WorkDir,
		LogPath:     raw.LogPath,
		Relocated:   raw.Relocated,
		CreatedAt:   raw.CreatedAt,
		UpdatedAt:   raw.UpdatedAt,
	}, true, nil
}

func (y *YAMLStore) write(path string, rec Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	raw := yamlRecord{
		Day:         rec.Day.String(),
		Status:      rec.Status,
		Attempts:    rec.Attempts,
		LastAttempt: rec.LastAttempt.UTC(),
		LastError:   rec.LastError,
		ErrorKind:   rec.ErrorKind,
		RunID:       rec.RunID,
		WorkDir:     rec.WorkDir,
		LogPath:     rec.LogPath,
		Relocated:   rec.Relocated,
		CreatedAt:   rec.CreatedAt.UTC(),
		UpdatedAt:   now,
	}
	data, err := yaml.Marshal(&raw)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create year directory: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}

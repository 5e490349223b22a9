package runguard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Owner describes the process holding the run lock.
type Owner struct {
	PID         int       `json:"pid"`
	Host        string    `json:"host"`
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// processAlive reports whether pid exists on this host. EPERM means the
// process exists but belongs to someone else.
var processAlive = func(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Staleness evaluates the owner record against the heartbeat deadline and,
// when the record was written on this host, the liveness of its pid.
func (o Owner) Staleness(now time.Time, staleAfter time.Duration, host string) (bool, string) {
	if staleAfter > 0 && !o.HeartbeatAt.IsZero() {
		if age := now.Sub(o.HeartbeatAt); age > staleAfter {
			return true, fmt.Sprintf("heartbeat is %s old (limit %s)", age.Round(time.Second), staleAfter)
		}
	}
	if o.Host != "" && o.Host == host && !processAlive(o.PID) {
		return true, fmt.Sprintf("pid %d is not running", o.PID)
	}
	return false, ""
}

func (o Owner) String() string {
	parts := []string{fmt.Sprintf("pid %d", o.PID)}
	if o.Host != "" {
		parts = append(parts, "host "+o.Host)
	}
	if o.RunID != "" {
		parts = append(parts, "run "+o.RunID)
	}
	if !o.StartedAt.IsZero() {
		parts = append(parts, "started "+o.StartedAt.UTC().Format(time.RFC3339))
	}
	return strings.Join(parts, ", ")
}

// ReadOwner parses the owner record stored in the lock file. A missing or
// empty file reports ok=false. A partially written record is reported as an
// error so callers can treat the owner as unknown.
func ReadOwner(path string) (Owner, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Owner{}, false, nil
		}
		return Owner{}, false, fmt.Errorf("read lock owner: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Owner{}, false, nil
	}
	var owner Owner
	if err := json.Unmarshal(data, &owner); err != nil {
		return Owner{}, false, fmt.Errorf("decode lock owner: %w", err)
	}
	return owner, true, nil
}

// writeOwner rewrites the lock file in place. Replacing the file would detach
// it from the flock held on the original inode.
func writeOwner(path string, owner Owner) error {
	data, err := json.Marshal(owner)
	if err != nil {
		return fmt.Errorf("encode lock owner: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write lock owner: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync lock owner: %w", err)
	}
	return f.Close()
}

func clearOwner(path string) error {
	if err := os.Truncate(path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	return nil
}

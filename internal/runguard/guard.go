package runguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"dayrun/internal/logging"
	"dayrun/internal/services"
)

// Locker is the exclusive non-blocking lock primitive. *flock.Flock satisfies it.
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// Options configures a Guard.
type Options struct {
	LockPath          string
	StopPath          string
	Override          bool
	StaleAfter        time.Duration
	HeartbeatInterval time.Duration
	Markers           MarkerStore
	Locker            Locker
	RunID             string
	Logger            *slog.Logger
	Now               func() time.Time
}

// Guard enforces single-run exclusion and owns the stop marker.
type Guard struct {
	opts   Options
	host   string
	logger *slog.Logger
}

// AlreadyRunningError reports lock contention together with what is known
// about the current holder.
type AlreadyRunningError struct {
	LockPath string
	Owner    Owner
	HasOwner bool
	Stale    bool
	Reason   string
}

func (e *AlreadyRunningError) Error() string {
	var b strings.Builder
	b.WriteString("another run holds ")
	b.WriteString(e.LockPath)
	if e.HasOwner {
		b.WriteString(" (")
		b.WriteString(e.Owner.String())
		b.WriteString(")")
	}
	if e.Stale {
		b.WriteString("; holder looks stale: ")
		b.WriteString(e.Reason)
		b.WriteString("; verify the process is gone and rerun with --override-lock if the lock persists")
	}
	return b.String()
}

func (e *AlreadyRunningError) Unwrap() error { return services.ErrAlreadyRunning }

// New constructs a guard. A nil Locker defaults to a gofrs/flock lock on
// LockPath and a nil MarkerStore defaults to FileMarkers.
func New(opts Options) *Guard {
	if opts.Locker == nil && opts.LockPath != "" {
		opts.Locker = flock.New(opts.LockPath)
	}
	if opts.Markers == nil {
		opts.Markers = FileMarkers{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	host, _ := os.Hostname()
	return &Guard{
		opts:   opts,
		host:   host,
		logger: logging.NewComponentLogger(logger, "runguard"),
	}
}

// Handle represents a held (or operator-overridden) run lock.
type Handle struct {
	// Overridden is set when the lock was contended and the operator forced the run.
	Overridden bool
	Owner      Owner

	guard   *Guard
	held    bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
	release error
}

// Acquire takes the run lock. On contention it returns *AlreadyRunningError
// unless the override flag is set, in which case it warns and returns a
// handle flagged Overridden that holds nothing.
func (g *Guard) Acquire(ctx context.Context) (*Handle, error) {
	if g.opts.Locker == nil {
		return nil, services.Wrap(services.ErrConfiguration, "runguard", "acquire", "lock path is not configured", nil)
	}
	if g.opts.LockPath != "" {
		if err := os.MkdirAll(filepath.Dir(g.opts.LockPath), 0o755); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "runguard", "acquire", "create lock directory", err)
		}
	}

	ok, err := g.opts.Locker.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "runguard", "acquire", "lock "+g.opts.LockPath, err)
	}
	if !ok {
		contention := g.contention()
		if !g.opts.Override {
			return nil, contention
		}
		attrs := []logging.Attr{
			logging.String("lock_path", g.opts.LockPath),
			logging.String(logging.FieldErrorHint, "confirm no other run is active; concurrent runs may corrupt day state"),
			logging.String(logging.FieldImpact, "run proceeds without exclusive lock"),
		}
		if contention.HasOwner {
			attrs = append(attrs,
				logging.Int("owner_pid", contention.Owner.PID),
				logging.String("owner_run_id", contention.Owner.RunID),
			)
		}
		if contention.Stale {
			attrs = append(attrs, logging.String("stale_reason", contention.Reason))
		}
		logging.WarnWithContext(g.logger, "run lock held by another run; override_lock set, continuing", "lock_overridden", attrs...)
		return &Handle{guard: g, Overridden: true, Owner: contention.Owner}, nil
	}

	now := g.opts.Now().UTC()
	owner := Owner{
		PID:         os.Getpid(),
		Host:        g.host,
		RunID:       g.opts.RunID,
		StartedAt:   now,
		HeartbeatAt: now,
	}
	if err := writeOwner(g.opts.LockPath, owner); err != nil {
		logging.WarnWithContext(g.logger, "failed to record lock owner", "lock_owner_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "status cannot report the lock holder"),
		)
	}

	hbCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{guard: g, held: true, Owner: owner, cancel: cancel}
	if g.opts.HeartbeatInterval > 0 {
		h.wg.Add(1)
		go h.heartbeatLoop(hbCtx)
	}
	g.logger.Debug("run lock acquired", logging.String("lock_path", g.opts.LockPath))
	return h, nil
}

func (g *Guard) contention() *AlreadyRunningError {
	e := &AlreadyRunningError{LockPath: g.opts.LockPath}
	owner, ok, err := ReadOwner(g.opts.LockPath)
	if err != nil {
		g.logger.Debug("lock owner unreadable", logging.Error(err))
	}
	if ok {
		e.Owner = owner
		e.HasOwner = true
		e.Stale, e.Reason = owner.Staleness(g.opts.Now(), g.opts.StaleAfter, g.host)
	}
	return e
}

func (h *Handle) heartbeatLoop(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.guard.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			owner := h.Owner
			owner.HeartbeatAt = h.guard.opts.Now().UTC()
			if err := writeOwner(h.guard.opts.LockPath, owner); err != nil {
				h.guard.logger.Warn("lock heartbeat update failed", logging.Error(err))
			}
		}
	}
}

// Release stops the heartbeat, clears the owner record and unlocks. It is
// safe to call more than once and on a nil or overridden handle.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
		h.wg.Wait()
		if !h.held {
			return
		}
		var errs []error
		if err := clearOwner(h.guard.opts.LockPath); err != nil {
			errs = append(errs, err)
		}
		if err := h.guard.opts.Locker.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("unlock: %w", err))
		}
		h.release = errors.Join(errs...)
		if h.release != nil {
			h.guard.logger.Warn("failed to release run lock cleanly", logging.Error(h.release))
		} else {
			h.guard.logger.Debug("run lock released")
		}
	})
	return h.release
}

// Status summarises the lock and stop marker for operators.
type Status struct {
	LockPath      string
	Locked        bool
	Owner         Owner
	HasOwner      bool
	Stale         bool
	StaleReason   string
	StopPath      string
	StopRequested bool
}

// Inspect probes the lock without keeping it and reads the owner record.
func (g *Guard) Inspect() (Status, error) {
	st := Status{LockPath: g.opts.LockPath, StopPath: g.opts.StopPath}
	st.StopRequested = g.CheckStop()
	if g.opts.Locker == nil {
		return st, nil
	}
	if _, err := os.Stat(g.opts.LockPath); errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	ok, err := g.opts.Locker.TryLock()
	if err != nil {
		return st, fmt.Errorf("probe run lock: %w", err)
	}
	if ok {
		if err := g.opts.Locker.Unlock(); err != nil {
			return st, fmt.Errorf("release probe lock: %w", err)
		}
		return st, nil
	}
	st.Locked = true
	contention := g.contention()
	st.Owner = contention.Owner
	st.HasOwner = contention.HasOwner
	st.Stale = contention.Stale
	st.StaleReason = contention.Reason
	return st, nil
}

// HaltSupported reports whether a stop file is configured.
func (g *Guard) HaltSupported() bool { return g.opts.StopPath != "" }

// StopPath returns the configured stop marker path.
func (g *Guard) StopPath() string { return g.opts.StopPath }

// CheckStop reports whether the stop marker exists. It is false when no stop
// file is configured. A marker that cannot be checked is logged and treated
// as absent.
func (g *Guard) CheckStop() bool {
	if g.opts.StopPath == "" {
		return false
	}
	exists, err := g.opts.Markers.Exists(g.opts.StopPath)
	if err != nil {
		logging.WarnWithContext(g.logger, "stop marker check failed", "stop_check_failed",
			logging.Error(err),
			logging.String("stop_file", g.opts.StopPath),
			logging.String(logging.FieldImpact, "halt request ignored until the marker is readable"),
		)
		return false
	}
	return exists
}

// RaiseStop creates the stop marker with a short body naming the requester.
func (g *Guard) RaiseStop() error {
	if g.opts.StopPath == "" {
		return services.ErrHaltUnsupported
	}
	body := fmt.Sprintf("requested_by=%s host=%s pid=%d at=%s\n",
		currentUser(), g.host, os.Getpid(), g.opts.Now().UTC().Format(time.RFC3339))
	if err := g.opts.Markers.Create(g.opts.StopPath, []byte(body)); err != nil {
		return services.Wrap(services.ErrConfiguration, "runguard", "halt", "create stop marker", err)
	}
	g.logger.Info("stop marker created", logging.String("stop_file", g.opts.StopPath))
	return nil
}

// ClearStop deletes the stop marker. Clearing an absent marker is not an error;
// existed reports whether there was one.
func (g *Guard) ClearStop() (existed bool, err error) {
	if g.opts.StopPath == "" {
		return false, services.ErrHaltUnsupported
	}
	existed, err = g.opts.Markers.Exists(g.opts.StopPath)
	if err != nil {
		return false, services.Wrap(services.ErrConfiguration, "runguard", "restart", "check stop marker", err)
	}
	if !existed {
		return false, nil
	}
	if err := g.opts.Markers.Delete(g.opts.StopPath); err != nil {
		return true, services.Wrap(services.ErrConfiguration, "runguard", "restart", "delete stop marker", err)
	}
	g.logger.Info("stop marker removed", logging.String("stop_file", g.opts.StopPath))
	return true, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

package dayrunner_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"dayrun/internal/day"
	"dayrun/internal/dayrunner"
	"dayrun/internal/hooks"
	"dayrun/internal/services"
	"dayrun/internal/state"
)

type fakeHooks struct {
	calls []string
	fail  map[string]error
	store state.Store
	seen  map[string]state.Status
}

func (f *fakeHooks) Run(ctx context.Context, h hooks.Hook, env hooks.Env) error {
	if h.IsNone() {
		return nil
	}
	f.calls = append(f.calls, env.Phase)
	if f.store != nil {
		rec, _, _ := f.store.Get(ctx, env.Day)
		if f.seen == nil {
			f.seen = map[string]state.Status{}
		}
		f.seen[env.Phase] = rec.Status
	}
	if err := f.fail[env.Phase]; err != nil {
		return services.Wrap(services.ErrHookFailure, "hooks", env.Phase, "", err)
	}
	return nil
}

var bothHooks = dayrunner.Hooks{Pre: hooks.Command("pre.sh"), Post: hooks.Command("post.sh")}

func newRunner(t *testing.T, store state.Store, fh *fakeHooks, opts ...func(*dayrunner.Options)) *dayrunner.Runner {
	t.Helper()
	o := dayrunner.Options{Store: store, Hooks: fh, RunID: "run-test"}
	for _, fn := range opts {
		fn(&o)
	}
	return dayrunner.New(o)
}

func TestRunDaySuccessOrdersStepsAndPersists(t *testing.T) {
	store := state.NewMemoryStore()
	fh := &fakeHooks{store: store}
	payloadStatus := state.Status("")
	payload := func(ctx context.Context, dc dayrunner.DayContext) error {
		fh.calls = append(fh.calls, "payload")
		rec, _, _ := store.Get(ctx, dc.Day)
		payloadStatus = rec.Status
		if dc.RunID != "run-test" || dc.WorkDir != "/work/2024/005" {
			return fmt.Errorf("unexpected day context %+v", dc)
		}
		return nil
	}

	d := day.New(2024, 5)
	outcome, err := newRunner(t, store, fh).RunDay(context.Background(), d, "/work/2024/005", bothHooks, payload)
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if outcome.Status != state.StatusSuccess || outcome.Err != nil {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if got := strings.Join(fh.calls, ","); got != "pre,payload,post" {
		t.Fatalf("step order = %s", got)
	}
	if fh.seen["pre"] != state.StatusRunning || payloadStatus != state.StatusRunning {
		t.Fatal("running transition must be persisted before hooks and payload start")
	}
	rec, ok, _ := store.Get(context.Background(), d)
	if !ok || rec.Status != state.StatusSuccess || rec.Attempts != 1 || rec.LastAttempt.IsZero() {
		t.Fatalf("unexpected persisted record: %+v", rec)
	}
}

func TestRunDayPreHookFailureSkipsPayloadAndPost(t *testing.T) {
	store := state.NewMemoryStore()
	fh := &fakeHooks{fail: map[string]error{"pre": errors.New("exit 1")}}
	payloadCalled := false
	payload := func(context.Context, dayrunner.DayContext) error {
		payloadCalled = true
		return nil
	}

	outcome, err := newRunner(t, store, fh).RunDay(context.Background(), day.New(2024, 6), "", bothHooks, payload)
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if payloadCalled {
		t.Fatal("payload must not run after a failed pre hook")
	}
	if got := strings.Join(fh.calls, ","); got != "pre" {
		t.Fatalf("hooks called = %s, want pre only", got)
	}
	if outcome.Status != state.StatusFailed || outcome.Phase != dayrunner.PhasePre || !errors.Is(outcome.Err, services.ErrHookFailure) {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Record.ErrorKind != "hook" {
		t.Fatalf("expected hook error kind, got %q", outcome.Record.ErrorKind)
	}
}

func TestRunDayPayloadFailureSkipsPostHook(t *testing.T) {
	store := state.NewMemoryStore()
	fh := &fakeHooks{}
	payload := func(context.Context, dayrunner.DayContext) error { return errors.New("orbit solution diverged") }

	outcome, err := newRunner(t, store, fh).RunDay(context.Background(), day.New(2024, 7), "", bothHooks, payload)
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if got := strings.Join(fh.calls, ","); got != "pre" {
		t.Fatalf("hooks called = %s, want pre only", got)
	}
	if outcome.Status != state.StatusFailed || outcome.Phase != dayrunner.PhasePayload {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if !errors.Is(outcome.Err, services.ErrPayloadFailure) || !strings.Contains(outcome.Err.Error(), "diverged") {
		t.Fatalf("expected wrapped payload failure, got %v", outcome.Err)
	}
}

func TestRunDayPostHookFailureFailsDay(t *testing.T) {
	store := state.NewMemoryStore()
	fh := &fakeHooks{fail: map[string]error{"post": errors.New("exit 2")}}
	payload := func(context.Context, dayrunner.DayContext) error { return nil }

	outcome, err := newRunner(t, store, fh).RunDay(context.Background(), day.New(2024, 8), "", bothHooks, payload)
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if outcome.Status != state.StatusFailed || outcome.Phase != dayrunner.PhasePost || !errors.Is(outcome.Err, services.ErrHookFailure) {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestRunDayNoneHooksRunPayloadOnly(t *testing.T) {
	store := state.NewMemoryStore()
	fh := &fakeHooks{}
	called := 0
	payload := func(context.Context, dayrunner.DayContext) error { called++; return nil }

	outcome, err := newRunner(t, store, fh).RunDay(context.Background(), day.New(2024, 9), "", dayrunner.Hooks{}, payload)
	if err != nil || outcome.Status != state.StatusSuccess {
		t.Fatalf("unexpected result: %+v err=%v", outcome, err)
	}
	if called != 1 || len(fh.calls) != 0 {
		t.Fatalf("payload calls=%d hook calls=%v", called, fh.calls)
	}
}

func TestRunDayRecoversPayloadPanic(t *testing.T) {
	store := state.NewMemoryStore()
	payload := func(context.Context, dayrunner.DayContext) error { panic("nil orbit file") }

	outcome, err := newRunner(t, store, &fakeHooks{}).RunDay(context.Background(), day.New(2024, 10), "", dayrunner.Hooks{}, payload)
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if outcome.Status != state.StatusFailed || !errors.Is(outcome.Err, services.ErrPayloadFailure) {
		t.Fatalf("expected panic to become payload failure, got %+v", outcome)
	}
}

func TestRunDayTimeout(t *testing.T) {
	store := state.NewMemoryStore()
	payload := func(ctx context.Context, _ dayrunner.DayContext) error {
		<-ctx.Done()
		return ctx.Err()
	}
	runner := newRunner(t, store, &fakeHooks{}, func(o *dayrunner.Options) { o.DayTimeout = 20 * time.Millisecond })

	outcome, err := runner.RunDay(context.Background(), day.New(2024, 11), "", dayrunner.Hooks{}, payload)
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if outcome.Status != state.StatusFailed || !strings.Contains(outcome.Err.Error(), "timed out") {
		t.Fatalf("expected timed out failure, got %+v", outcome)
	}
}

func TestRunDayAttemptsAccumulate(t *testing.T) {
	store := state.NewMemoryStore()
	runner := newRunner(t, store, &fakeHooks{})
	d := day.New(2024, 12)
	fail := func(context.Context, dayrunner.DayContext) error { return errors.New("boom") }
	ok := func(context.Context, dayrunner.DayContext) error { return nil }

	for i, payload := range []dayrunner.DayCallback{fail, fail, ok} {
		outcome, err := runner.RunDay(context.Background(), d, "", dayrunner.Hooks{}, payload)
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if outcome.Record.Attempts != i+1 {
			t.Fatalf("attempt %d recorded attempts=%d", i+1, outcome.Record.Attempts)
		}
	}
	rec, _, _ := store.Get(context.Background(), d)
	if rec.Status != state.StatusSuccess || rec.LastError != "" {
		t.Fatalf("unexpected final record: %+v", rec)
	}
}

func TestRunDayPersistenceFailureIsFatal(t *testing.T) {
	store := state.NewMemoryStore()
	store.FailPut = errors.New("read-only filesystem")
	called := false
	payload := func(context.Context, dayrunner.DayContext) error { called = true; return nil }

	_, err := newRunner(t, store, &fakeHooks{}).RunDay(context.Background(), day.New(2024, 13), "", dayrunner.Hooks{}, payload)
	if !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if called {
		t.Fatal("payload must not run when the running transition cannot be persisted")
	}
}

func TestRunDayWritesDayLog(t *testing.T) {
	store := state.NewMemoryStore()
	logDir := t.TempDir()
	runner := newRunner(t, store, &fakeHooks{}, func(o *dayrunner.Options) { o.DayLogDir = logDir })
	payload := func(_ context.Context, dc dayrunner.DayContext) error {
		dc.Logger.Info("payload progress")
		_, err := fmt.Fprintln(dc.Output, "raw tool output")
		return err
	}

	outcome, err := runner.RunDay(context.Background(), day.New(2024, 14), "", dayrunner.Hooks{}, payload)
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if outcome.LogPath == "" || outcome.Record.LogPath != outcome.LogPath {
		t.Fatalf("expected day log path recorded, got %+v", outcome)
	}
	content, err := os.ReadFile(outcome.LogPath)
	if err != nil {
		t.Fatalf("read day log: %v", err)
	}
	for _, want := range []string{"day started", "payload progress", "raw tool output", "day succeeded", `"day":"2024-014"`} {
		if !strings.Contains(string(content), want) {
			t.Fatalf("day log missing %q:\n%s", want, content)
		}
	}
}

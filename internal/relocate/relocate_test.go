package relocate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/minio/minio-go/v7"

	"dayrun/internal/config"
	"dayrun/internal/day"
	"dayrun/internal/services"
	"dayrun/internal/state"
	"dayrun/internal/testsupport"
)

func makeWorkDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "work", "2024-032")
	testsupport.WriteTree(t, dir, map[string]string{
		"summary.txt":          "ok\n",
		"products/clock.sp3":   "sp3 data",
		"products/orbits.json": "{}",
	})
	return dir
}

func TestTriggerMatches(t *testing.T) {
	tests := []struct {
		trigger Trigger
		status  state.Status
		want    bool
	}{
		{TriggerAlways, state.StatusSuccess, true},
		{TriggerAlways, state.StatusFailed, true},
		{TriggerSuccess, state.StatusSuccess, true},
		{TriggerSuccess, state.StatusFailed, false},
		{TriggerFailure, state.StatusFailed, true},
		{TriggerFailure, state.StatusSuccess, false},
	}
	for _, tt := range tests {
		if got := tt.trigger.Matches(tt.status); got != tt.want {
			t.Fatalf("%s.Matches(%s) = %v, want %v", tt.trigger, tt.status, got, tt.want)
		}
	}
	if _, err := ParseTrigger("sometimes"); err == nil {
		t.Fatal("expected unknown trigger error")
	}
	if tr, err := ParseTrigger(" Success "); err != nil || tr != TriggerSuccess {
		t.Fatalf("ParseTrigger = %v, %v", tr, err)
	}
}

func TestParseTarget(t *testing.T) {
	opts := TargetOptions{BaseDirectory: "/data/out", ObjectStore: config.ObjectStore{Endpoint: "minio:9000"}}
	tests := []struct {
		value string
		kind  string
		str   string
	}{
		{"archive/{yyyy}", "dir", "/data/out/archive/{yyyy}"},
		{"/abs/dir", "dir", "/abs/dir"},
		{"zip:/arch/{yyyy}/{ddd}.zip", "zip", "zip:/arch/{yyyy}/{ddd}.zip"},
		{"bundles/{day}.ZIP", "zip", "zip:/data/out/bundles/{day}.ZIP"},
		{"s3://products/daily/{yyyy}", "s3", "s3://products/daily/{yyyy}"},
	}
	for _, tt := range tests {
		target, err := ParseTarget(tt.value, opts)
		if err != nil {
			t.Fatalf("ParseTarget(%q): %v", tt.value, err)
		}
		var kind string
		switch target.(type) {
		case *DirectoryTarget:
			kind = "dir"
		case *ZipTarget:
			kind = "zip"
		case *ObjectTarget:
			kind = "s3"
		}
		if kind != tt.kind || target.String() != tt.str {
			t.Fatalf("ParseTarget(%q) = %s %q, want %s %q", tt.value, kind, target.String(), tt.kind, tt.str)
		}
	}

	if _, err := ParseTarget("s3://bucket", TargetOptions{}); err == nil {
		t.Fatal("expected endpoint requirement")
	}
	if _, err := ParseTarget("s3:///prefix", opts); err == nil {
		t.Fatal("expected bucket requirement")
	}
}

func TestDirectoryTargetReplacesExisting(t *testing.T) {
	src := makeWorkDir(t)
	out := t.TempDir()
	target := &DirectoryTarget{Template: filepath.Join(out, "{yyyy}")}
	d := day.New(2024, 32)

	stale := filepath.Join(out, "2024", "2024-032")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(stale, "old.txt"), []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dest, err := target.Place(context.Background(), src, d)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if dest != stale {
		t.Fatalf("dest = %q, want %q", dest, stale)
	}
	if data, err := os.ReadFile(filepath.Join(dest, "products", "clock.sp3")); err != nil || string(data) != "sp3 data" {
		t.Fatalf("copied file = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dest, "old.txt")); !os.IsNotExist(err) {
		t.Fatal("expected previous destination to be replaced")
	}
	entries, _ := os.ReadDir(filepath.Join(out, "2024"))
	if len(entries) != 1 {
		t.Fatalf("expected no staging leftovers, got %d entries", len(entries))
	}
	if _, err := os.Stat(filepath.Join(src, "summary.txt")); err != nil {
		t.Fatal("source must be left in place")
	}
}

func TestZipTarget(t *testing.T) {
	src := makeWorkDir(t)
	out := t.TempDir()
	target := &ZipTarget{Template: filepath.Join(out, "{yyyy}", "{ddd}.zip")}

	dest, err := target.Place(context.Background(), src, day.New(2024, 32))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if dest != filepath.Join(out, "2024", "032.zip") {
		t.Fatalf("dest = %q", dest)
	}
	r, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	var names []string
	for _, f := range r.File {
		if !strings.HasSuffix(f.Name, "/") {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	want := []string{"2024-032/products/clock.sp3", "2024-032/products/orbits.json", "2024-032/summary.txt"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("archive entries = %v, want %v", names, want)
	}
}

type fakePutter struct {
	mu      sync.Mutex
	keys    []string
	err     error
	buckets map[string]bool
}

func (f *fakePutter) BucketExists(_ context.Context, bucket string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.buckets[bucket], nil
}

func (f *fakePutter) FPutObject(_ context.Context, bucket, object, _ string, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	f.keys = append(f.keys, bucket+"/"+object)
	return minio.UploadInfo{Bucket: bucket, Key: object}, nil
}

func TestObjectTargetUploadsTree(t *testing.T) {
	putter := &fakePutter{}
	original := newObjectClient
	newObjectClient = func(config.ObjectStore) (ObjectClient, error) { return putter, nil }
	t.Cleanup(func() { newObjectClient = original })

	target, err := ParseTarget("s3://products/daily/{yyyy}", TargetOptions{ObjectStore: config.ObjectStore{Endpoint: "minio:9000"}})
	if err != nil {
		t.Fatalf("ParseTarget: %v", err)
	}
	dest, err := target.Place(context.Background(), makeWorkDir(t), day.New(2024, 32))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if dest != "s3://products/daily/2024/2024-032" {
		t.Fatalf("dest = %q", dest)
	}
	sort.Strings(putter.keys)
	want := []string{
		"products/daily/2024/2024-032/products/clock.sp3",
		"products/daily/2024/2024-032/products/orbits.json",
		"products/daily/2024/2024-032/summary.txt",
	}
	if strings.Join(putter.keys, ",") != strings.Join(want, ",") {
		t.Fatalf("uploaded %v, want %v", putter.keys, want)
	}
}

func TestApplySelectsRulesByStatus(t *testing.T) {
	out := t.TempDir()
	cfg := config.Default()
	cfg.Paths.BaseDirectory = out
	cfg.Output.TargetDirectory = "all"
	cfg.Output.PCFCopyDir = "good"
	cfg.Output.PCFFailCopyDir = "bad"
	r, err := FromConfig(&cfg, nil)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if len(r.Rules()) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(r.Rules()))
	}

	src := makeWorkDir(t)
	results := r.Apply(context.Background(), day.New(2024, 32), src, state.StatusFailed)
	if len(results) != 2 || !Succeeded(results) {
		t.Fatalf("unexpected results: %+v", results)
	}
	for _, dir := range []string{"all", "bad"} {
		if _, err := os.Stat(filepath.Join(out, dir, "2024-032", "summary.txt")); err != nil {
			t.Fatalf("expected copy in %s: %v", dir, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "good")); !os.IsNotExist(err) {
		t.Fatal("success rule must not fire for a failed day")
	}
}

func TestApplyMissingWorkDirIsNoop(t *testing.T) {
	r := New([]Rule{{Name: "target_directory", Trigger: TriggerAlways, Target: &DirectoryTarget{Template: t.TempDir()}}}, true, nil)
	if results := r.Apply(context.Background(), day.New(2024, 1), filepath.Join(t.TempDir(), "missing"), state.StatusSuccess); len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}

type failingTarget struct{}

func (failingTarget) Place(context.Context, string, day.Day) (string, error) {
	return "", errors.New("disk full")
}

func (failingTarget) String() string { return "broken" }

func TestApplyFailureKeepsWorkDir(t *testing.T) {
	src := makeWorkDir(t)
	r := New([]Rule{
		{Name: "target_directory", Trigger: TriggerAlways, Target: &DirectoryTarget{Template: t.TempDir()}},
		{Name: "pcf_copy_dir", Trigger: TriggerSuccess, Target: failingTarget{}},
	}, true, nil)

	results := r.Apply(context.Background(), day.New(2024, 32), src, state.StatusSuccess)
	if Succeeded(results) {
		t.Fatal("expected a failed result")
	}
	if err := Err(results); !errors.Is(err, services.ErrRelocation) {
		t.Fatalf("Err = %v, want ErrRelocation", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatal("move must keep the working directory when a rule fails")
	}
}

func TestApplyMoveRemovesWorkDir(t *testing.T) {
	src := makeWorkDir(t)
	out := t.TempDir()
	r := New([]Rule{{Name: "target_directory", Trigger: TriggerAlways, Target: &DirectoryTarget{Template: out}}}, true, nil)

	results := r.Apply(context.Background(), day.New(2024, 32), src, state.StatusSuccess)
	if len(results) != 1 || !Succeeded(results) {
		t.Fatalf("unexpected results: %+v", results)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("expected working directory removed after move")
	}
	if _, err := os.Stat(filepath.Join(out, "2024-032", "products", "orbits.json")); err != nil {
		t.Fatalf("expected moved output: %v", err)
	}
}

func TestObjectTargetProbe(t *testing.T) {
	putter := &fakePutter{buckets: map[string]bool{"products": true}}
	original := newObjectClient
	newObjectClient = func(config.ObjectStore) (ObjectClient, error) { return putter, nil }
	t.Cleanup(func() { newObjectClient = original })

	store := config.ObjectStore{Endpoint: "minio:9000"}
	good := &ObjectTarget{Bucket: "products", Store: store}
	if err := good.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	missing := &ObjectTarget{Bucket: "absent", Store: store}
	if err := missing.Probe(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

func TestLocalTargetRoots(t *testing.T) {
	if got := (&DirectoryTarget{Template: "/srv/out/{yyyy}/{ddd}"}).Root(); got != "/srv/out" {
		t.Fatalf("directory root = %q", got)
	}
	if got := (&ZipTarget{Template: "/srv/zips/{yyyy}/{day}.zip"}).Root(); got != "/srv/zips" {
		t.Fatalf("zip root = %q", got)
	}
}

package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCommandName(t *testing.T) {
	tests := map[string]string{
		"":                               "",
		"  /opt/bin/getdata --day {day}": "/opt/bin/getdata",
		"LANG=C TZ=UTC rsync -a a b":     "rsync",
		`"/opt/my tools/run"`:            "/opt/my",
		"exit 1":                         "exit",
	}
	for line, want := range tests {
		if got := CommandName(line); got != want {
			t.Fatalf("CommandName(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestCheckCommands(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	reqs := []Requirement{
		{Name: "absolute", CommandLine: present + " --flag"},
		{Name: "on path", CommandLine: "present {day}"},
		{Name: "missing", CommandLine: "clearly-not-present-binary", Optional: true},
		{Name: "builtin", CommandLine: "exit 0"},
		{Name: "empty", CommandLine: "  "},
	}
	results := CheckCommands(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("absolute command: %#v", results[0])
	}
	if !results[1].Available || results[1].Detail != present {
		t.Fatalf("PATH command: %#v", results[1])
	}
	if results[2].Available || results[2].Detail == "" || !results[2].Optional {
		t.Fatalf("missing command: %#v", results[2])
	}
	if !results[3].Available {
		t.Fatalf("builtin: %#v", results[3])
	}
	if results[4].Available || results[4].Detail != "command not configured" {
		t.Fatalf("empty: %#v", results[4])
	}
}

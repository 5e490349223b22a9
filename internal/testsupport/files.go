package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree creates files (relative path to content) under root.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()

	for name, body := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

// Package testutil provides shared test helpers for building source
// documents, stores and loggers.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Cartooli/math-boredgames-sub001/internal/kv"
)

// PNG is a 1x1 transparent PNG, base64 encoded.
const PNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// Source renders a source document with n dated problems, each embedding
// its own inline PNG definition.
func Source(n int) []byte {
	var b strings.Builder
	b.WriteString("# Daily problems\n\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "## Day %d\n\n![][image%d]\n\n", i, i)
	}
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "[image%d]: <data:image/png;base64,%s>\n", i, PNG)
	}
	return []byte(b.String())
}

// WriteSource writes Source(n) to a temp file and returns its path.
func WriteSource(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "problems.md")
	if err := os.WriteFile(path, Source(n), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestStore creates a temporary SQLite-backed store that is closed on cleanup.
func TestStore(t *testing.T) kv.Store {
	t.Helper()
	s, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Cartooli/math-boredgames-sub001/internal/apperr"
	"github.com/Cartooli/math-boredgames-sub001/internal/testutil"
)

func TestHTTP_Fetch(t *testing.T) {
	body := testutil.Source(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/problems.md":
			w.Header().Set("Content-Type", "text/markdown")
			_, _ = w.Write(body)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h, err := NewHTTP(srv.URL+"/problems.md", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	got, err := h.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != string(body) {
		t.Error("body mismatch")
	}

	missing, _ := NewHTTP(srv.URL+"/gone", time.Second)
	if _, err := missing.Fetch(context.Background()); !errors.Is(err, apperr.ErrFetch) {
		t.Errorf("404 err = %v, want ErrFetch", err)
	}
}

func TestHTTP_RejectsBadURLs(t *testing.T) {
	for _, u := range []string{"ftp://example.com/x", "file:///etc/passwd", "://bad"} {
		if _, err := NewHTTP(u, 0); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("NewHTTP(%q) err = %v", u, err)
		}
	}
}

func TestHTTP_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	h, _ := NewHTTP(srv.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := h.Fetch(ctx); !errors.Is(err, apperr.ErrFetch) {
		t.Errorf("err = %v, want ErrFetch", err)
	}
}

func TestFile_Fetch(t *testing.T) {
	path := testutil.WriteSource(t, 3)
	got, err := NewFile(path).Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(testutil.Source(3)) {
		t.Error("content mismatch")
	}
	if _, err := NewFile(filepath.Join(t.TempDir(), "nope.md")).Fetch(context.Background()); !errors.Is(err, apperr.ErrFetch) {
		t.Errorf("missing file err = %v", err)
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatch_DebouncesWrites(t *testing.T) {
	path := testutil.WriteSource(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, 100*time.Millisecond, testutil.Logger(), func(string) { calls.Add(1) })
	}()
	time.Sleep(100 * time.Millisecond)

	for i := 2; i <= 4; i++ {
		_ = os.WriteFile(path, testutil.Source(i), 0o644)
		time.Sleep(10 * time.Millisecond)
	}
	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool { return calls.Load() >= 1 },
		"watcher never reported the change")
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("callbacks = %d, want 1 for one burst", n)
	}

	// Unrelated files in the same directory are ignored.
	_ = os.WriteFile(filepath.Join(filepath.Dir(path), "other.md"), []byte("x"), 0o644)
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("callbacks = %d after unrelated write", n)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

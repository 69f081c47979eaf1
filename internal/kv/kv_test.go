package kv

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// backends returns one fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	file, err := NewFile(t.TempDir())
	require.NoError(t, err)

	sqlitePath := filepath.Join(t.TempDir(), "kv.db")
	lite, err := OpenSQLite(sqlitePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })

	bdg, err := OpenBadger("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bdg.Close() })

	return map[string]Store{
		"memory":   NewMemory(),
		"file":     file,
		"sqlite":   lite,
		"badger":   bdg,
		"prefixed": WithPrefix(NewMemory(), "scope/"),
		"fallback": NewFallback(NewMemory(), quietLogger()),
	}
}

func TestStore_SetGetRemove(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get("missing")
			assert.True(t, IsNotFound(err), "absent key should be not-found, got %v", err)

			require.NoError(t, s.Set("catalogue/seed", []byte("12345")))
			got, err := s.Get("catalogue/seed")
			require.NoError(t, err)
			assert.Equal(t, []byte("12345"), got)

			require.NoError(t, s.Set("catalogue/seed", []byte("999")))
			got, err = s.Get("catalogue/seed")
			require.NoError(t, err)
			assert.Equal(t, []byte("999"), got)

			require.NoError(t, s.Remove("catalogue/seed"))
			_, err = s.Get("catalogue/seed")
			assert.True(t, IsNotFound(err))

			// Removing twice is fine.
			require.NoError(t, s.Remove("catalogue/seed"))
		})
	}
}

func TestStore_KeysWithPrefix(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"vote/2", "vote/10", "verified/2", "notes", "vote/1"} {
				require.NoError(t, s.Set(k, []byte("x")))
			}
			keys, err := s.KeysWithPrefix("vote/")
			require.NoError(t, err)
			assert.Equal(t, []string{"vote/1", "vote/10", "vote/2"}, keys)

			all, err := s.KeysWithPrefix("")
			require.NoError(t, err)
			assert.Len(t, all, 5)

			none, err := s.KeysWithPrefix("nothing/")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_KeysWithNonASCIIPrefix(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"profiles/zoë/streak", "profiles/zoë/notes", "profiles/zoe/notes", "profiles/日本/notes"} {
				require.NoError(t, s.Set(k, []byte("x")))
			}
			keys, err := s.KeysWithPrefix("profiles/zoë/")
			require.NoError(t, err)
			assert.Equal(t, []string{"profiles/zoë/notes", "profiles/zoë/streak"}, keys)

			keys, err = s.KeysWithPrefix("profiles/日")
			require.NoError(t, err)
			assert.Equal(t, []string{"profiles/日本/notes"}, keys)
		})
	}
}

func TestStore_RejectsInvalidKeys(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Set("", []byte("x")))
			assert.Error(t, s.Set("dir/", []byte("x")))
		})
	}
}

func TestFile_TraversalStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewFile(root)
	require.NoError(t, err)

	for _, k := range []string{"../escape", "a/../../escape", "..", "profiles/../x"} {
		require.NoError(t, s.Set(k, []byte("v")), "key %q", k)
		got, err := s.Get(k)
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
	}
	_, err = os.Stat(filepath.Join(filepath.Dir(root), "escape.val"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "value written outside root")

	keys, err := s.KeysWithPrefix("")
	require.NoError(t, err)
	assert.Contains(t, keys, "../escape")
}

func TestFile_NoLeftoverTempFiles(t *testing.T) {
	s, err := NewFile(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Set("streak", []byte(`{"current_streak":1}`)))
	require.NoError(t, s.Set("streak", []byte(`{"current_streak":2}`)))

	matches, _ := filepath.Glob(filepath.Join(s.root, ".kv-tmp-*"))
	assert.Empty(t, matches)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("notes", []byte(`{"1":"remember"}`)))
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Get("notes")
	require.NoError(t, err)
	assert.Equal(t, `{"1":"remember"}`, string(got))
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBadger(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set("catalogue/seed", []byte("42")))
	require.NoError(t, s.Close())

	s2, err := OpenBadger(dir, nil)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Get("catalogue/seed")
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), got)
}

func TestWithPrefix_Isolation(t *testing.T) {
	base := NewMemory()
	alice := WithPrefix(base, "profiles/alice/")
	bob := WithPrefix(base, "profiles/bob/")

	require.NoError(t, alice.Set("vote/1", []byte("up")))
	require.NoError(t, bob.Set("vote/1", []byte("down")))

	a, err := alice.Get("vote/1")
	require.NoError(t, err)
	assert.Equal(t, "up", string(a))

	keys, err := bob.KeysWithPrefix("vote/")
	require.NoError(t, err)
	assert.Equal(t, []string{"vote/1"}, keys)

	raw, err := base.KeysWithPrefix("profiles/")
	require.NoError(t, err)
	assert.Equal(t, []string{"profiles/alice/vote/1", "profiles/bob/vote/1"}, raw)

	nested := WithPrefix(alice, "sub/")
	require.NoError(t, nested.Set("k", []byte("v")))
	_, err = base.Get("profiles/alice/sub/k")
	assert.NoError(t, err)
}

// brokenStore accepts reads but refuses every write, like a full quota.
type brokenStore struct {
	*Memory
}

func (brokenStore) Set(string, []byte) error { return errors.New("quota exceeded") }
func (brokenStore) Remove(string) error      { return errors.New("read-only") }

func TestFallback_DegradesToMemory(t *testing.T) {
	primary := brokenStore{Memory: NewMemory()}
	require.NoError(t, primary.Memory.Set("ratings", []byte("persisted")))

	f := NewFallback(primary, quietLogger())

	got, err := f.Get("ratings")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got))

	require.NoError(t, f.Set("ratings", []byte("session-only")))
	got, err = f.Get("ratings")
	require.NoError(t, err)
	assert.Equal(t, "session-only", string(got))

	require.NoError(t, f.Remove("ratings"))
	_, err = f.Get("ratings")
	assert.True(t, IsNotFound(err))

	keys, err := f.KeysWithPrefix("")
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, f.Set("ratings", []byte("again")))
	got, err = f.Get("ratings")
	require.NoError(t, err)
	assert.Equal(t, "again", string(got))
}

func TestOpen_Drivers(t *testing.T) {
	dir := t.TempDir()
	for _, driver := range []string{DriverMemory, DriverFile, DriverSQLite, DriverBadger} {
		path := filepath.Join(dir, driver)
		if driver == DriverSQLite {
			path += ".db"
		}
		s, err := Open(driver, path, quietLogger())
		require.NoError(t, err, driver)
		require.NoError(t, s.Set("k", []byte("v")), driver)
		require.NoError(t, s.Close(), driver)
	}
	_, err := Open("redis", "", nil)
	assert.Error(t, err)
}

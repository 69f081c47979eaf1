package kv

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const valueExt = ".val"

// File implements Store with one file per key under a root directory.
// Key segments separated by "/" become directories; each segment is
// path-escaped so arbitrary keys cannot leave the root.
type File struct {
	root string // absolute path to the store directory
}

// NewFile creates a File store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("kv: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("kv: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("kv: root is not a directory: %s", abs)
	}
	return &File{root: abs}, nil
}

// keyPath maps a key to its file and rejects anything resolving outside root.
func (f *File) keyPath(key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	segs := strings.Split(key, "/")
	for i, s := range segs {
		if s == "" {
			return "", fmt.Errorf("kv: empty segment in key %q", key)
		}
		segs[i] = url.PathEscape(s)
		if segs[i] == "." || segs[i] == ".." {
			segs[i] = strings.ReplaceAll(segs[i], ".", "%2E")
		}
	}
	abs := filepath.Join(append([]string{f.root}, segs...)...) + valueExt
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("kv: key escapes store root: %s", key)
	}
	return abs, nil
}

// pathKey is the inverse of keyPath.
func (f *File) pathKey(abs string) (string, bool) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || !strings.HasSuffix(rel, valueExt) {
		return "", false
	}
	segs := strings.Split(filepath.ToSlash(strings.TrimSuffix(rel, valueExt)), "/")
	for i, s := range segs {
		dec, err := url.PathUnescape(s)
		if err != nil {
			return "", false
		}
		segs[i] = dec
	}
	return strings.Join(segs, "/"), true
}

func (f *File) Get(key string) ([]byte, error) {
	abs, err := f.keyPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("kv: read %s: %w", key, err)
	}
	return data, nil
}

// Set atomically writes the value: tmp file → fsync → rename.
func (f *File) Set(key string, value []byte) error {
	abs, err := f.keyPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kv: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".kv-tmp-*")
	if err != nil {
		return fmt.Errorf("kv: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(value); err != nil {
		return fmt.Errorf("kv: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("kv: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kv: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("kv: rename: %w", err)
	}
	success = true
	return nil
}

func (f *File) Remove(key string) error {
	abs, err := f.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("kv: remove %s: %w", key, err)
	}
	return nil
}

func (f *File) KeysWithPrefix(prefix string) ([]string, error) {
	out := []string{}
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".kv-tmp-") {
			return nil
		}
		key, ok := f.pathKey(p)
		if ok && strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv: list: %w", err)
	}
	return sortedKeys(out), nil
}

func (f *File) Close() error { return nil }

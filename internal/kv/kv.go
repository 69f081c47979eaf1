// Package kv defines the durable key-value abstraction that backs the
// catalogue cache and the annotation store, with memory, file, SQLite and
// Badger implementations.
package kv

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Cartooli/math-boredgames-sub001/internal/apperr"
)

// Store is the minimal capability set every backend provides.
type Store interface {
	// Get returns the value stored at key, or an error wrapping
	// apperr.ErrNotFound when the key is absent.
	Get(key string) ([]byte, error)
	// Set stores value at key, replacing any previous value.
	Set(key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
	// KeysWithPrefix returns every key starting with prefix, sorted.
	KeysWithPrefix(prefix string) ([]string, error)
	// Close releases backend resources.
	Close() error
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}

func notFound(key string) error {
	return fmt.Errorf("kv: %w: %s", apperr.ErrNotFound, key)
}

func validKey(key string) error {
	if key == "" || strings.HasSuffix(key, "/") {
		return fmt.Errorf("kv: %w: invalid key %q", apperr.ErrInvalidArgument, key)
	}
	return nil
}

func sortedKeys(keys []string) []string {
	sort.Strings(keys)
	return keys
}

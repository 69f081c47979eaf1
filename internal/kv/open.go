package kv

import (
	"fmt"
	"log/slog"
)

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Open constructs the backend named by driver and wraps it in a Fallback
// so durable write failures never reach callers.
func Open(driver, path string, logger *slog.Logger) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		s, err = NewFile(path)
	case DriverSQLite:
		s, err = OpenSQLite(path)
	case DriverBadger:
		s, err = OpenBadger(path, logger)
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	return NewFallback(s, logger), nil
}

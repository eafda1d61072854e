package fallcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNilBackend is returned by New when Options.Backend is nil.
	ErrNilBackend = errors.New("fallcache: backend is required")

	// ErrUnsupported is matched (errors.Is) by every *UnsupportedError.
	ErrUnsupported = errors.New("fallcache: operation unsupported")

	// ErrLockTimeout is returned by AcquireLease when the wait elapses.
	ErrLockTimeout = errors.New("fallcache: lock wait timed out")
)

// UnsupportedError reports an operation the instance's mode cannot serve,
// e.g. a queue push while running on the local store. It is distinct from a
// legitimately empty result.
type UnsupportedError struct {
	Op   string
	Mode Mode
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("fallcache: %s unsupported in %s mode", e.Op, e.Mode)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

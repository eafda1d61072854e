package fallcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// New fixed the mode. probeErr is the canary failure for ModeLocal, nil otherwise.
	ModeSelected(mode Mode, probeErr error)

	// A remote call failed. The same error is returned to the caller.
	RemoteError(op, storageKey string, err error)

	// An operation was refused because the mode cannot serve it.
	// Fired for every local-mode queue call, pattern delete and lock attempt.
	Unsupported(op string, mode Mode)

	// Lock acquisition outcome. attempts counts set-if-absent calls.
	LockAcquired(storageKey string, attempts int, waited time.Duration)
	LockTimedOut(storageKey string, attempts int, waited time.Duration)

	// Clear replaced the local store.
	LocalCleared()
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ModeSelected(Mode, error)                {}
func (NopHooks) RemoteError(string, string, error)       {}
func (NopHooks) Unsupported(string, Mode)                {}
func (NopHooks) LockAcquired(string, int, time.Duration) {}
func (NopHooks) LockTimedOut(string, int, time.Duration) {}
func (NopHooks) LocalCleared()                           {}

package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/fallcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	RemoteErrorEvery uint64
	UnsupportedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	remoteErrCtr   atomic.Uint64
	unsupportedCtr atomic.Uint64
}

var _ fallcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ModeSelected(mode fallcache.Mode, probeErr error) {
	if h.l == nil {
		return
	}
	if probeErr != nil {
		h.l.Warn("fallcache.mode_selected",
			"mode", mode.String(),
			"probe_err", probeErr)
		return
	}
	h.l.Info("fallcache.mode_selected", "mode", mode.String())
}

func (h *Hooks) RemoteError(op, storageKey string, err error) {
	if h.l == nil || !sample(h.opts.RemoteErrorEvery, &h.remoteErrCtr) {
		return
	}
	h.l.Warn("fallcache.remote_error",
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) Unsupported(op string, mode fallcache.Mode) {
	if h.l == nil || !sample(h.opts.UnsupportedEvery, &h.unsupportedCtr) {
		return
	}
	h.l.Warn("fallcache.unsupported",
		"op", op,
		"mode", mode.String())
}

func (h *Hooks) LockAcquired(storageKey string, attempts int, waited time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Debug("fallcache.lock_acquired",
		"key", h.redact(storageKey),
		"attempts", attempts,
		"waited", waited)
}

func (h *Hooks) LockTimedOut(storageKey string, attempts int, waited time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Info("fallcache.lock_timed_out",
		"key", h.redact(storageKey),
		"attempts", attempts,
		"waited", waited)
}

func (h *Hooks) LocalCleared() {
	if h.l == nil {
		return
	}
	h.l.Info("fallcache.local_cleared")
}

package iscsi

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/ggnet/ggnet-core/internal/ggerr"
)

const (
	maxRetries  = 1 // spec.md §4.3 "TransientError (timeout; retry permitted once)"
	baseBackoff = 200 * time.Millisecond
)

// doWithRetry retries fn once on a TransientError, with a short backoff
// (spec.md §4.3 "retry permitted once" — a single bounded retry, not an
// open-ended exponential schedule).
func doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !ggerr.Is(lastErr, ggerr.KindTransient) {
			return lastErr
		}
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(baseBackoff):
			}
		}
	}
	return lastErr
}

// classifyExit maps a subprocess result to the failure taxonomy of
// spec.md §4.3: a context deadline is TransientError, an unreachable/
// missing binary is DaemonUnavailable-shaped FatalError, and any other
// non-zero exit is a FatalError surfaced with the originating output.
func classifyExit(ctx context.Context, output string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ggerr.Transient("iscsi.timeout", err)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return ggerr.Fatal("iscsi.daemon_unavailable", err)
	}
	return ggerr.Wrap(ggerr.KindFatal, "iscsi.configurator_failed", err, output)
}

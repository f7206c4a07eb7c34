package prefetch

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrScopeChanged   = errors.New("prefetch: scope changed")
	ErrClosed         = errors.New("prefetch: manager closed")
	ErrRequestTimeout = errors.New("prefetch: request timed out")
)

// Scope partitions the cache. Entries hydrated under one scope are never
// visible under another.
type Scope string

// NewScope joins non-empty parts into a composite key, e.g. mode/set/run.
func NewScope(parts ...string) Scope {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return Scope(strings.Join(kept, "/"))
}

// CancelToken is the cancellation handle carried by one hydration. It is
// checked when the call starts and again before the result is cached.
type CancelToken struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewCancelToken(parent context.Context) *CancelToken {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &CancelToken{ctx: ctx, cancel: cancel}
}

func (t *CancelToken) Cancel(cause error) { t.cancel(cause) }

func (t *CancelToken) Cancelled() bool { return t.ctx.Err() != nil }

func (t *CancelToken) Context() context.Context { return t.ctx }

// Cause reports why the token was cancelled, or nil.
func (t *CancelToken) Cause() error { return context.Cause(t.ctx) }

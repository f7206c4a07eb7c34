package session

import (
	"context"

	"griddojo/internal/catalog"
	"griddojo/internal/hydrate"
	"griddojo/internal/prefetch"
)

// Cache is the prefetch service the engine drives. *prefetch.Manager
// satisfies it.
type Cache interface {
	Activate(scope prefetch.Scope, pool []catalog.Challenge, wrap bool)
	Deactivate()
	EnsurePrefetched(d catalog.Challenge)
	GetCachedOrFallback(d catalog.Challenge) hydrate.Challenge
	IsPending(id string) bool
	Advance(index int)
	Progress() float64
	InitialLoadComplete() bool
}

// Reporter receives progress summaries. Errors are logged by the engine and
// never surface to the player.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

type ReporterFunc func(ctx context.Context, r Report) error

func (f ReporterFunc) Report(ctx context.Context, r Report) error { return f(ctx, r) }

package devtools

import (
	"griddojo/internal/prefetch"
	"griddojo/internal/session"
)

type Engine interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) func()
}

type Cache interface {
	Stats() prefetch.Stats
	SetNetworkQuality(q prefetch.Quality)
}

var (
	_ Engine = (*session.Engine)(nil)
	_ Cache  = (*prefetch.Manager)(nil)
)

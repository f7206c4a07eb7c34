package hydrate

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"
)

type sprite struct {
	name  string
	glyph string
}

var spriteTable = []sprite{
	{"lighthouse", "Lh"}, {"anchor", "An"}, {"cactus", "Ca"}, {"comet", "Co"},
	{"lantern", "La"}, {"mushroom", "Mu"}, {"owl", "Ow"}, {"pagoda", "Pa"},
	{"sailboat", "Sb"}, {"teapot", "Tp"}, {"kite", "Ki"}, {"shell", "Sh"},
	{"acorn", "Ac"}, {"bell", "Be"}, {"feather", "Fe"}, {"key", "Ky"},
}

type LocalOption func(*Local)

// Local synthesizes challenges in-process from (id, seed).
type Local struct {
	latency time.Duration
	jitter  time.Duration
}

func NewLocal(opts ...LocalOption) *Local {
	l := &Local{}
	for _, o := range opts {
		o(l)
	}
	return l
}

// WithLatency delays each hydration by d plus up to jitter, to exercise the
// prefetch path without a network.
func WithLatency(d, jitter time.Duration) LocalOption {
	return func(l *Local) {
		l.latency = d
		l.jitter = jitter
	}
}

func (l *Local) Hydrate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	d := req.Challenge
	rng := rand.New(rand.NewSource(mixSeed(d.ChallengeID, req.Seed)))

	if wait := l.delay(rng); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return Response{}, ctx.Err()
		case <-t.C:
		}
	}

	target := spriteFor(d.Theme)
	if d.Theme == "" {
		target = spriteTable[rng.Intn(len(spriteTable))]
	}
	decoys := make([]sprite, 0, len(spriteTable)-1)
	for _, s := range spriteTable {
		if s.name != target.name {
			decoys = append(decoys, s)
		}
	}
	correct := make(map[int]bool, len(d.CorrectCells))
	for _, idx := range d.CorrectCells {
		correct[idx] = true
	}

	tiles := make([]Tile, d.CellCount())
	for i := range tiles {
		s := target
		if !correct[i] {
			s = decoys[rng.Intn(len(decoys))]
		}
		tiles[i] = Tile{Index: i, Sprite: s.name, Glyph: s.glyph, Target: correct[i]}
	}
	return Response{Challenge: Challenge{Challenge: d, Tiles: tiles, Hydrated: true}}, nil
}

func (l *Local) delay(rng *rand.Rand) time.Duration {
	if l.latency <= 0 && l.jitter <= 0 {
		return 0
	}
	d := l.latency
	if l.jitter > 0 {
		d += time.Duration(rng.Int63n(int64(l.jitter)))
	}
	return d
}

func spriteFor(theme string) sprite {
	for _, s := range spriteTable {
		if s.name == theme {
			return s
		}
	}
	if theme == "" {
		return spriteTable[0]
	}
	g := theme
	if len(g) > 2 {
		g = g[:2]
	}
	return sprite{name: theme, glyph: g}
}

func mixSeed(id string, seed int64) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64()) ^ seed
}

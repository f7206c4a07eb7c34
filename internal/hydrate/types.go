package hydrate

import (
	"context"
	"errors"

	"griddojo/internal/catalog"
)

var ErrBadResponse = errors.New("hydrate: bad response")

// Hydrator turns a descriptor into a hydrated challenge. Calls must be
// idempotent per (challenge id, seed) and must honour ctx cancellation.
type Hydrator interface {
	Hydrate(ctx context.Context, req Request) (Response, error)
}

type Request struct {
	Challenge     catalog.Challenge
	Seed          int64
	RenderOptions *RenderOptions
}

type RenderOptions struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

type Response struct {
	Challenge     Challenge
	RenderedImage []byte
}

type Tile struct {
	Index  int    `json:"index"`
	Sprite string `json:"sprite"`
	Glyph  string `json:"glyph"`
	Target bool   `json:"target"`
}

// Challenge is a descriptor plus its per-cell visuals. Hydrated is false for
// a raw fallback built from the descriptor alone.
type Challenge struct {
	catalog.Challenge
	Tiles    []Tile
	Image    []byte
	Hydrated bool
}

// Fallback wraps a raw descriptor.
func Fallback(d catalog.Challenge) Challenge {
	return Challenge{Challenge: d}
}

// Tile returns the visual for a cell, or false when unavailable.
func (c Challenge) Tile(index int) (Tile, bool) {
	if index < 0 || index >= len(c.Tiles) {
		return Tile{}, false
	}
	return c.Tiles[index], true
}

// RequestFor builds the hydration request used by the cache manager.
func RequestFor(d catalog.Challenge) Request {
	return Request{Challenge: d, Seed: d.SeedOr(0)}
}

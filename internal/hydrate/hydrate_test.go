package hydrate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"griddojo/internal/catalog"
)

func diagonal() catalog.Challenge {
	seed := int64(11)
	return catalog.Challenge{
		ChallengeID:  "core-001-diagonal",
		Title:        "Diagonal",
		PromptMD:     "Select every **lighthouse**.",
		Theme:        "lighthouse",
		GridSize:     3,
		CorrectCells: []int{0, 4, 8},
		Seed:         &seed,
	}
}

func TestLocalHydrateIsDeterministic(t *testing.T) {
	l := NewLocal()
	req := RequestFor(diagonal())
	a, err := l.Hydrate(context.Background(), req)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	b, err := l.Hydrate(context.Background(), req)
	if err != nil {
		t.Fatalf("hydrate again: %v", err)
	}
	if !a.Challenge.Hydrated || len(a.Challenge.Tiles) != 9 {
		t.Fatalf("unexpected hydrated challenge: %+v", a.Challenge)
	}
	for i := range a.Challenge.Tiles {
		if a.Challenge.Tiles[i] != b.Challenge.Tiles[i] {
			t.Fatalf("tile %d differs between calls", i)
		}
	}
	for _, idx := range []int{0, 4, 8} {
		tile, _ := a.Challenge.Tile(idx)
		if !tile.Target || tile.Sprite != "lighthouse" {
			t.Fatalf("tile %d should be a lighthouse target: %+v", idx, tile)
		}
	}
	tile, _ := a.Challenge.Tile(1)
	if tile.Target || tile.Sprite == "lighthouse" {
		t.Fatalf("tile 1 should be a decoy: %+v", tile)
	}
}

func TestLocalHydrateHonoursCancellation(t *testing.T) {
	l := NewLocal(WithLatency(time.Hour, 0))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.Hydrate(ctx, RequestFor(diagonal()))
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("hydrate did not return after cancel")
	}
}

func TestHTTPClientHydrate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/challenges/hydrate" {
			http.Error(w, "bad route", http.StatusNotFound)
			return
		}
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Seed != 11 || req.Challenge.GridSize != 3 {
			http.Error(w, "unexpected body", http.StatusBadRequest)
			return
		}
		tiles := make([]Tile, 9)
		for i := range tiles {
			tiles[i] = Tile{Index: i, Sprite: "owl", Glyph: "Ow"}
		}
		_ = json.NewEncoder(w).Encode(wireResponse{
			Challenge:     wireChallenge{ID: req.Challenge.ID, Tiles: tiles},
			RenderedImage: []byte("png"),
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL + "/")
	resp, err := c.Hydrate(context.Background(), RequestFor(diagonal()))
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if !resp.Challenge.Hydrated || string(resp.RenderedImage) != "png" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if tile, _ := resp.Challenge.Tile(4); !tile.Target {
		t.Fatalf("target flag should come from the descriptor")
	}
}

func TestHTTPClientOptionsCopyCallerClient(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		tiles := make([]Tile, 9)
		for i := range tiles {
			tiles[i] = Tile{Index: i}
		}
		_ = json.NewEncoder(w).Encode(wireResponse{Challenge: wireChallenge{Tiles: tiles}})
	}))
	defer srv.Close()

	shared := &http.Client{}
	c := NewHTTPClient(srv.URL, WithHTTPClient(shared), WithTimeout(3*time.Second), WithPath("/v2/hydrate"))
	if shared.Timeout != 0 {
		t.Fatalf("caller client was mutated: timeout %v", shared.Timeout)
	}
	if c.httpClient == shared || c.httpClient.Timeout != 3*time.Second {
		t.Fatalf("expected a private client with the timeout, got %+v", c.httpClient)
	}
	if _, err := c.Hydrate(context.Background(), RequestFor(diagonal())); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if gotPath != "/v2/hydrate" {
		t.Fatalf("expected custom path, got %q", gotPath)
	}
}

func TestHTTPClientRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).Hydrate(context.Background(), RequestFor(diagonal()))
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

func TestHTTPClientRejectsWrongTileCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(wireResponse{Challenge: wireChallenge{Tiles: []Tile{{Index: 0}}}})
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).Hydrate(context.Background(), RequestFor(diagonal()))
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

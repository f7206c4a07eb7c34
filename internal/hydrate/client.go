package hydrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"griddojo/internal/catalog"
)

const defaultHydratePath = "/api/challenges/hydrate"

type ClientOption func(*HTTPClient)

// HTTPClient calls a remote challenge synthesizer.
type HTTPClient struct {
	baseURL    string
	path       string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    defaultHydratePath,
		// Deadlines come from the caller's context.
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func WithPath(path string) ClientOption {
	return func(c *HTTPClient) { c.path = path }
}

// WithHTTPClient uses a copy of hc so later options never touch the
// caller's client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if hc == nil {
			return
		}
		cp := *hc
		c.httpClient = &cp
	}
}

// WithTimeout sets a transport-level ceiling in addition to ctx.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d <= 0 {
			return
		}
		cp := *c.httpClient
		cp.Timeout = d
		c.httpClient = &cp
	}
}

type wireDescriptor struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Prompt       string `json:"prompt"`
	Theme        string `json:"theme,omitempty"`
	GridSize     int    `json:"grid_size"`
	CorrectCells []int  `json:"correct_cells"`
}

type wireRequest struct {
	Challenge     wireDescriptor `json:"challenge"`
	Seed          int64          `json:"seed"`
	RenderOptions *RenderOptions `json:"render_options,omitempty"`
}

type wireChallenge struct {
	ID    string `json:"id"`
	Tiles []Tile `json:"tiles"`
}

type wireResponse struct {
	Challenge     wireChallenge `json:"challenge"`
	RenderedImage []byte        `json:"rendered_image,omitempty"`
}

func (c *HTTPClient) Hydrate(ctx context.Context, req Request) (Response, error) {
	d := req.Challenge
	body, err := json.Marshal(wireRequest{
		Challenge: wireDescriptor{
			ID:           d.ChallengeID,
			Title:        d.Title,
			Prompt:       d.PromptMD,
			Theme:        d.Theme,
			GridSize:     d.GridSize,
			CorrectCells: d.CorrectCells,
		},
		Seed:          req.Seed,
		RenderOptions: req.RenderOptions,
	})
	if err != nil {
		return Response{}, fmt.Errorf("encode hydrate request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create hydrate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("hydrate request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read hydrate response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, fmt.Errorf("%w: HTTP %d: %s", ErrBadResponse, resp.StatusCode, truncate(string(data), 200))
	}

	var wr wireResponse
	if err := json.Unmarshal(data, &wr); err != nil {
		return Response{}, fmt.Errorf("%w: parse: %v", ErrBadResponse, err)
	}
	return buildResponse(d, wr)
}

func buildResponse(d catalog.Challenge, wr wireResponse) (Response, error) {
	if wr.Challenge.ID != "" && wr.Challenge.ID != d.ChallengeID {
		return Response{}, fmt.Errorf("%w: id mismatch: want %s got %s", ErrBadResponse, d.ChallengeID, wr.Challenge.ID)
	}
	if len(wr.Challenge.Tiles) != d.CellCount() {
		return Response{}, fmt.Errorf("%w: expected %d tiles, got %d", ErrBadResponse, d.CellCount(), len(wr.Challenge.Tiles))
	}
	correct := make(map[int]bool, len(d.CorrectCells))
	for _, idx := range d.CorrectCells {
		correct[idx] = true
	}
	tiles := make([]Tile, d.CellCount())
	for i, t := range wr.Challenge.Tiles {
		if t.Index != i {
			return Response{}, fmt.Errorf("%w: tile %d has index %d", ErrBadResponse, i, t.Index)
		}
		t.Target = correct[i]
		tiles[i] = t
	}
	return Response{
		Challenge: Challenge{
			Challenge: d,
			Tiles:     tiles,
			Image:     wr.RenderedImage,
			Hydrated:  true,
		},
		RenderedImage: wr.RenderedImage,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

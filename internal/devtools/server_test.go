package devtools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"griddojo/internal/catalog"
	"griddojo/internal/grading"
	"griddojo/internal/hydrate"
	"griddojo/internal/prefetch"
	"griddojo/internal/session"
)

type engineController struct{ e *session.Engine }

func (c engineController) OnStart()           { c.e.Start() }
func (c engineController) OnToggle(index int) { c.e.ToggleCell(index) }
func (c engineController) OnSubmit()          { c.e.Submit() }
func (c engineController) OnNext()            { c.e.Next() }
func (c engineController) OnRetry()           { c.e.Retry() }
func (c engineController) OnReset()           { c.e.Reset() }
func (c engineController) OnCycleMode()       {}
func (c engineController) OnCycleSet()        {}
func (c engineController) OnQuit()            {}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *session.Engine) {
	t.Helper()
	cache := prefetch.NewManager(hydrate.NewLocal(), prefetch.WithConcurrency(4), prefetch.WithWaveDelay(0))
	engine := session.NewEngine(cache, nil)
	cache.OnChange(engine.Refresh)
	engine.SetPool(session.Pool{
		SetID: "dev-set",
		Challenges: []catalog.Challenge{
			{ChallengeID: "c1", Title: "Corners", GridSize: 3, CorrectCells: []int{0, 2, 6, 8}},
			{ChallengeID: "c2", Title: "Center", GridSize: 3, CorrectCells: []int{4}},
		},
		Rules: grading.DefaultRules(),
	})

	srv := NewServer("", engine, cache, engineController{engine}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close(context.Background())
		engine.Close()
		cache.Close()
	})
	return srv, ts, engine
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestReadyEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/__dev/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Post(ts.URL+"/__dev/ready", "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestStateReflectsIdleSession(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/__dev/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var view StateView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "dev-set", view.SetID)
	assert.Equal(t, string(session.StatusIdle), view.Status)
	assert.Equal(t, 2, view.Total)
	assert.Empty(t, view.Selected)
	assert.Equal(t, 4, view.Prefetch.Concurrency)
}

func TestActionsDriveTheEngine(t *testing.T) {
	_, ts, engine := newTestServer(t)

	resp, view := postJSON(t, ts.URL+"/__dev/action", `{"action":"start"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(session.StatusPlaying), view["status"])
	assert.Equal(t, "c1", view["challenge_id"])

	for _, cell := range []int{0, 2, 6, 8} {
		body, _ := json.Marshal(map[string]any{"action": "toggle", "cell": cell})
		resp, _ = postJSON(t, ts.URL+"/__dev/action", string(body))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	require.Eventually(t, func() bool { return !engine.Snapshot().Pending }, 2*time.Second, 5*time.Millisecond)
	_, view = postJSON(t, ts.URL+"/__dev/action", `{"action":"submit"}`)
	assert.Equal(t, string(session.StatusSuccess), view["status"])

	snap := engine.Snapshot()
	assert.Equal(t, 1, snap.Completed)
	assert.Positive(t, snap.TotalScore)

	_, view = postJSON(t, ts.URL+"/__dev/action", `{"action":"next"}`)
	assert.Equal(t, "c2", view["challenge_id"])
}

func TestUnknownActionRejected(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, out := postJSON(t, ts.URL+"/__dev/action", `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, out["ok"])
	assert.Contains(t, out["error"], "explode")
}

func TestQualityOverrideChangesConcurrency(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, out := postJSON(t, ts.URL+"/__dev/quality", `{"quality":"3g"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "medium", out["quality"])
	assert.EqualValues(t, 2, out["concurrency"])

	resp, out = postJSON(t, ts.URL+"/__dev/quality", `{"quality":"carrier-pigeon"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, out["ok"])
}

func TestStreamPushesSnapshots(t *testing.T) {
	_, ts, engine := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/__dev/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var first StateView
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, string(session.StatusIdle), first.Status)

	require.True(t, engine.Start())
	for {
		var next StateView
		require.NoError(t, conn.ReadJSON(&next))
		if next.Status == string(session.StatusPlaying) {
			assert.Equal(t, "c1", next.ChallengeID)
			assert.NotEmpty(t, next.RunID)
			return
		}
	}
}

func TestCloseEndsStreams(t *testing.T) {
	srv, ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/__dev/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var first StateView
	require.NoError(t, conn.ReadJSON(&first))

	require.NoError(t, srv.Close(context.Background()))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
			return
		}
	}
}

func TestStartBindsListener(t *testing.T) {
	cache := prefetch.NewManager(hydrate.NewLocal())
	engine := session.NewEngine(cache, nil)
	defer cache.Close()
	defer engine.Close()

	srv := NewServer("127.0.0.1:0", engine, cache, nil, nil)
	addr, err := srv.Start()
	require.NoError(t, err)
	defer srv.Close(context.Background())

	resp, err := http.Get("http://" + addr + "/__dev/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post("http://"+addr+"/__dev/action", "application/json", strings.NewReader(`{"action":"start"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

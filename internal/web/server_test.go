package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/logging"
	"github.com/zheng/tgraph/internal/stats"
	"github.com/zheng/tgraph/internal/storage"
)

const (
	tokenA = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	tokenB = "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	tokenC = "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
	pool1  = "0x1111111111111111111111111111111111111111"
	pool2  = "0x2222222222222222222222222222222222222222"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	line := func(i int, a, b, pool, poolType, fn string) string {
		return fmt.Sprintf("[%d] [%s]-[%s] %s %s %s() => (7, 8)", i, a, b, pool, poolType, fn)
	}
	result := graph.NewBuilder(graph.WithLogger(logging.Discard())).BuildLines([]string{
		line(0, tokenA, tokenB, pool1, "UniswapV2", "getReserves"),
		line(1, tokenB, tokenC, pool2, "UniswapV3", "slot0"),
	})
	_, err = db.Persist(context.Background(), result, "trace.txt", time.Now())
	require.NoError(t, err)

	s := NewServer(db, 0, logging.Discard())
	handler, err := s.Handler()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHandleGraph(t *testing.T) {
	_, ts := newTestServer(t)

	var data GraphData
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/graph", &data))
	assert.Len(t, data.Nodes, 5)
	assert.Len(t, data.Edges, 4)
	assert.Equal(t, tokenA, data.Edges[0].From)
	assert.Equal(t, pool1, data.Edges[0].To)
	assert.Equal(t, "getReserves", data.Edges[0].Function)
	assert.Equal(t, "7, 8", data.Edges[0].Result)
}

func TestHandleNodes(t *testing.T) {
	_, ts := newTestServer(t)

	var pools []NodeData
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/nodes?kind=pool", &pools))
	require.Len(t, pools, 2)
	assert.Equal(t, "UniswapV2", pools[0].PoolType)
	assert.Equal(t, "UniswapV2", pools[0].Group)

	var all []NodeData
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/nodes", &all))
	assert.Len(t, all, 5)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/nodes?kind=wallet", nil))
}

func TestHandleNode(t *testing.T) {
	_, ts := newTestServer(t)

	var data struct {
		Node      NodeData   `json:"node"`
		Neighbors []NodeData `json:"neighbors"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/node/"+tokenB, &data))
	assert.Equal(t, "token", data.Node.Kind)
	assert.Equal(t, "0xBBBB…BBBB", data.Node.Label)
	assert.Len(t, data.Neighbors, 2)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/node/0x9999", nil))
}

func TestHandleSearch(t *testing.T) {
	_, ts := newTestServer(t)

	var found []NodeData
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/search?q=UniswapV3", &found))
	require.Len(t, found, 1)
	assert.Equal(t, pool2, found[0].ID)

	var empty []NodeData
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/search", &empty))
	assert.Empty(t, empty)
}

func TestHandleStats(t *testing.T) {
	_, ts := newTestServer(t)

	var data StatsData
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/stats", &data))
	assert.EqualValues(t, 5, data.NodeCount)
	assert.EqualValues(t, 4, data.EdgeCount)
	assert.Equal(t, map[string]int{"UniswapV2": 1, "UniswapV3": 1}, data.Protocols)
	assert.Equal(t, 2, data.Records)
	require.NotNil(t, data.LatestRun)
	assert.Equal(t, "trace.txt", data.LatestRun.Source)
}

func TestHandleCounters(t *testing.T) {
	_, ts := newTestServer(t)

	var entries []stats.Entry
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/counters/function", &entries))
	assert.Equal(t, []stats.Entry{{Key: "getReserves", Count: 1}, {Key: "slot0", Count: 1}}, entries)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/counters/gas", nil))
}

func TestHandleNeighbors(t *testing.T) {
	_, ts := newTestServer(t)

	var data NeighborData
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/neighbors/"+tokenA+"?depth=2", &data))
	assert.Equal(t, tokenA, data.Target.ID)
	require.Len(t, data.Pools, 1)
	require.Len(t, data.Tokens, 2)
	assert.Equal(t, tokenC, data.Tokens[1].ID)
	assert.Equal(t, 2, data.Tokens[1].Depth)
	require.Len(t, data.Tree, 1)
	assert.Equal(t, pool1, data.Tree[0].ID)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/neighbors/0x9999", nil))
}

func TestStaticAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	// Hit an API route so the request counter has a sample
	getJSON(t, ts.URL+"/api/stats", nil)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tgraph_web_requests_total{code="200",route="stats"}`)
}

func TestNotifyPushesRefresh(t *testing.T) {
	s, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	s.Notify("run-42")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, Event{Type: "refresh", RunID: "run-42"}, ev)
}

func TestBroadcastDropsClientPastWriteDeadline(t *testing.T) {
	s, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	// A deadline already in the past fails the write the way a stalled
	// client eventually does
	s.hub.mu.Lock()
	s.hub.writeWait = -time.Second
	s.hub.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.Notify("run-stalled")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a client")
	}
	assert.Equal(t, 0, s.hub.Count())
}

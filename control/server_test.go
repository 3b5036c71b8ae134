package control

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowruntime/flowruntime/component"
	"github.com/flowruntime/flowruntime/components"
	"github.com/flowruntime/flowruntime/graph"
	"github.com/flowruntime/flowruntime/metric"
	"github.com/flowruntime/flowruntime/runtime"
)

func newTestServer(t *testing.T) *Server {
	reg := component.NewRegistry()
	require.NoError(t, components.RegisterReference(reg))
	require.NoError(t, components.RegisterOpenAI(reg))

	g := graph.New()
	sched := runtime.New(g, nil)
	metricsRegistry := metric.NewRegistry()
	engine := metric.NewEngine(g, sched, metricsRegistry, 10*time.Millisecond)

	return NewServer(Deps{
		Registry:  reg,
		Graph:     g,
		Scheduler: sched,
		Engine:    engine,
		Metrics:   metricsRegistry,
	})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = strings.NewReader(string(data))
	} else {
		reqBody = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturnsOK(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
}

func TestHealthzListsCreatedNode(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/graph/nodes", map[string]any{"id": "gen", "type": "gen-sequence"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Nodes, 1)
	assert.Equal(t, "gen", body.Nodes[0].ID)
}

func TestCreateNodeResourceConflictReturns400(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/graph/nodes", map[string]any{
		"id": "cam1", "type": "video-sink", "init": map[string]any{"device": "display-0"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/graph/nodes", map[string]any{
		"id": "cam2", "type": "video-sink", "init": map[string]any{"device": "display-0"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "InvalidArgs", errBody["error"])
}

func TestListComponentsIncludesPortsAndSchema(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/component", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []componentInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	byName := map[string]componentInfo{}
	for _, c := range out {
		byName[c.Name] = c
	}
	gen, ok := byName["gen-sequence"]
	require.True(t, ok)
	require.Len(t, gen.Outputs, 1)
	assert.Equal(t, "out", gen.Outputs[0].Name)
}

func TestCreateNodeThenStartThenDoubleStartReturns409(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/graph/nodes", map[string]any{
		"type": "gen-sequence",
		"init": map[string]any{"count": 1},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var node nodeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &node))
	assert.Equal(t, "created", node.Status)

	rec = doJSON(t, srv, http.MethodPost, "/graph/start", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/graph/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "AlreadyRunning", errBody["error"])

	rec = doJSON(t, srv, http.MethodPost, "/graph/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateEdgeTypeMismatchReturns400(t *testing.T) {
	srv := newTestServer(t)

	recA := doJSON(t, srv, http.MethodPost, "/graph/nodes", map[string]any{"id": "gen", "type": "gen-sequence"})
	require.Equal(t, http.StatusCreated, recA.Code)
	recB := doJSON(t, srv, http.MethodPost, "/graph/nodes", map[string]any{"id": "synth", "type": "speech-synthesize"})
	require.Equal(t, http.StatusCreated, recB.Code)

	rec := doJSON(t, srv, http.MethodPost, "/graph/edges", map[string]any{
		"source_node": "gen", "source_slot": "out", "target_node": "synth", "target_slot": "text",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "TypeMismatch", errBody["error"])
}

func TestCreateEdgeCycleRejected(t *testing.T) {
	srv := newTestServer(t)

	for _, id := range []string{"a", "b"} {
		rec := doJSON(t, srv, http.MethodPost, "/graph/nodes", map[string]any{"id": id, "type": "double"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, srv, http.MethodPost, "/graph/edges", map[string]any{
		"source_node": "a", "source_slot": "out", "target_node": "b", "target_slot": "in",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/graph/edges", map[string]any{
		"source_node": "b", "source_slot": "out", "target_node": "a", "target_slot": "in",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "CycleDetected", errBody["error"])
}

func TestDeleteNodeNotFoundReturns404(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/graph/nodes/missing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsSSEStreamsSnapshots(t *testing.T) {
	srv := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	req, err := http.NewRequest(http.MethodGet, httpSrv.URL+"/metrics", nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	foundEvent := false
	for i := 0; i < 20; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.HasPrefix(line, "event: metrics") {
			foundEvent = true
			break
		}
	}
	assert.True(t, foundEvent, "expected at least one metrics SSE event")
}

func TestVideoWebSocketDeliversEncodedFrame(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/graph/nodes", map[string]any{"id": "cam", "type": "video-sink"})
	require.Equal(t, http.StatusCreated, rec.Code)

	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/video/ws/cam"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	node, err := srv.graph.Node("cam")
	require.NoError(t, err)
	stepper, ok := component.AsStepper(node.Instance)
	require.True(t, ok)

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	require.NoError(t, stepper.Step(context.Background(), "in", img))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	require.GreaterOrEqual(t, len(data), 2)
	assert.Equal(t, byte(0xFF), data[0])
	assert.Equal(t, byte(0xD8), data[1])
}

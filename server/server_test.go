package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live_artifact_editor/devserver"
	"live_artifact_editor/generator"
	"live_artifact_editor/patcher"
	"live_artifact_editor/pipeline"
	"live_artifact_editor/runlog"
)

const artifact = "src/GameZone.js"

type blockingGen struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGen) Generate(context.Context, string) (string, error) {
	g.started <- struct{}{}
	<-g.release
	return "const GameZone = () => null;", nil
}

type failingGen struct{}

func (failingGen) Generate(context.Context, string) (string, error) {
	return "", errors.New("model unavailable")
}

// stuckShutdown fails Shutdown while err is set.
type stuckShutdown struct {
	*devserver.MemoryStore
	err error
}

func (s *stuckShutdown) Shutdown(context.Context) error { return s.err }

type fixture struct {
	store   *devserver.MemoryStore
	events  *runlog.EventLog
	handler http.Handler
	// ws, when set, is what Connect hands out instead of store.
	ws devserver.Workspace
	// connectGate, when set, holds Connect until it is closed.
	connectGate chan struct{}
	connects    atomic.Int32
}

func newFixture(t *testing.T, gen pipeline.Generator) *fixture {
	t.Helper()
	f := &fixture{
		store:  devserver.NewMemoryStore(map[string]string{artifact: "old", "src/App.js": "app"}),
		events: runlog.NewEventLog(t.TempDir()),
	}
	if gen == nil {
		agent, err := generator.NewAgent(generator.MockLLM{}, generator.DefaultConstraints())
		require.NoError(t, err)
		gen = agent
	}
	reg := prometheus.NewRegistry()
	srv, err := New(Options{
		Connect: func(context.Context) (devserver.Workspace, error) {
			f.connects.Add(1)
			if f.connectGate != nil {
				<-f.connectGate
			}
			if f.ws != nil {
				return f.ws, nil
			}
			return f.store, nil
		},
		Pipeline: pipeline.Config{
			Path:        artifact,
			Constraints: generator.DefaultConstraints(),
			Generator:   gen,
			Patcher:     patcher.Replace{},
			Metrics:     pipeline.NewMetrics(reg),
		},
		Events:   f.events,
		Registry: reg,
	})
	require.NoError(t, err)
	f.handler = srv.Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestIndexAndDocs(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["endpoints"], "POST /generate")

	rec, _ = f.do(t, http.MethodGet, "/docs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Live artifact editor</h1>")

	rec, _ = f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequiresConnection(t *testing.T) {
	f := newFixture(t, nil)

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/artifact", ""},
		{http.MethodPost, "/generate", `{"idea":"snake"}`},
		{http.MethodPost, "/artifact/update", `{"game_name":"Snake"}`},
		{http.MethodGet, "/files", ""},
		{http.MethodPost, "/disconnect", ""},
	} {
		rec, body := f.do(t, tc.method, tc.target, tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.target)
		assert.Equal(t, false, body["success"], tc.target)
	}
	assert.Zero(t, f.store.WriteCount())
}

func TestConnectAndStatus(t *testing.T) {
	f := newFixture(t, nil)

	_, body := f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, false, body["connected"])

	rec, body := f.do(t, http.MethodPost, "/connect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "local", body["repo_id"])

	_, body = f.do(t, http.MethodPost, "/connect", "")
	assert.Equal(t, "already connected", body["message"])
	assert.Equal(t, int32(1), f.connects.Load())

	_, body = f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, true, body["connected"])

	rec, _ = f.do(t, http.MethodPost, "/disconnect", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	_, body = f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, false, body["connected"])
}

func TestArtifactRoutes(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/connect", "")

	_, body := f.do(t, http.MethodGet, "/artifact", "")
	assert.Equal(t, "old", body["content"])

	rec, _ := f.do(t, http.MethodPost, "/artifact/write", `{"content":"new"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = f.do(t, http.MethodGet, "/artifact", "")
	assert.Equal(t, "new", body["content"])

	rec, _ = f.do(t, http.MethodPost, "/artifact/write", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/artifact/update", `{"game_name":"Tetris"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = f.do(t, http.MethodGet, "/artifact", "")
	assert.Contains(t, body["content"], "<h2>Tetris</h2>")

	rec, _ = f.do(t, http.MethodPost, "/artifact/update", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFilesExecCommit(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/connect", "")

	_, body := f.do(t, http.MethodGet, "/files?dir=src", "")
	assert.Equal(t, []any{"App.js", "GameZone.js"}, body["files"])

	rec, _ := f.do(t, http.MethodGet, "/files?dir=missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/exec", `{"command":"npm test"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"npm test"}, f.store.Commands)

	rec, _ = f.do(t, http.MethodPost, "/commit", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerate_WritesAndRecords(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/connect", "")

	rec, body := f.do(t, http.MethodPost, "/generate", `{"idea":"snake"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	content, _ := body["content"].(string)
	assert.True(t, strings.HasPrefix(content, generator.CanonicalImport))
	assert.Contains(t, content, "<h2>snake</h2>")
	assert.NotContains(t, content, "```")

	got, err := f.store.ReadFile(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, body = f.do(t, http.MethodGet, "/debug", "")
	run, _ := body["run"].(map[string]any)
	assert.Equal(t, "snake", run["idea"])
	assert.Equal(t, "old", run["before_text"])
	assert.Equal(t, content, run["written_text"])

	_, body = f.do(t, http.MethodGet, "/logs?n=1", "")
	lines, _ := body["lines"].([]any)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "event=done")

	rec, _ = f.do(t, http.MethodGet, "/logs?n=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), `live_editor_pipeline_runs_total{result="ok"} 1`)
}

func TestGenerate_FailureMapsTo502(t *testing.T) {
	f := newFixture(t, failingGen{})
	f.do(t, http.MethodPost, "/connect", "")

	rec, body := f.do(t, http.MethodPost, "/generate", `{"idea":"snake"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "GenerationFailed", body["reason"])
	assert.Zero(t, f.store.WriteCount())

	rec, _ = f.do(t, http.MethodPost, "/generate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerate_ConcurrentRunIsRejected(t *testing.T) {
	gen := &blockingGen{started: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, gen)
	f.do(t, http.MethodPost, "/connect", "")

	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"idea":"snake"}`)))
		done <- rec.Code
	}()

	select {
	case <-gen.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	rec, body := f.do(t, http.MethodPost, "/generate", `{"idea":"pong"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Busy", body["reason"])

	close(gen.release)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, 1, f.store.WriteCount())
}

func TestDebug_EmptyIs404(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(t, http.MethodGet, "/debug", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnect_ConcurrentCallsProvisionOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.connectGate = make(chan struct{})

	var wg sync.WaitGroup
	codes := make([]int, 3)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/connect", nil))
			codes[i] = rec.Code
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(f.connectGate)
	wg.Wait()

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusOK}, codes)
	assert.Equal(t, int32(1), f.connects.Load())
}

func TestDisconnect_FailedShutdownKeepsConnection(t *testing.T) {
	f := newFixture(t, nil)
	ws := &stuckShutdown{MemoryStore: f.store, err: errors.New("shutdown timed out")}
	f.ws = ws
	f.do(t, http.MethodPost, "/connect", "")

	rec, _ := f.do(t, http.MethodPost, "/disconnect", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	_, body := f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, true, body["connected"])

	ws.err = nil
	rec, _ = f.do(t, http.MethodPost, "/disconnect", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	_, body = f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, false, body["connected"])
}

func TestArtifactWrite_RejectedWhileRunInFlight(t *testing.T) {
	gen := &blockingGen{started: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, gen)
	f.do(t, http.MethodPost, "/connect", "")

	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"idea":"snake"}`)))
		done <- rec.Code
	}()

	select {
	case <-gen.started:
	case <-time.After(2 * time.Second):
		t.Fatal("run never started")
	}

	rec, body := f.do(t, http.MethodPost, "/artifact/write", `{"content":"USER EDIT"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Busy", body["reason"])
	rec, _ = f.do(t, http.MethodPost, "/artifact/update", `{"game_name":"Tetris"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(gen.release)
	require.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, 1, f.store.WriteCount())

	// the gate is free again once the run is over
	rec, _ = f.do(t, http.MethodPost, "/artifact/write", `{"content":"USER EDIT"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	got, err := f.store.ReadFile(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, "USER EDIT", got)
}

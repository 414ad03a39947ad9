package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"live_artifact_editor/devserver"
	"live_artifact_editor/generator"
	"live_artifact_editor/pipeline"
	"live_artifact_editor/runlog"
)

const (
	generateTimeout = 5 * time.Minute
	ioTimeout       = 60 * time.Second
)

var errNotConnected = errors.New("not connected to a dev server; POST /connect first")

// ConnectFunc provisions (or reuses) a dev server workspace.
type ConnectFunc func(ctx context.Context) (devserver.Workspace, error)

// Options wires a Server. Pipeline is a template: its Store is replaced by
// the connected workspace for every run.
type Options struct {
	Connect  ConnectFunc
	Pipeline pipeline.Config
	Events   *runlog.EventLog
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

type Server struct {
	connect  ConnectFunc
	tmpl     pipeline.Config
	events   *runlog.EventLog
	registry *prometheus.Registry
	logger   *zap.Logger
	conn     *connection
	// connecting collapses concurrent /connect calls into one provisioning.
	connecting singleflight.Group
	now        func() time.Time
}

// connection holds the current workspace, if any.
type connection struct {
	mu          sync.Mutex
	ws          devserver.Workspace
	connectedAt time.Time
}

func (c *connection) set(ws devserver.Workspace, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws = ws
	c.connectedAt = at
}

func (c *connection) get() (devserver.Workspace, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws, c.connectedAt, c.ws != nil
}

func (c *connection) take() (devserver.Workspace, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws, at := c.ws, c.connectedAt
	c.ws = nil
	return ws, at, ws != nil
}

func New(opts Options) (*Server, error) {
	if opts.Connect == nil {
		return nil, errors.New("connect func required")
	}
	if opts.Pipeline.Path == "" {
		return nil, errors.New("artifact path required")
	}
	if opts.Pipeline.Generator == nil || opts.Pipeline.Patcher == nil {
		return nil, errors.New("generator and patcher required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	tmpl := opts.Pipeline
	if tmpl.Debug == nil {
		tmpl.Debug = pipeline.NewDebug()
	}
	if tmpl.Gate == nil {
		tmpl.Gate = pipeline.NewGate()
	}
	if tmpl.Events == nil {
		tmpl.Events = opts.Events
	}
	if tmpl.Logger == nil {
		tmpl.Logger = opts.Logger
	}
	return &Server{
		connect:  opts.Connect,
		tmpl:     tmpl,
		events:   opts.Events,
		registry: opts.Registry,
		logger:   opts.Logger,
		conn:     &connection{},
		now:      time.Now,
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /docs", s.handleDocs)
	mux.HandleFunc("POST /connect", s.handleConnect)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /disconnect", s.handleDisconnect)
	mux.HandleFunc("GET /artifact", s.handleArtifactRead)
	mux.HandleFunc("POST /artifact/write", s.handleArtifactWrite)
	mux.HandleFunc("POST /artifact/update", s.handleArtifactUpdate)
	mux.HandleFunc("GET /files", s.handleFiles)
	mux.HandleFunc("POST /exec", s.handleExec)
	mux.HandleFunc("POST /commit", s.handleCommit)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("GET /debug", s.handleDebug)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return logMiddleware(s.logger, mux)
}

// workspace returns the connected workspace or writes a 400.
func (s *Server) workspace(w http.ResponseWriter) (devserver.Workspace, bool) {
	ws, _, ok := s.conn.get()
	if !ok {
		writeError(w, http.StatusBadRequest, errNotConnected)
		return nil, false
	}
	return ws, true
}

func (s *Server) controller(ws devserver.Workspace) (*pipeline.Controller, error) {
	cfg := s.tmpl
	cfg.Store = ws
	return pipeline.New(cfg)
}

// --- Handlers ---

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "live artifact editor",
		"endpoints": map[string]string{
			"GET /docs":             "API documentation",
			"POST /connect":         "create the repository and start its dev server",
			"GET /status":           "connection status and URLs",
			"POST /disconnect":      "shut the dev server down",
			"GET /artifact":         "read the artifact",
			"POST /artifact/write":  "overwrite the artifact with {content}",
			"POST /artifact/update": "write a title card for {game_name}",
			"GET /files":            "list a directory (?dir=)",
			"POST /exec":            "run {command} on the dev server",
			"POST /commit":          "commit and push with {message}",
			"POST /generate":        "generate and patch the artifact from {idea}",
			"GET /logs":             "tail the event log (?n=)",
			"GET /debug":            "latest pipeline run",
			"GET /metrics":          "prometheus metrics",
		},
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if ws, at, ok := s.conn.get(); ok {
		writeJSON(w, http.StatusOK, connectResp(ws.Info(), at, "already connected"))
		return
	}
	_, err, _ := s.connecting.Do("connect", func() (any, error) {
		if _, _, ok := s.conn.get(); ok {
			return nil, nil
		}
		ws, err := s.connect(r.Context())
		if err != nil {
			return nil, err
		}
		s.conn.set(ws, s.now())
		return nil, nil
	})
	if err != nil {
		s.logger.Error("connect failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	ws, at, ok := s.conn.get()
	if !ok {
		writeError(w, http.StatusConflict, errors.New("disconnected while connecting"))
		return
	}
	writeJSON(w, http.StatusOK, connectResp(ws.Info(), at, "connected"))
}

func connectResp(info devserver.Info, at time.Time, msg string) map[string]any {
	return map[string]any{
		"success":      true,
		"message":      msg,
		"repo_id":      info.RepoID,
		"app_url":      info.EphemeralURL,
		"vscode_url":   info.CodeServerURL,
		"mcp_url":      info.MCPURL,
		"connected_at": at,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	ws, at, ok := s.conn.get()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "connected": false})
		return
	}
	resp := connectResp(ws.Info(), at, "connected")
	resp["connected"] = true
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ws, at, ok := s.conn.take()
	if !ok {
		writeError(w, http.StatusBadRequest, errNotConnected)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), ioTimeout)
	defer cancel()
	if err := ws.Shutdown(ctx); err != nil {
		// keep the workspace so the shutdown can be retried
		s.conn.set(ws, at)
		s.logger.Warn("dev server shutdown failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "disconnected"})
}

func (s *Server) handleArtifactRead(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), ioTimeout)
	defer cancel()
	content, err := ws.ReadFile(ctx, s.tmpl.Path)
	if err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": s.tmpl.Path, "content": content})
}

type writeReq struct {
	Content string `json:"content"`
}

func (s *Server) handleArtifactWrite(w http.ResponseWriter, r *http.Request) {
	var req writeReq
	if !decode(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, errors.New("content is required"))
		return
	}
	s.writeArtifact(w, r, req.Content, "artifact written")
}

type updateReq struct {
	GameName string `json:"game_name"`
}

func (s *Server) handleArtifactUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateReq
	if !decode(w, r, &req) {
		return
	}
	if req.GameName == "" {
		writeError(w, http.StatusBadRequest, errors.New("game_name is required"))
		return
	}
	content := generator.TitleCard(s.tmpl.Constraints, req.GameName, s.now())
	s.writeArtifact(w, r, content, "artifact updated for "+req.GameName)
}

// writeArtifact holds the same gate as pipeline runs, so a direct write can
// never land between a run's read and its write.
func (s *Server) writeArtifact(w http.ResponseWriter, r *http.Request, content, msg string) {
	ws, ok := s.workspace(w)
	if !ok {
		return
	}
	release, ok := s.tmpl.Gate.TryAcquire(s.tmpl.Path)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"error":   pipeline.ErrBusy.Error(),
			"reason":  pipeline.ReasonBusy,
		})
		return
	}
	defer release()
	ctx, cancel := context.WithTimeout(r.Context(), ioTimeout)
	defer cancel()
	if err := ws.WriteFile(ctx, s.tmpl.Path, content); err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
		"path":    s.tmpl.Path,
		"bytes":   len(content),
	})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w)
	if !ok {
		return
	}
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = "."
	}
	ctx, cancel := context.WithTimeout(r.Context(), ioTimeout)
	defer cancel()
	files, err := ws.ListFiles(ctx, dir)
	if err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "dir": dir, "files": files})
}

type execReq struct {
	Command    string `json:"command"`
	Background bool   `json:"background"`
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execReq
	if !decode(w, r, &req) {
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, errors.New("command is required"))
		return
	}
	ws, ok := s.workspace(w)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()
	res, err := ws.Exec(ctx, req.Command, req.Background)
	if err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stdout": res.Stdout, "stderr": res.Stderr})
}

type commitReq struct {
	Message string `json:"message"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitReq
	if !decode(w, r, &req) {
		return
	}
	if req.Message == "" {
		req.Message = "Update " + s.tmpl.Path
	}
	ws, ok := s.workspace(w)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), ioTimeout)
	defer cancel()
	if err := ws.CommitAndPush(ctx, req.Message); err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "committed"})
}

type generateReq struct {
	Idea string `json:"idea"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateReq
	if !decode(w, r, &req) {
		return
	}
	if req.Idea == "" {
		writeError(w, http.StatusBadRequest, errors.New("idea is required"))
		return
	}
	ws, ok := s.workspace(w)
	if !ok {
		return
	}
	ctrl, err := s.controller(ws)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()
	out, err := ctrl.Run(ctx, req.Idea)
	if err != nil {
		resp := map[string]any{
			"success": false,
			"error":   err.Error(),
			"reason":  pipeline.ReasonOf(err),
		}
		writeJSON(w, runStatus(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "artifact regenerated for " + req.Idea,
		"run_id":     out.Run.ID,
		"bytes":      out.Bytes,
		"elapsed_ms": out.Elapsed.Milliseconds(),
		"content":    out.Run.Written,
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "lines": []string{}})
		return
	}
	n := 50
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("n must be a positive integer"))
			return
		}
		n = v
	}
	lines, err := s.events.Tail(n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "lines": lines})
}

func (s *Server) handleDebug(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.tmpl.Debug.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no pipeline run yet"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "run": run})
}

// runStatus maps pipeline failures onto HTTP status codes.
func runStatus(err error) int {
	switch pipeline.ReasonOf(err) {
	case pipeline.ReasonBusy:
		return http.StatusConflict
	case pipeline.ReasonGenerationFailed, pipeline.ReasonPatchFailed,
		pipeline.ReasonReadFailed, pipeline.ReasonWriteFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func storeStatus(err error) int {
	if errors.Is(err, devserver.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// Package pipeline regenerates the artifact: generate, sanitize, read the
// current file, patch, sanitize again, write, and record the run.
package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live_artifact_editor/devserver"
	"live_artifact_editor/generator"
	"live_artifact_editor/patcher"
	"live_artifact_editor/runlog"
)

// Generator produces raw text for an idea. *generator.Agent implements it.
type Generator interface {
	Generate(ctx context.Context, idea string) (string, error)
}

// Config wires a Controller. Debug and Gate are owned by the caller so they
// outlive any single Controller.
type Config struct {
	Path        string
	Constraints generator.Constraints
	Generator   Generator
	Patcher     patcher.Patcher
	Store       devserver.FileStore
	Debug       *Debug
	Gate        *Gate
	// Events and Contents are optional; append failures never fail a run.
	Events   *runlog.EventLog
	Contents *runlog.ContentLog
	Metrics  *Metrics
	Logger   *zap.Logger
	Now      func() time.Time
}

// Run is the record of one pipeline invocation. On success Written equals
// Patch.Sanitized; on failure Written is empty.
type Run struct {
	ID         string                      `json:"id"`
	Idea       string                      `json:"idea"`
	Path       string                      `json:"path"`
	StartedAt  time.Time                   `json:"timestamp"`
	State      State                       `json:"state"`
	Generation *generator.GenerationResult `json:"generation,omitempty"`
	Before     string                      `json:"before_text,omitempty"`
	Patch      *patcher.PatchResult        `json:"patch,omitempty"`
	Written    string                      `json:"written_text,omitempty"`
	Failure    FailureReason               `json:"failure,omitempty"`
	Error      string                      `json:"error,omitempty"`
	Elapsed    time.Duration               `json:"elapsed_ns"`
}

// Outcome is what a successful Run reports.
type Outcome struct {
	Run     Run
	Elapsed time.Duration
	Bytes   int
}

type Controller struct {
	cfg       Config
	sanitizer *generator.Sanitizer
	logger    *zap.Logger
}

func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Path == "":
		return nil, errors.New("pipeline: artifact path is required")
	case cfg.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	case cfg.Patcher == nil:
		return nil, errors.New("pipeline: patcher is required")
	case cfg.Store == nil:
		return nil, errors.New("pipeline: file store is required")
	}
	if cfg.Debug == nil {
		cfg.Debug = NewDebug()
	}
	if cfg.Gate == nil {
		cfg.Gate = NewGate()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger.With(zap.String("path", cfg.Path))
	return &Controller{
		cfg:       cfg,
		sanitizer: generator.NewSanitizer(cfg.Constraints, logger),
		logger:    logger,
	}, nil
}

// Debug returns the slot this controller records into.
func (c *Controller) Debug() *Debug { return c.cfg.Debug }

// Run executes every step once, in order, with no retries. The artifact is
// written at most once and only after generation and patching succeeded.
func (c *Controller) Run(ctx context.Context, idea string) (*Outcome, error) {
	run := Run{
		ID:        uuid.NewString(),
		Idea:      idea,
		Path:      c.cfg.Path,
		StartedAt: c.cfg.Now(),
		State:     StateIdle,
	}

	release, ok := c.cfg.Gate.TryAcquire(c.cfg.Path)
	if !ok {
		c.event(run, "rejected", map[string]string{"reason": string(ReasonBusy)})
		c.cfg.Metrics.rejected()
		return nil, &RunError{Reason: ReasonBusy, State: StateIdle}
	}
	defer release()

	log := c.logger.With(zap.String("run_id", run.ID))
	log.Info("pipeline run started", zap.String("idea", idea))
	c.event(run, "start", map[string]string{"idea": idea})

	run.State = StateGenerating
	raw, err := c.cfg.Generator.Generate(ctx, idea)
	if err != nil {
		return c.fail(log, &run, ReasonGenerationFailed, err)
	}

	run.State = StateSanitizingGeneration
	sanitized, fixes := c.sanitizer.Sanitize(raw)
	run.Generation = &generator.GenerationResult{Raw: raw, Sanitized: sanitized, Fixes: fixes}
	c.event(run, "generated", map[string]string{"bytes": strconv.Itoa(len(sanitized)), "fixes": joinFixes(fixes)})

	run.State = StateReadingCurrent
	before, err := c.cfg.Store.ReadFile(ctx, c.cfg.Path)
	if err != nil {
		return c.fail(log, &run, ReasonReadFailed, err)
	}
	run.Before = before

	run.State = StatePatching
	req := patcher.PatchRequest{
		Before:      before,
		Instruction: patcher.Instruction(c.cfg.Path, idea, c.component()),
		Candidate:   sanitized,
	}
	patchedRaw, err := c.cfg.Patcher.Apply(ctx, req)
	if err != nil {
		return c.fail(log, &run, ReasonPatchFailed, err)
	}

	run.State = StateSanitizingPatch
	patched, patchFixes := c.sanitizer.Sanitize(patchedRaw)
	run.Patch = &patcher.PatchResult{Raw: patchedRaw, Sanitized: patched, Fixes: patchFixes}

	run.State = StateWriting
	if err := c.cfg.Store.WriteFile(ctx, c.cfg.Path, patched); err != nil {
		return c.fail(log, &run, ReasonWriteFailed, err)
	}
	run.Written = patched

	run.State = StateDone
	run.Elapsed = c.cfg.Now().Sub(run.StartedAt)
	c.cfg.Debug.record(run)
	c.cfg.Metrics.observe("ok", run.Elapsed)
	c.event(run, "done", map[string]string{
		"bytes":      strconv.Itoa(len(run.Written)),
		"elapsed_ms": strconv.FormatInt(run.Elapsed.Milliseconds(), 10),
	})
	if c.cfg.Contents != nil {
		if err := c.cfg.Contents.Append(run.ID, idea, before, run.Written); err != nil {
			log.Warn("content log append failed", zap.Error(err))
		}
	}
	log.Info("pipeline run done",
		zap.Int("bytes", len(run.Written)),
		zap.Duration("elapsed", run.Elapsed))

	return &Outcome{Run: run, Elapsed: run.Elapsed, Bytes: len(run.Written)}, nil
}

func (c *Controller) component() string {
	if c.cfg.Constraints.Component != "" {
		return c.cfg.Constraints.Component
	}
	return generator.DefaultConstraints().Component
}

func (c *Controller) fail(log *zap.Logger, run *Run, reason FailureReason, err error) (*Outcome, error) {
	failedIn := run.State
	run.State = StateFailed
	run.Failure = reason
	run.Error = err.Error()
	run.Elapsed = c.cfg.Now().Sub(run.StartedAt)
	c.cfg.Debug.record(*run)
	c.cfg.Metrics.observe(string(reason), run.Elapsed)
	c.event(*run, "failed", map[string]string{
		"reason": string(reason),
		"step":   string(failedIn),
		"error":  err.Error(),
	})
	log.Error("pipeline run failed",
		zap.String("reason", string(reason)),
		zap.String("step", string(failedIn)),
		zap.Error(err))
	return nil, &RunError{Reason: reason, State: failedIn, Err: err}
}

func (c *Controller) event(run Run, event string, fields map[string]string) {
	if c.cfg.Events == nil {
		return
	}
	err := c.cfg.Events.Append(runlog.Entry{RunID: run.ID, Event: event, Fields: fields})
	if err != nil {
		c.logger.Warn("event log append failed", zap.String("event", event), zap.Error(err))
	}
}

func joinFixes(f generator.Fixes) string {
	if !f.Any() {
		return "none"
	}
	return strings.Join(f.List(), ",")
}

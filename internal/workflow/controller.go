// Package workflow owns the studio state machine:
// idle -> preparing -> generating -> polling -> completed | error.
package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contactcopilof/APPLI-VIDEO/internal/client"
	"github.com/contactcopilof/APPLI-VIDEO/internal/logger"
	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
)

var (
	ErrAssetsMissing = errors.New("both a subject image and a logo are required")
	ErrBusy          = errors.New("a generation is already in progress")
	ErrKeyRequired   = errors.New("an API key must be selected before generating")
	ErrStaleRun      = errors.New("run is no longer pending")
	ErrNotClaimed    = errors.New("no worker picked up the generation")
)

// Error codes surfaced for failures that are not a *client.GenerationError.
const (
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeDispatchFailed   = "DISPATCH_FAILED"
	CodeNotClaimed       = "NOT_CLAIMED"
)

// Generator produces a video from two reference assets and a prompt.
type Generator interface {
	Generate(ctx context.Context, subject, logo *model.EncodedAsset, prompt string, opts ...client.GenerateOption) (*model.GenerationOutcome, error)
}

// KeyGate exposes the cached key presence.
type KeyGate interface {
	Present() bool
	Reset()
}

// PreviewReleaser frees preview handles of replaced or cleared assets.
type PreviewReleaser interface {
	Release(id string) bool
}

// Snapshot is a copy of the workflow state at one point in time.
type Snapshot struct {
	RunID     string
	Status    model.WorkflowStatus
	Step      string
	Prompt    string
	VideoURL  string
	Error     string
	ErrorCode string
	Assets    map[model.AssetRole]*model.EncodedAsset
	UpdatedAt time.Time
}

// Listener is called on every state change, with the controller lock held.
// It must not call back into the Controller.
type Listener func(Snapshot)

// Run is a generation accepted by Begin and waiting for Execute.
type Run struct {
	ID      string
	Subject *model.EncodedAsset
	Logo    *model.EncodedAsset
	Prompt  string
}

// Controller is the single owner of the workflow state.
type Controller struct {
	gen      Generator
	gate     KeyGate
	previews PreviewReleaser

	mu        sync.Mutex
	status    model.WorkflowStatus
	step      string
	assets    map[model.AssetRole]*model.EncodedAsset
	prompt    string
	runID     string
	pending   *Run
	outcome   *model.GenerationOutcome
	errMsg    string
	errCode   string
	updatedAt time.Time
	listeners []Listener
}

func New(gen Generator, gate KeyGate, previews PreviewReleaser, defaultPrompt string) *Controller {
	return &Controller{
		gen:       gen,
		gate:      gate,
		previews:  previews,
		status:    model.StatusIdle,
		assets:    make(map[model.AssetRole]*model.EncodedAsset),
		prompt:    defaultPrompt,
		updatedAt: time.Now(),
	}
}

// OnChange registers a listener.
func (c *Controller) OnChange(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// SetAsset stores a in its slot and releases the preview of the asset it
// replaces. A nil asset clears the slot.
func (c *Controller) SetAsset(role model.AssetRole, a *model.EncodedAsset) {
	if a == nil {
		c.ClearAsset(role)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.assets[role]; ok && prev.PreviewID != a.PreviewID {
		c.release(prev)
	}
	c.assets[role] = a
}

// ClearAsset empties a slot and releases its preview.
func (c *Controller) ClearAsset(role model.AssetRole) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.assets[role]; ok {
		c.release(prev)
		delete(c.assets, role)
	}
}

func (c *Controller) release(a *model.EncodedAsset) {
	if c.previews != nil && a.PreviewID != "" {
		c.previews.Release(a.PreviewID)
	}
}

// Asset returns the asset in a slot, nil if empty.
func (c *Controller) Asset(role model.AssetRole) *model.EncodedAsset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assets[role]
}

func (c *Controller) SetPrompt(p string) {
	c.mu.Lock()
	c.prompt = p
	c.mu.Unlock()
}

func (c *Controller) Prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// Begin accepts a generation request. It is refused without any submission
// while a run is in flight, when a slot is empty or when no key is present.
// On success the state has moved through preparing to generating, the
// previous result and error are cleared, and the returned Run must be handed
// to Execute.
func (c *Controller) Begin(prompt string) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.IsBusy() {
		return nil, ErrBusy
	}
	subject, logo := c.assets[model.AssetRoleSubject], c.assets[model.AssetRoleLogo]
	if subject == nil || logo == nil {
		return nil, ErrAssetsMissing
	}
	if c.gate != nil && !c.gate.Present() {
		return nil, ErrKeyRequired
	}
	if prompt == "" {
		prompt = c.prompt
	} else {
		c.prompt = prompt
	}

	run := &Run{ID: uuid.New().String(), Subject: subject, Logo: logo, Prompt: prompt}
	c.runID = run.ID
	c.pending = run

	c.setStatus(model.StatusPreparing, "Preparing reference images")
	c.outcome = nil
	c.errMsg, c.errCode = "", ""
	c.setStatus(model.StatusGenerating, "Submitting to Veo")

	logger.Named("workflow").Info().Str("run_id", run.ID).Msg("generation accepted")
	return run, nil
}

// Execute runs the generation accepted by Begin. It returns ErrStaleRun
// without touching state when runID is not the pending run.
func (c *Controller) Execute(ctx context.Context, runID string) error {
	c.mu.Lock()
	run := c.pending
	if run == nil || run.ID != runID {
		c.mu.Unlock()
		return ErrStaleRun
	}
	c.pending = nil
	c.mu.Unlock()

	log := logger.Named("workflow").With().Str("run_id", runID).Logger()

	outcome, err := c.gen.Generate(ctx, run.Subject, run.Logo, run.Prompt, client.WithProgress(func(p client.Progress) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.runID != runID {
			return
		}
		switch {
		case p.Stage == client.StageSubmitted && c.status == model.StatusGenerating:
			c.setStatus(model.StatusPolling, "Rendering video")
		case p.Stage == client.StagePolled:
			c.updatedAt = time.Now()
		}
	}))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID != runID {
		return ErrStaleRun
	}

	if err != nil {
		c.errMsg, c.errCode = err.Error(), errorCode(err)
		if client.IsAuthFailure(err) && c.gate != nil {
			c.gate.Reset()
		}
		c.setStatus(model.StatusError, "")
		log.Error().Err(err).Str("code", c.errCode).Msg("generation failed")
		return err
	}

	c.outcome = outcome
	c.setStatus(model.StatusCompleted, "")
	log.Info().Msg("generation completed")
	return nil
}

// Generate runs Begin and Execute in the caller's goroutine.
func (c *Controller) Generate(ctx context.Context, prompt string) (*model.GenerationOutcome, error) {
	run, err := c.Begin(prompt)
	if err != nil {
		return nil, err
	}
	if err := c.Execute(ctx, run.ID); err != nil {
		return nil, err
	}
	return c.Outcome(), nil
}

// Abort fails a pending run that could not be dispatched or was never
// claimed. It reports whether the run was still pending.
func (c *Controller) Abort(runID string, cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil || c.pending.ID != runID {
		return false
	}
	c.pending = nil
	c.errMsg, c.errCode = cause.Error(), CodeDispatchFailed
	if errors.Is(cause, ErrNotClaimed) {
		c.errCode = CodeNotClaimed
	}
	c.setStatus(model.StatusError, "")
	return true
}

func (c *Controller) Outcome() *model.GenerationOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		RunID:     c.runID,
		Status:    c.status,
		Step:      c.step,
		Prompt:    c.prompt,
		Error:     c.errMsg,
		ErrorCode: c.errCode,
		Assets:    make(map[model.AssetRole]*model.EncodedAsset, len(c.assets)),
		UpdatedAt: c.updatedAt,
	}
	if c.outcome != nil {
		s.VideoURL = c.outcome.VideoURL
	}
	for role, a := range c.assets {
		s.Assets[role] = a
	}
	return s
}

// setStatus must be called with mu held.
func (c *Controller) setStatus(status model.WorkflowStatus, step string) {
	c.status, c.step = status, step
	c.updatedAt = time.Now()
	snap := c.snapshot()
	for _, l := range c.listeners {
		l(snap)
	}
}

func errorCode(err error) string {
	var ge *client.GenerationError
	if errors.As(err, &ge) {
		return ge.Code()
	}
	return CodeGenerationFailed
}

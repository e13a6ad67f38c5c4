package service

import (
	"context"
	"sync"
	"time"

	"github.com/contactcopilof/APPLI-VIDEO/internal/logger"
	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
	"github.com/contactcopilof/APPLI-VIDEO/internal/workflow"
)

const storeTimeout = 3 * time.Second

// Broadcaster pushes run updates to subscribed clients.
type Broadcaster interface {
	BroadcastProgress(jobID string, status model.WorkflowStatus, step string)
	BroadcastComplete(jobID string, result interface{})
	BroadcastError(jobID string, code, message string)
}

// KeyPresence reports the cached key state.
type KeyPresence interface {
	Present() bool
}

// StudioService exposes the workflow to the HTTP layer and mirrors every
// state change into the job store and the websocket hub.
//
// Store writes happen on a background goroutine; state changes only record
// the latest version of each job and never wait for Redis.
type StudioService struct {
	ctrl         *workflow.Controller
	store        *JobStore
	hub          Broadcaster
	dispatcher   Dispatcher
	keys         KeyPresence
	claimTimeout time.Duration

	mu         sync.Mutex
	current    *model.Job
	claimTimer *time.Timer

	saveMu  sync.Mutex
	unsaved map[string]*model.Job
	saveCh  chan struct{}

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// StudioOption configures a StudioService.
type StudioOption func(*StudioService)

// WithClaimTimeout fails a dispatched run that no worker starts within d.
func WithClaimTimeout(d time.Duration) StudioOption {
	return func(s *StudioService) { s.claimTimeout = d }
}

func NewStudioService(ctrl *workflow.Controller, store *JobStore, hub Broadcaster, dispatcher Dispatcher, keys KeyPresence, opts ...StudioOption) *StudioService {
	s := &StudioService{
		ctrl:       ctrl,
		store:      store,
		hub:        hub,
		dispatcher: dispatcher,
		keys:       keys,
		unsaved:    make(map[string]*model.Job),
		saveCh:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	ctrl.OnChange(s.onChange)
	go s.persist()
	return s
}

// Close writes the pending job records and stops the background writer.
func (s *StudioService) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.claimTimer != nil {
			s.claimTimer.Stop()
		}
		s.mu.Unlock()
		close(s.done)
	})
	<-s.stopped
}

// StartGeneration accepts a run and dispatches it. An empty prompt uses the
// stored one.
func (s *StudioService) StartGeneration(ctx context.Context, prompt string) (*model.GenerateResponse, error) {
	run, err := s.ctrl.Begin(prompt)
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, run.ID); err != nil {
		logger.Named("studio").Error().Err(err).Str("run_id", run.ID).Msg("dispatch failed")
		s.ctrl.Abort(run.ID, err)
		return nil, err
	}
	s.watchClaim(run.ID)

	state := s.ctrl.State()
	return &model.GenerateResponse{
		JobID:     run.ID,
		Status:    state.Status,
		CreatedAt: s.createdAt(run.ID),
	}, nil
}

// Status returns the live studio view.
func (s *StudioService) Status() *model.StatusResponse {
	state := s.ctrl.State()
	resp := &model.StatusResponse{
		JobID:     state.RunID,
		Status:    state.Status,
		Prompt:    state.Prompt,
		VideoURL:  state.VideoURL,
		Error:     state.Error,
		ErrorCode: state.ErrorCode,
		Assets:    state.Assets,
	}
	if s.keys != nil {
		resp.HasKey = s.keys.Present()
	}
	return resp
}

// JobStatus returns the record of a run. The current run is served from
// memory, older runs from the store.
func (s *StudioService) JobStatus(ctx context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	if s.current != nil && s.current.ID == jobID {
		cp := *s.current
		s.mu.Unlock()
		return &cp, nil
	}
	s.mu.Unlock()

	if s.store == nil {
		return nil, ErrJobNotFound
	}
	return s.store.Get(ctx, jobID)
}

func (s *StudioService) SetAsset(role model.AssetRole, a *model.EncodedAsset) {
	s.ctrl.SetAsset(role, a)
}

func (s *StudioService) ClearAsset(role model.AssetRole) {
	s.ctrl.ClearAsset(role)
}

func (s *StudioService) SetPrompt(p string) {
	s.ctrl.SetPrompt(p)
}

func (s *StudioService) Prompt() string {
	return s.ctrl.Prompt()
}

// watchClaim aborts runID if it is still pending once the claim timeout passes.
func (s *StudioService) watchClaim(runID string) {
	if s.claimTimeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimTimer != nil {
		s.claimTimer.Stop()
	}
	s.claimTimer = time.AfterFunc(s.claimTimeout, func() {
		if s.ctrl.Abort(runID, workflow.ErrNotClaimed) {
			logger.Named("studio").Warn().Str("run_id", runID).Dur("timeout", s.claimTimeout).Msg("generation was never claimed by a worker")
		}
	})
}

func (s *StudioService) createdAt(runID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.ID == runID {
		return s.current.CreatedAt
	}
	return time.Now()
}

func (s *StudioService) onChange(snap workflow.Snapshot) {
	if snap.RunID == "" {
		return
	}

	job := s.record(snap)
	s.queueSave(job)

	if s.hub == nil {
		return
	}
	switch snap.Status {
	case model.StatusCompleted:
		s.hub.BroadcastComplete(snap.RunID, model.GenerationOutcome{VideoURL: snap.VideoURL})
	case model.StatusError:
		s.hub.BroadcastError(snap.RunID, snap.ErrorCode, snap.Error)
	default:
		s.hub.BroadcastProgress(snap.RunID, snap.Status, snap.Step)
	}
}

// record applies a snapshot to the in-memory record of the current run.
func (s *StudioService) record(snap workflow.Snapshot) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := snap.UpdatedAt
	if s.current == nil || s.current.ID != snap.RunID {
		s.current = &model.Job{
			ID:        snap.RunID,
			Prompt:    snap.Prompt,
			CreatedAt: now,
		}
	}
	job := s.current
	job.Status = snap.Status
	job.CurrentStep = snap.Step

	switch snap.Status {
	case model.StatusGenerating:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
	case model.StatusCompleted:
		url := snap.VideoURL
		job.VideoURL = &url
		job.CompletedAt = &now
	case model.StatusError:
		msg := snap.Error
		job.Error = &msg
		job.ErrorCode = snap.ErrorCode
		job.CompletedAt = &now
	}

	cp := *job
	return &cp
}

func (s *StudioService) queueSave(job *model.Job) {
	if s.store == nil {
		return
	}
	s.saveMu.Lock()
	s.unsaved[job.ID] = job
	s.saveMu.Unlock()

	select {
	case s.saveCh <- struct{}{}:
	default:
	}
}

func (s *StudioService) persist() {
	defer close(s.stopped)
	for {
		select {
		case <-s.saveCh:
			s.flush()
		case <-s.done:
			s.flush()
			return
		}
	}
}

func (s *StudioService) flush() {
	s.saveMu.Lock()
	batch := s.unsaved
	s.unsaved = make(map[string]*model.Job)
	s.saveMu.Unlock()

	for _, job := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := s.store.Save(ctx, job); err != nil {
			logger.Named("studio").Warn().Err(err).Str("run_id", job.ID).Msg("failed to save job")
		}
		cancel()
	}
}

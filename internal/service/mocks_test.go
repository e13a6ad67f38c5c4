package service

import (
	"context"
	"sync"

	"github.com/contactcopilof/APPLI-VIDEO/internal/client"
	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
)

type fakeGenerator struct {
	outcome *model.GenerationOutcome
	err     error
}

func (f *fakeGenerator) Generate(ctx context.Context, subject, logo *model.EncodedAsset, prompt string, opts ...client.GenerateOption) (*model.GenerationOutcome, error) {
	client.ProgressHook(opts...)(client.Progress{Stage: client.StageSubmitted})
	return f.outcome, f.err
}

type fakeGate struct{ present bool }

func (g *fakeGate) Present() bool { return g.present }
func (g *fakeGate) Reset()        { g.present = false }

type fakeDispatcher struct {
	err  error
	runs []string
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, runID string) error {
	d.runs = append(d.runs, runID)
	return d.err
}

type broadcast struct {
	kind   string
	jobID  string
	status model.WorkflowStatus
	code   string
	result interface{}
}

type fakeHub struct {
	mu   sync.Mutex
	sent []broadcast
}

func (h *fakeHub) BroadcastProgress(jobID string, status model.WorkflowStatus, step string) {
	h.mu.Lock()
	h.sent = append(h.sent, broadcast{kind: model.WSMessageTypeProgress, jobID: jobID, status: status})
	h.mu.Unlock()
}

func (h *fakeHub) BroadcastComplete(jobID string, result interface{}) {
	h.mu.Lock()
	h.sent = append(h.sent, broadcast{kind: model.WSMessageTypeComplete, jobID: jobID, result: result})
	h.mu.Unlock()
}

func (h *fakeHub) BroadcastError(jobID string, code, message string) {
	h.mu.Lock()
	h.sent = append(h.sent, broadcast{kind: model.WSMessageTypeError, jobID: jobID, code: code})
	h.mu.Unlock()
}

package workflow

import (
	"context"
	"sync"

	"github.com/contactcopilof/APPLI-VIDEO/internal/client"
	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
)

// fakeGenerator reports submission, optionally blocks, then returns a fixed result.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string

	outcome *model.GenerationOutcome
	err     error
	// release, when set, blocks Generate after submission until closed
	release   chan struct{}
	submitted chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, subject, logo *model.EncodedAsset, prompt string, opts ...client.GenerateOption) (*model.GenerationOutcome, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	client.ProgressHook(opts...)(client.Progress{Stage: client.StageSubmitted, Operation: "operations/fake"})
	if f.submitted != nil {
		close(f.submitted)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.outcome, f.err
}

func (f *fakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGate struct {
	mu      sync.Mutex
	present bool
	resets  int
}

func (g *fakeGate) Present() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.present
}

func (g *fakeGate) Reset() {
	g.mu.Lock()
	g.present = false
	g.resets++
	g.mu.Unlock()
}

type fakePreviews struct {
	mu       sync.Mutex
	released []string
}

func (p *fakePreviews) Release(id string) bool {
	p.mu.Lock()
	p.released = append(p.released, id)
	p.mu.Unlock()
	return true
}

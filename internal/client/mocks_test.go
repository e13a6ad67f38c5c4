package client

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/contactcopilof/APPLI-VIDEO/internal/config"
	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
)

type staticKey string

func (k staticKey) APIKey() string { return string(k) }

// fakeBackend replays a fixed sequence of refresh results.
type fakeBackend struct {
	mu sync.Mutex

	submitErr error
	submitOp  *genai.GenerateVideosOperation
	refreshes []refreshResult

	submits   int
	refreshN  int
	gotModel  string
	gotPrompt string
	gotConfig *genai.GenerateVideosConfig
}

type refreshResult struct {
	op  *genai.GenerateVideosOperation
	err error
}

func (f *fakeBackend) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.gotModel, f.gotPrompt, f.gotConfig = model, prompt, cfg
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.submitOp != nil {
		return f.submitOp, nil
	}
	return pending(), nil
}

func (f *fakeBackend) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, cfg *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.refreshN
	f.refreshN++
	if i >= len(f.refreshes) {
		return pending(), nil
	}
	return f.refreshes[i].op, f.refreshes[i].err
}

func pending() *genai.GenerateVideosOperation {
	return &genai.GenerateVideosOperation{Name: "operations/test"}
}

func doneWithURI(uri string) *genai.GenerateVideosOperation {
	return &genai.GenerateVideosOperation{
		Name: "operations/test",
		Done: true,
		Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: uri}}},
		},
	}
}

// recordingWait counts waits without sleeping.
type recordingWait struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingWait) wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func testConfigs() (*config.GeminiConfig, *config.GenerationConfig) {
	return &config.GeminiConfig{Model: "veo-3.1-generate-preview"},
		&config.GenerationConfig{
			Resolution:     "720p",
			AspectRatio:    "16:9",
			NumberOfVideos: 1,
			PollInterval:   5 * time.Second,
			MaxWait:        time.Minute,
		}
}

func newTestClient(b *fakeBackend, w *recordingWait, key string) *VeoClient {
	gemini, gen := testConfigs()
	factory := func(ctx context.Context, apiKey string) (VideoBackend, error) { return b, nil }
	return NewVeoClient(gemini, gen, staticKey(key), factory, WithWaitFunc(w.wait))
}

func testAsset(name, mime string, raw []byte) *model.EncodedAsset {
	return &model.EncodedAsset{
		Name:     name,
		Data:     base64.StdEncoding.EncodeToString(raw),
		MimeType: mime,
		Size:     int64(len(raw)),
	}
}

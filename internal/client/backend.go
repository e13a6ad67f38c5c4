package client

import (
	"context"
	"net/http"

	"google.golang.org/genai"
)

// VideoBackend is the slice of the GenAI SDK used for video generation.
type VideoBackend interface {
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// BackendFactory builds a backend bound to one API key.
type BackendFactory func(ctx context.Context, apiKey string) (VideoBackend, error)

type genaiBackend struct {
	client *genai.Client
}

// NewGenAIBackendFactory returns a factory creating Gemini API clients.
func NewGenAIBackendFactory(httpClient *http.Client) BackendFactory {
	return func(ctx context.Context, apiKey string) (VideoBackend, error) {
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
		return &genaiBackend{client: c}, nil
	}
}

func (b *genaiBackend) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return b.client.Models.GenerateVideos(ctx, model, prompt, image, config)
}

func (b *genaiBackend) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	return b.client.Operations.GetVideosOperation(ctx, op, config)
}

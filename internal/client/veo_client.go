package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/contactcopilof/APPLI-VIDEO/internal/asset"
	"github.com/contactcopilof/APPLI-VIDEO/internal/config"
	"github.com/contactcopilof/APPLI-VIDEO/internal/logger"
	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
)

// KeySource provides the active API key.
type KeySource interface {
	APIKey() string
}

// Stage of a running generation, reported through WithProgress.
type Stage string

const (
	StageSubmitted Stage = "submitted"
	StagePolled    Stage = "polled"
)

// Progress is reported after submission and after every refresh.
type Progress struct {
	Stage     Stage
	Operation string
	Attempt   int
}

type generateOptions struct {
	progress func(Progress)
}

// GenerateOption tunes a single Generate call.
type GenerateOption func(*generateOptions)

// WithProgress registers a callback invoked synchronously by Generate.
func WithProgress(fn func(Progress)) GenerateOption {
	return func(o *generateOptions) { o.progress = fn }
}

// ProgressHook resolves opts to a callback that is safe to call even when
// no hook was registered.
func ProgressHook(opts ...GenerateOption) func(Progress) {
	var o generateOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.progress == nil {
		return func(Progress) {}
	}
	return o.progress
}

// WaitFunc suspends for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// VeoClient submits reference-image video jobs to Veo and polls them.
type VeoClient struct {
	model          string
	resolution     string
	aspectRatio    string
	numberOfVideos int32
	pollInterval   time.Duration
	maxPolls       int

	keys    KeySource
	factory BackendFactory
	wait    WaitFunc

	mu       sync.Mutex
	backends map[string]VideoBackend
}

// Option configures a VeoClient.
type Option func(*VeoClient)

// WithWaitFunc replaces the timer used between refreshes.
func WithWaitFunc(fn WaitFunc) Option {
	return func(c *VeoClient) { c.wait = fn }
}

// NewVeoClient creates a client. Backends are created lazily per API key.
func NewVeoClient(gemini *config.GeminiConfig, gen *config.GenerationConfig, keys KeySource, factory BackendFactory, opts ...Option) *VeoClient {
	n := int32(gen.NumberOfVideos)
	if n < 1 {
		n = 1
	}
	c := &VeoClient{
		model:          gemini.Model,
		resolution:     gen.Resolution,
		aspectRatio:    gen.AspectRatio,
		numberOfVideos: n,
		pollInterval:   gen.PollInterval,
		maxPolls:       gen.MaxPolls(),
		keys:           keys,
		factory:        factory,
		wait:           sleepContext,
		backends:       make(map[string]VideoBackend),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConfigured checks if an API key is available
func (c *VeoClient) IsConfigured() bool {
	return c.keys != nil && c.keys.APIKey() != ""
}

// BuildConfig assembles the request configuration: two asset references,
// subject first and logo second.
func (c *VeoClient) BuildConfig(subject, logo *model.EncodedAsset) (*genai.GenerateVideosConfig, error) {
	refs := make([]*genai.VideoGenerationReferenceImage, 0, 2)
	for _, a := range []*model.EncodedAsset{subject, logo} {
		if a == nil {
			return nil, errors.New("both reference assets are required")
		}
		raw, err := asset.Decode(a)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.Name, err)
		}
		refs = append(refs, &genai.VideoGenerationReferenceImage{
			Image: &genai.Image{
				ImageBytes: raw,
				MIMEType:   a.MimeType,
			},
			ReferenceType: genai.VideoGenerationReferenceTypeAsset,
		})
	}

	return &genai.GenerateVideosConfig{
		NumberOfVideos:  c.numberOfVideos,
		Resolution:      c.resolution,
		AspectRatio:     c.aspectRatio,
		ReferenceImages: refs,
	}, nil
}

// Generate submits the job, waits the poll interval between refreshes until
// the job is done, and returns the credential-bearing video location. Every
// failure is a *GenerationError.
func (c *VeoClient) Generate(ctx context.Context, subject, logo *model.EncodedAsset, prompt string, opts ...GenerateOption) (*model.GenerationOutcome, error) {
	report := ProgressHook(opts...)
	log := logger.Named("veo")

	apiKey := ""
	if c.keys != nil {
		apiKey = c.keys.APIKey()
	}
	if apiKey == "" {
		return nil, &GenerationError{Kind: ErrSubmission, StatusCode: http.StatusUnauthorized, Err: errNoCredential}
	}

	cfg, err := c.BuildConfig(subject, logo)
	if err != nil {
		return nil, &GenerationError{Kind: ErrSubmission, Err: err}
	}

	backend, err := c.backend(ctx, apiKey)
	if err != nil {
		return nil, &GenerationError{Kind: ErrSubmission, Err: err}
	}

	log.Info().Str("model", c.model).Str("resolution", c.resolution).Str("aspect_ratio", c.aspectRatio).Msg("submitting video generation")
	op, err := backend.GenerateVideos(ctx, c.model, prompt, nil, cfg)
	if err != nil {
		log.Error().Err(err).Msg("video generation submit failed")
		if ctxErr := contextError(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newGenerationError(ErrSubmission, err)
	}
	if op == nil {
		return nil, &GenerationError{Kind: ErrSubmission, Err: errors.New("service returned no operation")}
	}
	report(Progress{Stage: StageSubmitted, Operation: op.Name})

	attempt := 0
	for !op.Done {
		if attempt >= c.maxPolls {
			log.Warn().Str("operation", op.Name).Int("attempt", attempt).Msg("video generation timed out")
			return nil, &GenerationError{
				Kind:      ErrTimeout,
				Operation: op.Name,
				Attempt:   attempt,
				Err:       fmt.Errorf("still running after %d refreshes", attempt),
			}
		}

		if err := c.wait(ctx, c.pollInterval); err != nil {
			log.Info().Str("operation", op.Name).Msg("video generation poll interrupted")
			return nil, withOperation(contextError(ctx), op.Name, attempt, err)
		}

		attempt++
		name := op.Name
		op, err = backend.GetVideosOperation(ctx, op, nil)
		if err != nil {
			log.Error().Err(err).Str("operation", name).Int("attempt", attempt).Msg("video generation poll failed")
			if ctxErr := contextError(ctx); ctxErr != nil {
				return nil, withOperation(ctxErr, name, attempt, err)
			}
			ge := newGenerationError(ErrPoll, err)
			ge.Operation, ge.Attempt = name, attempt
			return nil, ge
		}
		if op == nil {
			return nil, &GenerationError{Kind: ErrPoll, Operation: name, Attempt: attempt, Err: errors.New("service returned no operation")}
		}

		log.Debug().Str("operation", op.Name).Int("attempt", attempt).Bool("done", op.Done).Msg("video generation polled")
		report(Progress{Stage: StagePolled, Operation: op.Name, Attempt: attempt})
	}

	if len(op.Error) > 0 {
		ge := operationError(op, attempt)
		log.Error().Err(ge).Str("operation", op.Name).Msg("video generation failed")
		return nil, ge
	}

	uri, err := videoURI(op.Response)
	if err != nil {
		log.Error().Err(err).Str("operation", op.Name).Msg("video generation returned no output")
		return nil, &GenerationError{Kind: ErrEmptyResult, Operation: op.Name, Attempt: attempt, Err: err}
	}

	log.Info().Str("operation", op.Name).Int("polls", attempt).Msg("video generation completed")
	return &model.GenerationOutcome{VideoURL: AppendKey(uri, apiKey)}, nil
}

// AppendKey adds the credential to a result location. The service returns
// download URIs that already carry a query, so the key is appended with '&'.
func AppendKey(uri, apiKey string) string {
	return uri + "&key=" + url.QueryEscape(apiKey)
}

func videoURI(resp *genai.GenerateVideosResponse) (string, error) {
	if resp == nil {
		return "", errors.New("empty response")
	}
	for _, v := range resp.GeneratedVideos {
		if v != nil && v.Video != nil && v.Video.URI != "" {
			return v.Video.URI, nil
		}
	}
	if resp.RAIMediaFilteredCount > 0 {
		return "", fmt.Errorf("%d video(s) removed by safety filters: %s",
			resp.RAIMediaFilteredCount, strings.Join(resp.RAIMediaFilteredReasons, "; "))
	}
	return "", errors.New("no video location in response")
}

// contextError maps a finished context to ErrTimeout or ErrCanceled.
func contextError(ctx context.Context) *GenerationError {
	switch {
	case ctx.Err() == nil:
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &GenerationError{Kind: ErrTimeout, Err: ctx.Err()}
	default:
		return &GenerationError{Kind: ErrCanceled, Err: ctx.Err()}
	}
}

func withOperation(ge *GenerationError, name string, attempt int, cause error) *GenerationError {
	if ge == nil {
		ge = &GenerationError{Kind: ErrCanceled, Err: cause}
	}
	ge.Operation, ge.Attempt = name, attempt
	return ge
}

func (c *VeoClient) backend(ctx context.Context, apiKey string) (VideoBackend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.backends[apiKey]; ok {
		return b, nil
	}
	if c.factory == nil {
		return nil, errors.New("no video backend configured")
	}
	b, err := c.factory(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	// a new key replaces the old client
	c.backends = map[string]VideoBackend{apiKey: b}
	return b, nil
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/contactcopilof/APPLI-VIDEO/internal/asset"
	"github.com/contactcopilof/APPLI-VIDEO/internal/client"
	"github.com/contactcopilof/APPLI-VIDEO/internal/config"
	"github.com/contactcopilof/APPLI-VIDEO/internal/keygate"
	"github.com/contactcopilof/APPLI-VIDEO/internal/middleware"
	"github.com/contactcopilof/APPLI-VIDEO/internal/service"
	ws "github.com/contactcopilof/APPLI-VIDEO/internal/websocket"
	"github.com/contactcopilof/APPLI-VIDEO/internal/worker"
	"github.com/contactcopilof/APPLI-VIDEO/internal/workflow"
)

const (
	testMaxUpload = 64 * 1024
	testVideoURI  = "https://generativelanguage.googleapis.com/v1beta/files/abc:download?alt=media"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

// stubBackend completes every operation on the second refresh.
type stubBackend struct {
	mu        sync.Mutex
	submitErr error
	result    *genai.GenerateVideosOperation
	gate      chan struct{}
	submits   int
}

func (b *stubBackend) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits++
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	return &genai.GenerateVideosOperation{Name: "operations/stub"}, nil
}

func (b *stubBackend) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, cfg *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	b.mu.Lock()
	gate, result := b.gate, b.result
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if result != nil {
		return result, nil
	}
	return &genai.GenerateVideosOperation{
		Name: op.Name,
		Done: true,
		Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: testVideoURI}}},
		},
	}, nil
}

func (b *stubBackend) Submits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submits
}

// testApp holds the wired stack behind the router.
type testApp struct {
	app      *fiber.App
	mr       *miniredis.Miniredis
	backend  *stubBackend
	gate     *keygate.Gate
	host     *keygate.ConfigHost
	ctrl     *workflow.Controller
	previews *asset.Previews

	mu         sync.Mutex
	reloadKey  string
	reloadErr  error
	reloadCall int
}

type appOptions struct {
	apiKey        string
	generateLimit int
}

// setupApp builds the same router as cmd/server with generation running
// inline and Redis backed by miniredis.
func setupApp(t *testing.T, opts appOptions) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	ta := &testApp{mr: mr, backend: &stubBackend{}}

	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	ta.previews = asset.NewPreviews()
	encoder := asset.NewEncoder(ta.previews)

	ta.host = keygate.NewConfigHost(opts.apiKey, ta.reload)
	ta.gate = keygate.New(ta.host)
	ta.gate.HasKey(context.Background())

	gemini := &config.GeminiConfig{Model: "veo-3.1-generate-preview"}
	gen := &config.GenerationConfig{
		Resolution:     "720p",
		AspectRatio:    "16:9",
		NumberOfVideos: 1,
		PollInterval:   time.Second,
		MaxWait:        10 * time.Second,
	}
	factory := func(ctx context.Context, apiKey string) (client.VideoBackend, error) { return ta.backend, nil }
	noWait := func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	veo := client.NewVeoClient(gemini, gen, ta.host, factory, client.WithWaitFunc(noWait))

	ta.ctrl = workflow.New(veo, ta.gate, ta.previews, config.DefaultPrompt)
	store := service.NewJobStore(redisClient, time.Hour)

	baseCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	dispatcher := worker.NewInlineDispatcher(baseCtx, ta.ctrl, time.Minute)

	studio := service.NewStudioService(ta.ctrl, store, hub, dispatcher, ta.gate)
	t.Cleanup(studio.Close)

	validate := Validator()
	assetHandler := NewAssetHandler(studio, encoder, ta.previews, validate, testMaxUpload)
	keyHandler := NewKeyHandler(ta.gate)
	generateHandler := NewGenerateHandler(studio, validate)
	healthHandler := NewHealthHandler(ta.gate, redisClient)

	rateLimiter := middleware.NewRateLimiter(redisClient)
	generateLimit := opts.generateLimit
	if generateLimit == 0 {
		generateLimit = 10000
	}

	app := fiber.New()
	app.Get("/health", healthHandler.Check)
	app.Get("/previews/:id", assetHandler.Preview)

	api := app.Group("/api")
	assets := api.Group("/assets")
	assets.Post("/:role", rateLimiter.UploadLimit(10000), assetHandler.Upload)
	assets.Delete("/:role", assetHandler.Clear)

	api.Get("/key", keyHandler.Status)
	api.Post("/key/select", keyHandler.Select)

	api.Get("/prompt", generateHandler.GetPrompt)
	api.Put("/prompt", generateHandler.SetPrompt)

	api.Post("/generate", rateLimiter.GenerateLimit(generateLimit), generateHandler.Start)
	api.Get("/generate/status", generateHandler.Status)
	api.Get("/generate/status/:jobId", generateHandler.JobStatus)

	ta.app = app
	return ta
}

func (ta *testApp) reload() (string, error) {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	ta.reloadCall++
	return ta.reloadKey, ta.reloadErr
}

func (ta *testApp) setReload(key string, err error) {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	ta.reloadKey, ta.reloadErr = key, err
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// uploadFile posts a multipart "file" part for role.
func uploadFile(t *testing.T, app *fiber.App, role, filename, contentType string, data []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	partHeader.Set("Content-Type", contentType)
	part, err := writer.CreatePart(partHeader)
	require.NoError(t, err)
	_, _ = part.Write(data)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, "/api/assets/"+role, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// uploadBoth fills the subject and logo slots.
func uploadBoth(t *testing.T, app *fiber.App) {
	t.Helper()
	for _, role := range []string{"subject", "logo"} {
		resp := uploadFile(t, app, role, role+".png", "image/png", pngBytes)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &result), "body: %s", body)
	return result
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected error envelope, got %v", body)
	code, _ := errObj["code"].(string)
	return code
}

// waitForStatus polls the live status until it reaches want.
func waitForStatus(t *testing.T, app *fiber.App, want string) map[string]interface{} {
	t.Helper()
	var last map[string]interface{}
	require.Eventually(t, func() bool {
		resp, err := doRequest(app, http.MethodGet, "/api/generate/status", "", nil)
		if err != nil {
			return false
		}
		last = parseJSON(t, resp)
		return last["status"] == want
	}, 5*time.Second, 10*time.Millisecond, "status never reached %s", want)
	return last
}

var errReload = errors.New("key chooser closed")

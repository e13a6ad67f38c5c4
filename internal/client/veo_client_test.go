package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
)

var (
	subjectPNG = []byte("subject-bytes")
	logoPNG    = []byte("logo-bytes")
)

func assets() *subjectAndLogo {
	return &subjectAndLogo{
		subject: testAsset("leader.png", "image/png", subjectPNG),
		logo:    testAsset("logo.jpg", "image/jpeg", logoPNG),
	}
}

func TestGenerate_CompletesAfterNRefreshes(t *testing.T) {
	// Two incomplete refreshes, then a completed one
	b := &fakeBackend{refreshes: []refreshResult{
		{op: pending()},
		{op: pending()},
		{op: doneWithURI("https://video/abc")},
	}}
	w := &recordingWait{}
	c := newTestClient(b, w, "secret")
	a := assets()

	out, err := c.Generate(context.Background(), a.subject, a.logo, "test")
	require.NoError(t, err)

	assert.Equal(t, "https://video/abc&key=secret", out.VideoURL)
	assert.Equal(t, 1, b.submits)
	assert.Equal(t, 3, b.refreshN)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, w.waits)
	assert.Equal(t, "test", b.gotPrompt)
	assert.Equal(t, "veo-3.1-generate-preview", b.gotModel)
}

func TestGenerate_RequestShape(t *testing.T) {
	b := &fakeBackend{refreshes: []refreshResult{{op: doneWithURI("https://video/x")}}}
	c := newTestClient(b, &recordingWait{}, "k")
	a := assets()

	_, err := c.Generate(context.Background(), a.subject, a.logo, "prompt")
	require.NoError(t, err)

	cfg := b.gotConfig
	require.NotNil(t, cfg)
	assert.Equal(t, int32(1), cfg.NumberOfVideos)
	assert.Equal(t, "720p", cfg.Resolution)
	assert.Equal(t, "16:9", cfg.AspectRatio)
	require.Len(t, cfg.ReferenceImages, 2)

	first, second := cfg.ReferenceImages[0], cfg.ReferenceImages[1]
	assert.Equal(t, subjectPNG, first.Image.ImageBytes)
	assert.Equal(t, "image/png", first.Image.MIMEType)
	assert.Equal(t, logoPNG, second.Image.ImageBytes)
	assert.Equal(t, "image/jpeg", second.Image.MIMEType)
	for _, ref := range cfg.ReferenceImages {
		assert.Equal(t, genai.VideoGenerationReferenceTypeAsset, ref.ReferenceType)
	}
}

func TestGenerate_AlreadyDoneOnSubmit(t *testing.T) {
	b := &fakeBackend{submitOp: doneWithURI("https://video/now")}
	w := &recordingWait{}
	c := newTestClient(b, w, "k")
	a := assets()

	out, err := c.Generate(context.Background(), a.subject, a.logo, "p")
	require.NoError(t, err)
	assert.Equal(t, "https://video/now&key=k", out.VideoURL)
	assert.Zero(t, b.refreshN)
	assert.Empty(t, w.waits)
}

func TestGenerate_ReportsProgress(t *testing.T) {
	b := &fakeBackend{refreshes: []refreshResult{{op: pending()}, {op: doneWithURI("https://video/p")}}}
	c := newTestClient(b, &recordingWait{}, "k")
	a := assets()

	var got []Progress
	_, err := c.Generate(context.Background(), a.subject, a.logo, "p", WithProgress(func(p Progress) {
		got = append(got, p)
	}))
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, StageSubmitted, got[0].Stage)
	assert.Equal(t, Progress{Stage: StagePolled, Operation: "operations/test", Attempt: 1}, got[1])
	assert.Equal(t, 2, got[2].Attempt)
}

func TestGenerate_SubmissionError(t *testing.T) {
	b := &fakeBackend{submitErr: genai.APIError{Code: 403, Message: "The caller does not have permission", Status: "PERMISSION_DENIED"}}
	c := newTestClient(b, &recordingWait{}, "k")
	a := assets()

	out, err := c.Generate(context.Background(), a.subject, a.logo, "p")
	assert.Nil(t, out)
	require.ErrorIs(t, err, ErrSubmission)

	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, http.StatusForbidden, ge.StatusCode)
	assert.Equal(t, "PERMISSION_DENIED", ge.Status)
	assert.True(t, IsAuthFailure(err))
	assert.Equal(t, "SUBMISSION_FAILED", ge.Code())
	assert.Zero(t, b.refreshN)
}

func TestGenerate_SubmissionErrorWithoutStatus(t *testing.T) {
	b := &fakeBackend{submitErr: errors.New("connection reset")}
	c := newTestClient(b, &recordingWait{}, "k")
	a := assets()

	_, err := c.Generate(context.Background(), a.subject, a.logo, "p")
	require.ErrorIs(t, err, ErrSubmission)
	assert.False(t, IsAuthFailure(err))
}

func TestGenerate_NoCredential(t *testing.T) {
	b := &fakeBackend{}
	c := newTestClient(b, &recordingWait{}, "")
	a := assets()

	_, err := c.Generate(context.Background(), a.subject, a.logo, "p")
	require.ErrorIs(t, err, ErrSubmission)
	assert.True(t, IsAuthFailure(err))
	assert.Zero(t, b.submits)
}

func TestGenerate_MissingAsset(t *testing.T) {
	b := &fakeBackend{}
	c := newTestClient(b, &recordingWait{}, "k")
	a := assets()

	_, err := c.Generate(context.Background(), a.subject, nil, "p")
	require.ErrorIs(t, err, ErrSubmission)
	assert.Zero(t, b.submits)
}

func TestGenerate_PollError(t *testing.T) {
	b := &fakeBackend{refreshes: []refreshResult{
		{op: pending()},
		{err: genai.APIError{Code: 500, Message: "internal", Status: "INTERNAL"}},
	}}
	c := newTestClient(b, &recordingWait{}, "k")
	a := assets()

	_, err := c.Generate(context.Background(), a.subject, a.logo, "p")
	require.ErrorIs(t, err, ErrPoll)

	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 2, ge.Attempt)
	assert.Equal(t, "operations/test", ge.Operation)
	assert.False(t, ge.IsAuthFailure())
}

func TestGenerate_EmptyResult(t *testing.T) {
	cases := map[string]*genai.GenerateVideosOperation{
		"no response": {Name: "operations/test", Done: true},
		"no videos":   {Name: "operations/test", Done: true, Response: &genai.GenerateVideosResponse{}},
		"empty uri": {Name: "operations/test", Done: true, Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{}}},
		}},
		"filtered": {Name: "operations/test", Done: true, Response: &genai.GenerateVideosResponse{
			RAIMediaFilteredCount:   1,
			RAIMediaFilteredReasons: []string{"celebrity likeness"},
		}},
	}

	for name, final := range cases {
		t.Run(name, func(t *testing.T) {
			b := &fakeBackend{refreshes: []refreshResult{{op: final}}}
			c := newTestClient(b, &recordingWait{}, "k")
			a := assets()

			out, err := c.Generate(context.Background(), a.subject, a.logo, "p")
			assert.Nil(t, out)
			require.ErrorIs(t, err, ErrEmptyResult)
			assert.False(t, IsAuthFailure(err))
		})
	}
}

func TestGenerate_OperationError(t *testing.T) {
	final := &genai.GenerateVideosOperation{
		Name: "operations/test",
		Done: true,
		Error: map[string]any{
			"code":    float64(7),
			"message": "API key not valid",
			"status":  "PERMISSION_DENIED",
		},
	}
	b := &fakeBackend{refreshes: []refreshResult{{op: final}}}
	c := newTestClient(b, &recordingWait{}, "k")
	a := assets()

	_, err := c.Generate(context.Background(), a.subject, a.logo, "p")
	require.ErrorIs(t, err, ErrOperationFailed)
	assert.Contains(t, err.Error(), "API key not valid")
	assert.True(t, IsAuthFailure(err))
}

func TestGenerate_TimesOutAfterMaxPolls(t *testing.T) {
	b := &fakeBackend{} // never completes
	w := &recordingWait{}
	c := newTestClient(b, w, "k")
	a := assets()

	_, err := c.Generate(context.Background(), a.subject, a.logo, "p")
	require.ErrorIs(t, err, ErrTimeout)

	// one minute at five-second intervals
	assert.Equal(t, 12, b.refreshN)
	assert.Len(t, w.waits, 12)

	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "TIMEOUT", ge.Code())
}

func TestGenerate_Canceled(t *testing.T) {
	b := &fakeBackend{}
	gemini, gen := testConfigs()
	factory := func(context.Context, string) (VideoBackend, error) { return b, nil }

	ctx, cancel := context.WithCancel(context.Background())
	wait := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	c := NewVeoClient(gemini, gen, staticKey("k"), factory, WithWaitFunc(wait))
	a := assets()

	_, err := c.Generate(ctx, a.subject, a.logo, "p")
	require.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.refreshN)
}

func TestGenerate_DeadlineIsTimeout(t *testing.T) {
	b := &fakeBackend{}
	c := newTestClient(b, &recordingWait{}, "k")
	a := assets()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := c.Generate(ctx, a.subject, a.logo, "p")
	require.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_BackendPerKey(t *testing.T) {
	b := &fakeBackend{submitOp: doneWithURI("https://video/k")}
	gemini, gen := testConfigs()
	created := 0
	factory := func(context.Context, string) (VideoBackend, error) {
		created++
		return b, nil
	}
	c := NewVeoClient(gemini, gen, staticKey("k"), factory)
	a := assets()

	for i := 0; i < 3; i++ {
		_, err := c.Generate(context.Background(), a.subject, a.logo, "p")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, created)
	assert.True(t, c.IsConfigured())
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestAppendKey(t *testing.T) {
	assert.Equal(t, "https://v/files/1:download?alt=media&key=a%2Fb", AppendKey("https://v/files/1:download?alt=media", "a/b"))
}

type subjectAndLogo struct {
	subject, logo *model.EncodedAsset
}

func TestProgressHook(t *testing.T) {
	assert.NotPanics(t, func() { ProgressHook()(Progress{Stage: StageSubmitted}) })

	var got Stage
	ProgressHook(WithProgress(func(p Progress) { got = p.Stage }))(Progress{Stage: StagePolled})
	assert.Equal(t, StagePolled, got)
}

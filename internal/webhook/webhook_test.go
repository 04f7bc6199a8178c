package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"recletter/internal/config"
	"recletter/internal/errors"
	"recletter/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = errors.NewLoggerTo(os.Stderr, slog.LevelWarn)

func TestBuildPayload(t *testing.T) {
	ctx := types.ProgramContext{
		ApplicantName:      "Maria",
		TargetProgramName:  "Fellows",
		SubmissionDeadline: "2026-01-15",
		OpportunityContext: "Study abroad",
		CoreQualities:      []string{"Grit", "Care"},
		SpecificAnecdotes:  []string{"Ran a marathon"},
		CustomQuestions: []types.Question{
			{ID: "a", Text: "First?"},
			{ID: "b", Text: "Second?"},
		},
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p := BuildPayload(ctx, now)
	assert.Equal(t, []string{
		"2025-06-01T12:00:00Z",
		"Maria",
		"Fellows",
		"Study abroad",
		"2026-01-15",
		"Grit, Care, ",
		"Ran a marathon |  | ",
		"First? | Second?",
	}, p.Values)
}

func TestBuildPayloadUsesDerivedQuestions(t *testing.T) {
	ctx := types.ProgramContext{ApplicantName: "Jo"}
	p := BuildPayload(ctx, time.Now())
	require.Len(t, p.Values, 8)
	assert.Contains(t, p.Values[7], "How long and in what capacity have you known the applicant?")
}

func TestDispatchPostsPlainTextJSON(t *testing.T) {
	var gotType string
	var gotBody Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(config.WebhookConfig{URL: srv.URL, Timeout: time.Second}, testLogger)
	err := d.Dispatch(context.Background(), types.DefaultProgramContext())
	require.NoError(t, err)

	assert.Equal(t, ContentType, gotType)
	require.Len(t, gotBody.Values, 8)
	assert.Equal(t, "Jeffrey Clarke", gotBody.Values[1])
}

func TestDispatchIgnoresResponseStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(config.WebhookConfig{URL: srv.URL}, testLogger)
	assert.NoError(t, d.Dispatch(context.Background(), types.DefaultProgramContext()))
}

func TestDispatchContextURLWins(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	d := NewDispatcher(config.WebhookConfig{URL: "http://127.0.0.1:1/unused"}, testLogger)
	ctx := types.DefaultProgramContext()
	ctx.WebhookURL = srv.URL
	require.NoError(t, d.Dispatch(context.Background(), ctx))
	assert.Equal(t, int32(1), hits.Load())
}

func TestDispatchMissingURL(t *testing.T) {
	d := NewDispatcher(config.WebhookConfig{}, testLogger)
	err := d.Dispatch(context.Background(), types.DefaultProgramContext())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingWebhookURL))
}

func TestDispatchTransportError(t *testing.T) {
	d := NewDispatcher(config.WebhookConfig{URL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond}, testLogger)
	err := d.Dispatch(context.Background(), types.DefaultProgramContext())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeWebhookDispatch))
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"recletter/internal/ai"
	"recletter/internal/config"
	recErrors "recletter/internal/errors"
	"recletter/internal/session"
	"recletter/internal/store"
	"recletter/internal/types"
	"recletter/internal/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassphrase = "open-sesame"

var testLogger = recErrors.NewLoggerTo(os.Stderr, slog.LevelWarn)

type stubGateway struct {
	letter string
	err    error
}

func (g stubGateway) TailorQuestions(context.Context, types.TailorQuestionsInput) (types.TailorQuestionsOutput, *ai.TokenUsage, error) {
	if g.err != nil {
		return types.TailorQuestionsOutput{}, nil, g.err
	}
	return types.TailorQuestionsOutput{Questions: []types.Question{
		{ID: "q1", Text: "How does Jeffrey lead?", FocusQuality: "Leadership"},
	}}, nil, nil
}

func (g stubGateway) GenerateLetter(context.Context, types.GenerateLetterInput) (types.GenerateLetterOutput, *ai.TokenUsage, error) {
	if g.err != nil {
		return types.GenerateLetterOutput{}, nil, g.err
	}
	return types.GenerateLetterOutput{Letter: g.letter}, nil, nil
}

func (g stubGateway) AnalyzeAudio(_ context.Context, in types.AnalyzeAudioInput) (types.AnalyzeAudioOutput, *ai.TokenUsage, error) {
	if g.err != nil {
		return types.AnalyzeAudioOutput{}, nil, g.err
	}
	return types.AnalyzeAudioOutput{Transcripts: map[string]string{in.Questions[0].ID: "He organized the whole cohort."}}, nil, nil
}

type testOptions struct {
	gateway    ai.Gateway
	apiKeys    []string
	rateLimit  *config.RateLimitConfig
	webhookURL string
}

func newTestServer(t *testing.T, opts testOptions) *Server {
	t.Helper()
	appCfg := &config.Config{
		App: config.AppConfig{
			DefaultFormat:    "json",
			SupportedFormats: []string{"json", "text"},
			MaxAudioSize:     1024,
		},
		Store:   config.StoreConfig{Backend: "memory", SessionID: store.DefaultSessionID},
		Webhook: config.WebhookConfig{URL: opts.webhookURL},
		Admin:   config.AdminConfig{Passphrase: testPassphrase},
	}
	appCfg.Server = config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           "0",
		APIKeys:        opts.apiKeys,
		MaxRequestSize: 1 << 20,
	}
	if opts.rateLimit != nil {
		appCfg.Server.RateLimit = *opts.rateLimit
	}
	srv := NewServer(appCfg, "test", testLogger)
	srv.out = io.Discard

	if srv.RateLimiter != nil {
		t.Cleanup(srv.RateLimiter.Close)
	}
	gw := opts.gateway
	if gw == nil {
		gw = ai.Unavailable{Err: recErrors.NewConfigError(recErrors.ErrCodeMissingAPIKey, "no key", nil)}
		srv.AIError = recErrors.NewConfigError(recErrors.ErrCodeMissingAPIKey, "no key", nil)
	}
	srv.Sessions = session.NewRegistry(session.Deps{
		Store:           store.NewMemoryStore(testLogger),
		Gateway:         gw,
		Syncer:          webhook.NewDispatcher(appCfg.Webhook, testLogger),
		Logger:          testLogger,
		AdminPassphrase: testPassphrase,
	})
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var testRecommender = types.RecommenderInfo{
	Name:         "Maria Lopez",
	Title:        "Director",
	Company:      "Acme",
	Relationship: "Direct Supervisor or Manager",
}

func TestHealthHandler_DegradedWithoutAI(t *testing.T) {
	srv := newTestServer(t, testOptions{})

	rec := do(t, srv, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "recletter", body["service"])
	models, ok := body["ai_models"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, models["available"])
}

func TestStatsHandler(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	do(t, srv, http.MethodGet, "/context", nil, map[string]string{HeaderSessionID: "alpha"})

	rec := do(t, srv, http.MethodGet, "/stats", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	sessions, ok := body["sessions"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, sessions["active"])
	assert.Equal(t, []any{"alpha"}, sessions["ids"])
}

func TestContextHandlers(t *testing.T) {
	srv := newTestServer(t, testOptions{})

	rec := do(t, srv, http.MethodGet, "/context", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	current := decodeBody[types.ProgramContext](t, rec)
	assert.Equal(t, "Jeffrey Clarke", current.ApplicantName)

	next := current
	next.ApplicantName = "Ana Ruiz"

	tests := []struct {
		name       string
		passphrase string
		wantStatus int
		wantName   string
	}{
		{name: "missing passphrase", passphrase: "", wantStatus: http.StatusForbidden, wantName: "Jeffrey Clarke"},
		{name: "wrong passphrase", passphrase: "nope", wantStatus: http.StatusForbidden, wantName: "Jeffrey Clarke"},
		{name: "correct passphrase", passphrase: testPassphrase, wantStatus: http.StatusOK, wantName: "Ana Ruiz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPut, "/context", next, map[string]string{HeaderAdminPassphrase: tt.passphrase})
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			got := decodeBody[types.ProgramContext](t, do(t, srv, http.MethodGet, "/context", nil, nil))
			assert.Equal(t, tt.wantName, got.ApplicantName)
		})
	}

	sess, err := srv.Sessions.Get(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, sess.Unlocked(), "the gate closes again after the request")
}

func TestContextHandler_ErrorCode(t *testing.T) {
	srv := newTestServer(t, testOptions{})

	rec := do(t, srv, http.MethodPut, "/context", types.DefaultProgramContext(), nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, recErrors.ErrCodeAdminLocked, body.Code)
}

func TestRecommenderHandler(t *testing.T) {
	srv := newTestServer(t, testOptions{})

	rec := do(t, srv, http.MethodPost, "/recommender", types.RecommenderInfo{Name: "Maria"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, recErrors.ErrCodeMissingRecommender, decodeBody[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodPost, "/recommender", testRecommender, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Maria Lopez", decodeBody[types.RecommenderInfo](t, rec).Name)

	rec = do(t, srv, http.MethodPost, "/recommender", testRecommender, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLetterHandler_Template(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/recommender", testRecommender, nil).Code)

	rec := do(t, srv, http.MethodPost, "/letters", LetterRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, recErrors.ErrCodeNoAnswers, decodeBody[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodPut, "/answers", AnswersRequest{Answers: types.AnswerMap{0: "He built our mentoring program."}}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/letters", LetterRequest{UseAI: false}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[LetterResponse](t, rec)
	assert.Equal(t, types.DraftLabelTemplate, resp.Draft.Label)
	assert.Contains(t, resp.Draft.Content, "Re: Recommendation for Jeffrey Clarke")
	assert.Contains(t, resp.Draft.Content, "He built our mentoring program.")
	require.NotNil(t, resp.Notice)
	assert.Equal(t, session.NoticeInfo, resp.Notice.Level)
}

func TestLetterHandler_AI(t *testing.T) {
	tests := []struct {
		name       string
		gateway    ai.Gateway
		wantLabel  types.DraftLabel
		wantLevel  session.NoticeLevel
		wantPrefix string
	}{
		{
			name:       "AI letter",
			gateway:    stubGateway{letter: "Dear Committee, Jeffrey is outstanding."},
			wantLabel:  types.DraftLabelAI,
			wantLevel:  session.NoticeInfo,
			wantPrefix: "Dear Committee",
		},
		{
			name:       "AI failure falls back to the template",
			gateway:    stubGateway{err: recErrors.NewAIError(recErrors.ErrCodeAIServiceFailed, "boom", nil)},
			wantLabel:  types.DraftLabelFallback,
			wantLevel:  session.NoticeWarning,
			wantPrefix: "[Date]",
		},
		{
			name:       "AI not configured falls back to the template",
			gateway:    nil,
			wantLabel:  types.DraftLabelFallback,
			wantLevel:  session.NoticeWarning,
			wantPrefix: "[Date]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, testOptions{gateway: tt.gateway})
			require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/recommender", testRecommender, nil).Code)
			require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/answers", AnswersRequest{Answers: types.AnswerMap{1: "Always prepared."}}, nil).Code)

			rec := do(t, srv, http.MethodPost, "/letters", LetterRequest{UseAI: true}, nil)

			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			resp := decodeBody[LetterResponse](t, rec)
			assert.Equal(t, tt.wantLabel, resp.Draft.Label)
			assert.True(t, strings.HasPrefix(resp.Draft.Content, tt.wantPrefix), resp.Draft.Content)
			require.NotNil(t, resp.Notice)
			assert.Equal(t, tt.wantLevel, resp.Notice.Level)
		})
	}
}

func TestTranscriptionHandler(t *testing.T) {
	srv := newTestServer(t, testOptions{gateway: stubGateway{}})

	rec := do(t, srv, http.MethodPost, "/transcriptions", AudioRequest{Audio: []byte("RIFF"), MIMEType: "text/plain"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/transcriptions", AudioRequest{Audio: bytes.Repeat([]byte{1}, 2048)}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/transcriptions", AudioRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/transcriptions", AudioRequest{Audio: []byte("RIFF"), MIMEType: "audio/wav"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[TranscriptionResponse](t, rec)
	assert.Equal(t, "He organized the whole cohort.", resp.Answers[0])
	require.NotNil(t, resp.Notice)
	assert.Equal(t, session.NoticeInfo, resp.Notice.Level)
}

func TestQuestionsHandlers(t *testing.T) {
	srv := newTestServer(t, testOptions{gateway: stubGateway{}})

	rec := do(t, srv, http.MethodGet, "/questions", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody[QuestionsResponse](t, rec).Questions)

	rec = do(t, srv, http.MethodPost, "/questions/tailor", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[QuestionsResponse](t, rec)
	require.Len(t, resp.Questions, 1)
	assert.Equal(t, "q1", resp.Questions[0].ID)
}

func TestDraftHandlers(t *testing.T) {
	srv := newTestServer(t, testOptions{})

	rec := do(t, srv, http.MethodPost, "/drafts", DraftRequest{Content: "  "}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/drafts", DraftRequest{Content: "Edited letter"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decodeBody[LetterResponse](t, rec).Draft
	assert.Equal(t, types.DraftLabelManual, saved.Label)

	rec = do(t, srv, http.MethodGet, "/drafts", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[DraftsResponse](t, rec)
	require.Len(t, list.Drafts, 1)
	assert.Equal(t, saved.ID, list.Drafts[0].ID)

	rec = do(t, srv, http.MethodGet, "/drafts/"+saved.ID+"/export", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Edited letter", rec.Body.String())
	assert.Equal(t, `attachment; filename="Recommendation_Jeffrey_Clarke_Draft.txt"`, rec.Header().Get("Content-Disposition"))

	rec = do(t, srv, http.MethodGet, "/drafts/unknown/export", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, recErrors.ErrCodeDraftNotFound, decodeBody[ErrorResponse](t, rec).Code)
}

func TestSessionsAreIsolated(t *testing.T) {
	srv := newTestServer(t, testOptions{})

	rec := do(t, srv, http.MethodPost, "/drafts", DraftRequest{Content: "Alpha letter"}, map[string]string{HeaderSessionID: "alpha"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, srv, http.MethodGet, "/drafts", nil, map[string]string{HeaderSessionID: "beta"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[DraftsResponse](t, rec).Drafts)

	rec = do(t, srv, http.MethodGet, "/drafts", nil, map[string]string{HeaderSessionID: "../etc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncHandler(t *testing.T) {
	t.Run("missing webhook URL", func(t *testing.T) {
		srv := newTestServer(t, testOptions{})

		rec := do(t, srv, http.MethodPost, "/context/sync", nil, map[string]string{HeaderAdminPassphrase: testPassphrase})

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, recErrors.ErrCodeMissingWebhookURL, decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("locked", func(t *testing.T) {
		srv := newTestServer(t, testOptions{webhookURL: "http://127.0.0.1:1/hook"})

		rec := do(t, srv, http.MethodPost, "/context/sync", nil, nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("dispatched", func(t *testing.T) {
		received := make(chan webhook.Payload, 1)
		hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p webhook.Payload
			_ = json.NewDecoder(r.Body).Decode(&p)
			received <- p
			w.WriteHeader(http.StatusOK)
		}))
		defer hook.Close()
		srv := newTestServer(t, testOptions{webhookURL: hook.URL})

		rec := do(t, srv, http.MethodPost, "/context/sync", nil, map[string]string{HeaderAdminPassphrase: testPassphrase})

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		assert.Equal(t, map[string]string{"status": "dispatched"}, decodeBody[map[string]string](t, rec))
		assert.Len(t, received, 1)
	})
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t, testOptions{apiKeys: []string{"secret-key-123"}})

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
	}{
		{name: "missing key", headers: nil, wantStatus: http.StatusUnauthorized},
		{name: "invalid key", headers: map[string]string{"X-API-Key": "wrong"}, wantStatus: http.StatusUnauthorized},
		{name: "header key", headers: map[string]string{"X-API-Key": "secret-key-123"}, wantStatus: http.StatusOK},
		{name: "bearer token", headers: map[string]string{"Authorization": "Bearer secret-key-123"}, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/questions", nil, tt.headers)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	// Health stays public
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health", nil, nil).Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	srv := newTestServer(t, testOptions{rateLimit: &config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 1,
		BurstCapacity:  1,
		ByIP:           true,
	}})

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/questions", nil, nil).Code)
	rec := do(t, srv, http.MethodGet, "/questions", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Another client has its own bucket
	other := do(t, srv, http.MethodGet, "/questions", nil, map[string]string{"X-Forwarded-For": "203.0.113.9"})
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerMin: 60, BurstCapacity: 2, Window: time.Minute}, testLogger)
	defer rl.Close()
	now := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	allowed, _ := rl.Allow("ip:10.0.0.1")
	require.True(t, allowed)
	now = now.Add(30 * time.Second)
	allowed, _ = rl.Allow("ip:10.0.0.2")
	require.True(t, allowed)
	assert.Equal(t, 2, rl.GetStats()["active_clients"])

	now = now.Add(45 * time.Second)
	rl.sweep()

	assert.Equal(t, 1, rl.GetStats()["active_clients"])
}

func TestRateLimitKey(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		byAPIKey bool
		byIP     bool
		want     string
	}{
		{name: "api key", headers: map[string]string{"X-API-Key": "k1"}, byAPIKey: true, byIP: true, want: "api:k1"},
		{name: "bearer", headers: map[string]string{"Authorization": "Bearer k2"}, byAPIKey: true, want: "api:k2"},
		{name: "falls back to ip", byAPIKey: true, byIP: true, want: "ip:192.0.2.1"},
		{name: "forwarded for", headers: map[string]string{"X-Forwarded-For": "bogus, 198.51.100.7"}, byIP: true, want: "ip:198.51.100.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.8"}, byIP: true, want: "ip:198.51.100.8"},
		{name: "disabled", headers: map[string]string{"X-API-Key": "k1"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/questions", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, rateLimitKey(req, tt.byAPIKey, tt.byIP))
		})
	}
}

func TestParseJSONRequest_ContentType(t *testing.T) {
	srv := newTestServer(t, testOptions{})

	req := httptest.NewRequest(http.MethodPost, "/recommender", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "content-type must be application/json")
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  *recErrors.AppError
		want int
	}{
		{recErrors.NewValidationError(recErrors.ErrCodeDraftNotFound, "", nil), http.StatusNotFound},
		{recErrors.NewAuthError(recErrors.ErrCodeAdminLocked, "", nil), http.StatusForbidden},
		{recErrors.NewAuthError("OTHER", "", nil), http.StatusUnauthorized},
		{recErrors.NewValidationError(recErrors.ErrCodeInvalidRequest, "", nil), http.StatusBadRequest},
		{recErrors.NewConflictError(recErrors.ErrCodeRequestInFlight, "", nil), http.StatusConflict},
		{recErrors.NewConfigError(recErrors.ErrCodeMissingWebhookURL, "", nil), http.StatusServiceUnavailable},
		{recErrors.NewNetworkError(recErrors.ErrCodeWebhookDispatch, "", nil), http.StatusBadGateway},
		{recErrors.NewAIError(recErrors.ErrCodeAIServiceFailed, "", nil), http.StatusBadGateway},
		{recErrors.NewInternalError(recErrors.ErrCodeStoreFailed, "", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "abcdefgh****", maskAPIKey("abcdefghijkl"))
}

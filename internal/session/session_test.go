package session

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"recletter/internal/ai"
	"recletter/internal/errors"
	"recletter/internal/letter"
	"recletter/internal/store"
	"recletter/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = errors.NewLoggerTo(os.Stderr, slog.LevelWarn)

type fakeGateway struct {
	questions   []types.Question
	letter      string
	transcripts map[string]string
	err         error

	block   chan struct{}
	started chan struct{}

	mu          sync.Mutex
	letterCalls int
	lastLetter  types.GenerateLetterInput
}

func (f *fakeGateway) wait() {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeGateway) TailorQuestions(context.Context, types.TailorQuestionsInput) (types.TailorQuestionsOutput, *ai.TokenUsage, error) {
	if f.err != nil {
		return types.TailorQuestionsOutput{}, nil, f.err
	}
	return types.TailorQuestionsOutput{Questions: f.questions}, &ai.TokenUsage{TotalTokens: 5}, nil
}

func (f *fakeGateway) GenerateLetter(_ context.Context, in types.GenerateLetterInput) (types.GenerateLetterOutput, *ai.TokenUsage, error) {
	f.wait()
	f.mu.Lock()
	f.letterCalls++
	f.lastLetter = in
	f.mu.Unlock()
	if f.err != nil {
		return types.GenerateLetterOutput{}, nil, f.err
	}
	return types.GenerateLetterOutput{Letter: f.letter}, nil, nil
}

func (f *fakeGateway) AnalyzeAudio(context.Context, types.AnalyzeAudioInput) (types.AnalyzeAudioOutput, *ai.TokenUsage, error) {
	if f.err != nil {
		return types.AnalyzeAudioOutput{}, nil, f.err
	}
	return types.AnalyzeAudioOutput{Transcripts: f.transcripts}, nil, nil
}

type fakeSyncer struct {
	calls int
	last  types.ProgramContext
	err   error
}

func (f *fakeSyncer) Dispatch(_ context.Context, c types.ProgramContext) error {
	f.calls++
	f.last = c
	return f.err
}

var fixedNow = time.Date(2025, 11, 1, 9, 30, 0, 0, time.UTC)

func newTestSession(t *testing.T, gw ai.Gateway) (*Session, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(testLogger)
	s, err := New("test", Deps{
		Store:           st,
		Gateway:         gw,
		Logger:          testLogger,
		AdminPassphrase: "secret",
		Now:             func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	require.NoError(t, s.Load(context.Background()))
	return s, st
}

func validRecommender() types.RecommenderInfo {
	return types.RecommenderInfo{
		Name:         "Dr. Ada Park",
		Title:        "Dean",
		Company:      "State University",
		Relationship: "Dean of Graduate Program",
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("../x", Deps{Store: store.NewMemoryStore(testLogger)})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))

	_, err = New("ok", Deps{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
}

func TestSetRecommender(t *testing.T) {
	tests := []struct {
		name string
		rec  types.RecommenderInfo
		code string
	}{
		{"missing name", types.RecommenderInfo{Title: "Dean", Relationship: "Posse Mate"}, errors.ErrCodeMissingRecommender},
		{"blank title", types.RecommenderInfo{Name: "Ada", Title: "  ", Relationship: "Posse Mate"}, errors.ErrCodeMissingRecommender},
		{"bad relationship", types.RecommenderInfo{Name: "Ada", Title: "Dean", Relationship: "Neighbor"}, errors.ErrCodeInvalidRelationship},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t, &fakeGateway{})
			err := s.SetRecommender(tt.rec)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code))
			assert.Nil(t, s.Recommender())
		})
	}

	t.Run("message for missing fields", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeGateway{})
		err := s.SetRecommender(types.RecommenderInfo{Relationship: "Posse Mate"})
		var appErr *errors.AppError
		require.True(t, stderrors.As(err, &appErr))
		assert.Equal(t, MsgMissingRecommender, appErr.Message)
	})

	t.Run("immutable once set", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeGateway{})
		require.NoError(t, s.SetRecommender(validRecommender()))
		other := validRecommender()
		other.Name = "Someone Else"
		err := s.SetRecommender(other)
		assert.True(t, errors.HasCode(err, errors.ErrCodeRecommenderLocked))
		assert.Equal(t, "Dr. Ada Park", s.Recommender().Name)
	})

	t.Run("other text kept only for Other", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeGateway{})
		rec := validRecommender()
		rec.RelationshipOther = "Neighbor"
		require.NoError(t, s.SetRecommender(rec))
		assert.Empty(t, s.Recommender().RelationshipOther)
	})
}

func TestGenerateValidation(t *testing.T) {
	s, _ := newTestSession(t, &fakeGateway{letter: "Dear committee"})

	_, _, err := s.Generate(context.Background(), false, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingRecommender))

	require.NoError(t, s.SetRecommender(validRecommender()))
	_, _, err = s.Generate(context.Background(), false, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNoAnswers))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	require.NoError(t, s.SetAnswer(0, "   "))
	_, _, err = s.Generate(context.Background(), false, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNoAnswers))
	assert.Empty(t, s.Drafts())
}

func TestGenerateTemplate(t *testing.T) {
	gw := &fakeGateway{letter: "unused"}
	s, st := newTestSession(t, gw)
	require.NoError(t, s.SetRecommender(validRecommender()))
	require.NoError(t, s.SetAnswer(1, "She led the robotics club."))

	d, notice, err := s.Generate(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DraftLabelTemplate, d.Label)
	assert.Equal(t, NoticeInfo, notice.Level)
	assert.Equal(t, fixedNow, d.Timestamp)
	assert.NotEmpty(t, d.ID)
	assert.Zero(t, gw.letterCalls)

	expected := letter.ComposeLetter(s.Context(), s.Answers(), s.Questions(), s.Recommender())
	assert.Equal(t, expected, d.Content)
	assert.Equal(t, expected, s.CurrentLetter())

	stored, err := st.LoadState(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, stored.Drafts, 1)
	assert.Equal(t, d.ID, stored.Drafts[0].ID)
}

func TestGenerateAI(t *testing.T) {
	gw := &fakeGateway{letter: "Dear Committee, Jeffrey is wonderful."}
	s, _ := newTestSession(t, gw)
	require.NoError(t, s.SetRecommender(validRecommender()))
	require.NoError(t, s.SetAnswer(0, "Five years"))

	d, notice, err := s.Generate(context.Background(), true, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DraftLabelAI, d.Label)
	assert.Equal(t, gw.letter, d.Content)
	assert.Equal(t, NoticeInfo, notice.Level)
	assert.Equal(t, "Dr. Ada Park", gw.lastLetter.Recommender.Name)
	assert.Equal(t, "Five years", gw.lastLetter.Answers[0])
}

func TestGenerateAIFallsBackToTemplate(t *testing.T) {
	tests := []struct {
		name string
		gw   ai.Gateway
	}{
		{"gateway error", &fakeGateway{err: stderrors.New("quota exceeded")}},
		{"empty letter", &fakeGateway{letter: "  "}},
		{"unavailable", ai.Unavailable{Err: errors.NewConfigError(errors.ErrCodeMissingAPIKey, "no key", nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t, tt.gw)
			require.NoError(t, s.SetRecommender(validRecommender()))
			require.NoError(t, s.SetAnswer(0, "Five years"))

			d, notice, err := s.Generate(context.Background(), true, nil)
			require.NoError(t, err)
			assert.Equal(t, types.DraftLabelFallback, d.Label)
			require.NotNil(t, notice)
			assert.Equal(t, NoticeWarning, notice.Level)
			assert.Contains(t, d.Content, "Five years")
		})
	}
}

func TestGenerateWithAudioOnly(t *testing.T) {
	gw := &fakeGateway{letter: "From audio"}
	s, _ := newTestSession(t, gw)
	require.NoError(t, s.SetRecommender(validRecommender()))

	audio := &types.AudioPayload{Data: []byte{1, 2, 3}, MIMEType: "audio/webm"}
	d, _, err := s.Generate(context.Background(), true, audio)
	require.NoError(t, err)
	assert.Equal(t, types.DraftLabelAI, d.Label)
	require.NotNil(t, gw.lastLetter.Audio)
	assert.Equal(t, []byte{1, 2, 3}, gw.lastLetter.Audio.Data)
}

func TestGenerateRejectsConcurrentSubmission(t *testing.T) {
	gw := &fakeGateway{letter: "done", block: make(chan struct{}), started: make(chan struct{})}
	s, _ := newTestSession(t, gw)
	require.NoError(t, s.SetRecommender(validRecommender()))
	require.NoError(t, s.SetAnswer(0, "answer"))

	done := make(chan error, 1)
	go func() {
		_, _, err := s.Generate(context.Background(), true, nil)
		done <- err
	}()
	<-gw.started

	_, _, err := s.Generate(context.Background(), true, nil)
	assert.ErrorIs(t, err, ErrRequestInFlight)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))

	_, _, err = s.TailorQuestions(context.Background())
	assert.ErrorIs(t, err, ErrRequestInFlight)

	close(gw.block)
	require.NoError(t, <-done)
	assert.Len(t, s.Drafts(), 1)

	gw.block, gw.started = nil, nil
	_, _, err = s.Generate(context.Background(), true, nil)
	require.NoError(t, err)
	assert.Len(t, s.Drafts(), 2)
}

func TestDraftsNewestFirstAndRestore(t *testing.T) {
	s, _ := newTestSession(t, &fakeGateway{})
	ctx := context.Background()

	first, err := s.SaveManualDraft(ctx, "first edit")
	require.NoError(t, err)
	second, err := s.SaveManualDraft(ctx, "second edit")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, types.DraftLabelManual, first.Label)

	drafts := s.Drafts()
	require.Len(t, drafts, 2)
	assert.Equal(t, second.ID, drafts[0].ID)
	assert.Equal(t, first.ID, drafts[1].ID)

	restored, err := s.RestoreDraft(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first edit", restored.Content)
	assert.Equal(t, "first edit", s.CurrentLetter())
	assert.Len(t, s.Drafts(), 2, "restoring does not add a draft")

	_, err = s.RestoreDraft("missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeDraftNotFound))

	_, err = s.SaveManualDraft(ctx, " ")
	assert.Error(t, err)
}

func TestTailorQuestions(t *testing.T) {
	tailored := []types.Question{{ID: "t1", Text: "Tailored?"}}

	t.Run("success replaces custom questions", func(t *testing.T) {
		s, st := newTestSession(t, &fakeGateway{questions: tailored})
		qs, notice, err := s.TailorQuestions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tailored, qs)
		assert.Equal(t, NoticeInfo, notice.Level)

		stored, err := st.LoadState(context.Background(), "test")
		require.NoError(t, err)
		assert.Equal(t, tailored, stored.Context.CustomQuestions)
	})

	t.Run("failure keeps previous list", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeGateway{err: stderrors.New("down")})
		before := s.Questions()
		qs, notice, err := s.TailorQuestions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, before, qs)
		assert.Equal(t, NoticeWarning, notice.Level)
	})

	t.Run("empty result keeps previous list", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeGateway{questions: nil})
		before := s.Questions()
		qs, notice, err := s.TailorQuestions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, before, qs)
		assert.Equal(t, NoticeWarning, notice.Level)
	})
}

func TestTranscribe(t *testing.T) {
	audio := types.AudioPayload{Data: []byte("voice")}

	t.Run("merges by question position", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeGateway{})
		questions := s.Questions()
		require.GreaterOrEqual(t, len(questions), 2)

		gw := &fakeGateway{transcripts: map[string]string{
			questions[0].ID: "Ten years as her dean.",
			questions[1].ID: "She built a mentoring program.",
			"general":       "Thanks for asking.",
		}}
		s.deps.Gateway = gw
		require.NoError(t, s.SetAnswer(1, "Typed first."))

		got, notice, err := s.Transcribe(context.Background(), audio)
		require.NoError(t, err)
		assert.Equal(t, NoticeInfo, notice.Level)
		assert.Equal(t, "Thanks for asking.", got["general"])

		answers := s.Answers()
		assert.Equal(t, "Ten years as her dean.", answers[0])
		assert.Equal(t, "Typed first.\n\nShe built a mentoring program.", answers[1])
	})

	t.Run("failure leaves answers unchanged", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeGateway{err: stderrors.New("bad audio")})
		require.NoError(t, s.SetAnswer(0, "kept"))

		got, notice, err := s.Transcribe(context.Background(), audio)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, NoticeWarning, notice.Level)
		assert.Equal(t, types.AnswerMap{0: "kept"}, s.Answers())
	})

	t.Run("empty audio is rejected", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeGateway{})
		_, _, err := s.Transcribe(context.Background(), types.AudioPayload{})
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}

func TestUpdateContextRequiresUnlock(t *testing.T) {
	s, _ := newTestSession(t, &fakeGateway{})
	next := s.Context()
	next.ApplicantName = "New Name"

	err := s.UpdateContext(context.Background(), next)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAdminLocked))

	assert.True(t, errors.IsType(s.Unlock("wrong"), errors.ErrorTypeAuth))
	assert.False(t, s.Unlocked())
	require.NoError(t, s.Unlock("secret"))
	require.NoError(t, s.UpdateContext(context.Background(), next))
	assert.Equal(t, "New Name", s.Context().ApplicantName)

	s.Lock()
	assert.False(t, s.Unlocked())
}

func TestUpdateContextClearsStaleQuestions(t *testing.T) {
	s, _ := newTestSession(t, &fakeGateway{questions: []types.Question{{ID: "t1", Text: "Tailored?"}}})
	ctx := context.Background()
	require.NoError(t, s.Unlock("secret"))
	_, _, err := s.TailorQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, s.Context().CustomQuestions, 1)

	// Deadline is not a question seed
	next := s.Context()
	next.SubmissionDeadline = "2030-01-01"
	require.NoError(t, s.UpdateContext(ctx, next))
	assert.Len(t, s.Context().CustomQuestions, 1)

	next = s.Context()
	next.CoreQualities[0] = "Resilience"
	require.NoError(t, s.UpdateContext(ctx, next))
	assert.Empty(t, s.Context().CustomQuestions)
	assert.Equal(t, letter.DeriveDefaultQuestions(s.Context()), s.Questions())
}

func TestImportContextKeepsFreshQuestions(t *testing.T) {
	s, _ := newTestSession(t, &fakeGateway{})
	next := types.ProgramContext{
		ApplicantName:   "Maria",
		CoreQualities:   []string{"Grit"},
		CustomQuestions: []types.Question{{ID: "f1", Text: "From file?"}},
	}
	require.NoError(t, s.ImportContext(context.Background(), next))
	assert.Equal(t, "f1", s.Questions()[0].ID)
}

func TestSync(t *testing.T) {
	syncer := &fakeSyncer{}
	s, _ := newTestSession(t, &fakeGateway{})
	s.deps.Syncer = syncer

	assert.True(t, errors.HasCode(s.Sync(context.Background()), errors.ErrCodeAdminLocked))
	assert.Zero(t, syncer.calls)

	require.NoError(t, s.Unlock("secret"))
	require.NoError(t, s.Sync(context.Background()))
	assert.Equal(t, 1, syncer.calls)
	assert.Equal(t, "Jeffrey Clarke", syncer.last.ApplicantName)

	s.deps.Syncer = nil
	assert.True(t, errors.IsType(s.Sync(context.Background()), errors.ErrorTypeConfig))
}

func TestExport(t *testing.T) {
	s, _ := newTestSession(t, &fakeGateway{})
	dir := filepath.Join(t.TempDir(), "out")

	_, err := s.Export(dir)
	assert.Error(t, err, "nothing to export yet")

	_, err = s.SaveManualDraft(context.Background(), "Letter body")
	require.NoError(t, err)

	path, err := s.Export(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Recommendation_Jeffrey_Clarke_Draft.txt"), path)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Letter body", string(raw))
}

func TestLoadRestoresPersistedState(t *testing.T) {
	s, st := newTestSession(t, &fakeGateway{})
	_, err := s.SaveManualDraft(context.Background(), "persisted")
	require.NoError(t, err)

	again, err := New("test", Deps{Store: st, Logger: testLogger})
	require.NoError(t, err)
	require.NoError(t, again.Load(context.Background()))
	require.Len(t, again.Drafts(), 1)
	assert.Equal(t, "persisted", again.Drafts()[0].Content)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Deps{Store: store.NewMemoryStore(testLogger), Logger: testLogger, AdminPassphrase: "secret"})
	ctx := context.Background()

	a, err := r.Get(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, store.DefaultSessionID, a.ID())

	again, err := r.Get(ctx, store.DefaultSessionID)
	require.NoError(t, err)
	assert.Same(t, a, again)

	_, err = r.Get(ctx, "bad/id")
	assert.Error(t, err)

	b, err := r.Get(ctx, "other")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, []string{"default", "other"}, r.IDs())
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.ApplyContext(ctx, "other", types.ProgramContext{ApplicantName: "Watched"}))
	assert.Equal(t, "Watched", b.Context().ApplicantName)
}

// Package session holds the state of one recommender's drafting session and
// runs every operation against it: intake, question tailoring, transcription,
// letter generation with template fallback, draft history and export.
package session

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"recletter/internal/ai"
	"recletter/internal/errors"
	"recletter/internal/letter"
	"recletter/internal/observability"
	"recletter/internal/store"
	"recletter/internal/types"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Validation messages shown to the recommender
const (
	MsgMissingRecommender = "Please fill in your Name and Title."
	MsgNoAnswers          = "Please answer at least one question or record audio."
)

// ErrRequestInFlight rejects a submission made while another is outstanding
var ErrRequestInFlight = errors.NewConflictError(errors.ErrCodeRequestInFlight,
	"another request is already in progress for this session", nil)

// NoticeLevel grades a Notice
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
)

// Notice is a non-fatal message about the outcome of an operation
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

func info(msg string) *Notice    { return &Notice{Level: NoticeInfo, Message: msg} }
func warning(msg string) *Notice { return &Notice{Level: NoticeWarning, Message: msg} }

// Syncer pushes a context to the spreadsheet endpoint
type Syncer interface {
	Dispatch(ctx context.Context, programCtx types.ProgramContext) error
}

// Deps are the collaborators a Session works with
type Deps struct {
	Store           store.Store
	Gateway         ai.Gateway
	Syncer          Syncer
	Observability   *observability.Manager
	Logger          *errors.Logger
	AdminPassphrase string
	Now             func() time.Time
}

// Session is one recommender's working state. Context and drafts are persisted
// through the store; recommender, answers and audio live only in memory.
type Session struct {
	id   string
	deps Deps

	mu          sync.Mutex
	state       *store.State
	recommender *types.RecommenderInfo
	answers     types.AnswerMap
	audio       *types.AudioPayload
	transcripts map[string]string
	current     string
	unlocked    bool

	inFlight atomic.Bool
}

// New creates a session with a default state. Call Load to read the stored one.
func New(id string, deps Deps) (*Session, error) {
	if !store.ValidSessionID(id) {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid session id %q", id), nil)
	}
	if deps.Store == nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "session requires a store", nil)
	}
	if deps.Gateway == nil {
		deps.Gateway = ai.Unavailable{Err: errors.NewConfigError(errors.ErrCodeMissingAPIKey, "AI service is not configured", nil)}
	}
	if deps.Logger == nil {
		deps.Logger = errors.NewLoggerTo(os.Stderr, slog.LevelInfo)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		id:          id,
		deps:        deps,
		state:       store.NewState(),
		answers:     types.AnswerMap{},
		transcripts: map[string]string{},
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Load replaces the in-memory context and drafts with the stored state
func (s *Session) Load(ctx context.Context) error {
	state, err := s.deps.Store.LoadState(ctx, s.id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return nil
}

// Save writes the context and drafts through the store
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.deps.Store.SaveState(ctx, s.id, snapshot)
}

func (s *Session) snapshotLocked() *store.State {
	drafts := make([]types.Draft, len(s.state.Drafts))
	copy(drafts, s.state.Drafts)
	return &store.State{
		SchemaVersion: store.SchemaVersion,
		Context:       s.state.Context.Normalized(),
		Drafts:        drafts,
	}
}

// Context returns a copy of the program context
func (s *Session) Context() types.ProgramContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Context.Normalized()
}

// Unlock opens the configuration operations when passphrase matches
func (s *Session) Unlock(passphrase string) error {
	expected := s.deps.AdminPassphrase
	if expected == "" || subtle.ConstantTimeCompare([]byte(passphrase), []byte(expected)) != 1 {
		return errors.NewAuthError(errors.ErrCodeAdminLocked, "incorrect admin passphrase", nil)
	}
	s.mu.Lock()
	s.unlocked = true
	s.mu.Unlock()
	return nil
}

// Lock closes the configuration operations again
func (s *Session) Lock() {
	s.mu.Lock()
	s.unlocked = false
	s.mu.Unlock()
}

// Unlocked reports whether configuration operations are open
func (s *Session) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

func (s *Session) requireUnlocked() error {
	if !s.Unlocked() {
		return errors.NewAuthError(errors.ErrCodeAdminLocked, "configuration mode is locked", nil)
	}
	return nil
}

// UpdateContext replaces the program context. Requires an unlocked session.
func (s *Session) UpdateContext(ctx context.Context, next types.ProgramContext) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	return s.ImportContext(ctx, next)
}

// ImportContext replaces the program context from a trusted local source such
// as a context file. When any field that seeds the questions changed, custom
// questions carried over unchanged from the previous context are dropped.
func (s *Session) ImportContext(ctx context.Context, next types.ProgramContext) error {
	next = next.Normalized()
	if next.CustomQuestions == nil {
		next.CustomQuestions = []types.Question{}
	}

	s.mu.Lock()
	prev := s.state.Context
	if prev.SeedsChanged(next) && len(next.CustomQuestions) > 0 &&
		slices.Equal(prev.CustomQuestions, next.CustomQuestions) {
		s.deps.Logger.Info("Context seeds changed, clearing custom questions",
			"session", s.id, "dropped", len(next.CustomQuestions))
		next.CustomQuestions = []types.Question{}
	}
	s.state.Context = next
	s.mu.Unlock()

	return s.Save(ctx)
}

// Questions returns the active interview questions
func (s *Session) Questions() []types.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return letter.ActiveQuestions(s.state.Context)
}

// SetRecommender records who is writing. It can be set once per session.
func (s *Session) SetRecommender(rec types.RecommenderInfo) error {
	rec.Name = strings.TrimSpace(rec.Name)
	rec.Title = strings.TrimSpace(rec.Title)
	rec.Company = strings.TrimSpace(rec.Company)
	rec.RelationshipOther = strings.TrimSpace(rec.RelationshipOther)

	if rec.Name == "" || rec.Title == "" {
		return errors.NewValidationError(errors.ErrCodeMissingRecommender, MsgMissingRecommender, nil)
	}
	if !types.IsValidRelationship(rec.Relationship) {
		return errors.NewValidationError(errors.ErrCodeInvalidRelationship,
			fmt.Sprintf("unknown relationship %q", rec.Relationship), nil)
	}
	if rec.Relationship != types.RelationshipOther {
		rec.RelationshipOther = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recommender != nil {
		return errors.NewConflictError(errors.ErrCodeRecommenderLocked,
			"recommender details are already set for this session", nil)
	}
	s.recommender = &rec
	return nil
}

// Recommender returns the recommender details, or nil before intake
func (s *Session) Recommender() *types.RecommenderInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recommender == nil {
		return nil
	}
	rec := *s.recommender
	return &rec
}

// SetAnswer stores the response to the question at index
func (s *Session) SetAnswer(index int, text string) error {
	if index < 0 {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid answer position %d", index), nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		delete(s.answers, index)
		return nil
	}
	s.answers[index] = text
	return nil
}

// SetAnswers replaces all answers
func (s *Session) SetAnswers(answers types.AnswerMap) error {
	for i := range answers {
		if i < 0 {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("invalid answer position %d", i), nil)
		}
	}
	s.mu.Lock()
	s.answers = answers.Clone()
	s.mu.Unlock()
	return nil
}

// Answers returns a copy of the answers
func (s *Session) Answers() types.AnswerMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

// SetAudio keeps a recording for later generation. A nil payload clears it.
func (s *Session) SetAudio(audio *types.AudioPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = audio
	s.transcripts = map[string]string{}
}

// Transcripts returns the last per-question transcription
func (s *Session) Transcripts() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.transcripts))
	for k, v := range s.transcripts {
		out[k] = v
	}
	return out
}

// CurrentLetter returns the letter most recently generated, saved or restored
func (s *Session) CurrentLetter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Drafts returns the draft history, newest first
func (s *Session) Drafts() []types.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Draft, len(s.state.Drafts))
	copy(out, s.state.Drafts)
	return out
}

// Draft looks up one draft by id
func (s *Session) Draft(id string) (types.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.state.Drafts {
		if d.ID == id {
			return d, nil
		}
	}
	return types.Draft{}, errors.NewValidationError(errors.ErrCodeDraftNotFound,
		fmt.Sprintf("draft %q not found", id), nil)
}

// RestoreDraft makes a stored draft the current letter
func (s *Session) RestoreDraft(id string) (types.Draft, error) {
	d, err := s.Draft(id)
	if err != nil {
		return types.Draft{}, err
	}
	s.mu.Lock()
	s.current = d.Content
	s.mu.Unlock()
	return d, nil
}

// SaveManualDraft stores an edited letter as a "Manual Edit" draft
func (s *Session) SaveManualDraft(ctx context.Context, content string) (types.Draft, error) {
	if strings.TrimSpace(content) == "" {
		return types.Draft{}, errors.NewValidationError(errors.ErrCodeInvalidRequest, "draft content is empty", nil)
	}
	d, err := s.appendDraft(ctx, content, types.DraftLabelManual)
	s.deps.Observability.RecordBusinessMetric(ctx, observability.EventDraftSaved, err == nil)
	return d, err
}

func (s *Session) appendDraft(ctx context.Context, content string, label types.DraftLabel) (types.Draft, error) {
	d := types.Draft{
		ID:        uuid.NewString(),
		Timestamp: s.deps.Now().UTC(),
		Content:   content,
		Label:     label,
	}

	s.mu.Lock()
	s.state.Drafts = append([]types.Draft{d}, s.state.Drafts...)
	s.current = content
	s.mu.Unlock()

	if err := s.Save(ctx); err != nil {
		return d, err
	}
	return d, nil
}

// Export writes the current letter into dir and returns the file path
func (s *Session) Export(dir string) (string, error) {
	s.mu.Lock()
	content := s.current
	name := s.state.Context.ApplicantName
	s.mu.Unlock()

	if content == "" {
		return "", errors.NewValidationError(errors.ErrCodeInvalidRequest, "there is no letter to export", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable, "failed to create export directory", err)
	}
	path := filepath.Join(dir, letter.ExportFilename(name))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable, "failed to write letter", err)
	}
	s.deps.Logger.Info("Letter exported", "session", s.id, "path", path)
	return path, nil
}

// Sync pushes the context to the spreadsheet webhook. Requires an unlocked session.
func (s *Session) Sync(ctx context.Context) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	if s.deps.Syncer == nil {
		return errors.NewConfigError(errors.ErrCodeMissingWebhookURL, "webhook URL is not configured", nil)
	}
	err := s.deps.Syncer.Dispatch(ctx, s.Context())
	s.deps.Observability.RecordBusinessMetric(ctx, observability.EventWebhookDispatched, err == nil)
	return err
}

func (s *Session) begin() error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrRequestInFlight
	}
	return nil
}

func (s *Session) end() { s.inFlight.Store(false) }

// TailorQuestions asks the AI for questions suited to the recommender. On
// failure the current questions stay and a warning notice is returned.
func (s *Session) TailorQuestions(ctx context.Context) ([]types.Question, *Notice, error) {
	if err := s.begin(); err != nil {
		return nil, nil, err
	}
	defer s.end()

	s.mu.Lock()
	input := types.TailorQuestionsInput{Context: s.state.Context.Normalized(), Recommender: s.recommender}
	s.mu.Unlock()

	var out types.TailorQuestionsOutput
	err := s.deps.Observability.TrackAIOperation(ctx, "questions", func(ctx context.Context) *observability.AIOperationResult {
		var usage *ai.TokenUsage
		var err error
		out, usage, err = s.deps.Gateway.TailorQuestions(ctx, input)
		return &observability.AIOperationResult{Error: err, TokenUsage: (*observability.TokenUsage)(usage)}
	})
	if err == nil && len(out.Questions) == 0 {
		err = errors.NewAIError(errors.ErrCodeAIServiceFailed, "AI returned no questions", nil)
	}
	s.deps.Observability.RecordBusinessMetric(ctx, observability.EventQuestionsTailored, err == nil)
	if err != nil {
		s.deps.Logger.Warn("Question tailoring failed, keeping current questions", "session", s.id, "error", err.Error())
		return s.Questions(), warning("Could not tailor the questions; showing the standard set."), nil
	}

	s.mu.Lock()
	s.state.Context.CustomQuestions = out.Questions
	s.mu.Unlock()
	if err := s.Save(ctx); err != nil {
		return nil, nil, err
	}
	return s.Questions(), info("Questions tailored to your role."), nil
}

// Transcribe analyzes a recording against the active questions and merges
// each transcript into the answer at that question's position. On failure
// answers are untouched and a warning notice is returned.
func (s *Session) Transcribe(ctx context.Context, audio types.AudioPayload) (map[string]string, *Notice, error) {
	if len(audio.Data) == 0 {
		return nil, nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "audio recording is empty", nil)
	}
	if err := s.begin(); err != nil {
		return nil, nil, err
	}
	defer s.end()

	audio.MIMEType = audio.EffectiveMIMEType()
	questions := s.Questions()
	s.SetAudio(&audio)

	var out types.AnalyzeAudioOutput
	err := s.deps.Observability.TrackAIOperation(ctx, "audio", func(ctx context.Context) *observability.AIOperationResult {
		var usage *ai.TokenUsage
		var err error
		out, usage, err = s.deps.Gateway.AnalyzeAudio(ctx, types.AnalyzeAudioInput{Audio: audio, Questions: questions})
		return &observability.AIOperationResult{Error: err, TokenUsage: (*observability.TokenUsage)(usage)}
	})
	s.deps.Observability.RecordBusinessMetric(ctx, observability.EventAudioTranscribed, err == nil)
	if err != nil {
		s.deps.Logger.Warn("Transcription failed", "session", s.id, "error", err.Error())
		return nil, warning("Transcription failed."), nil
	}

	s.mu.Lock()
	s.transcripts = out.Transcripts
	for i, q := range questions {
		text := strings.TrimSpace(out.Transcripts[q.ID])
		if text == "" {
			continue
		}
		if existing := strings.TrimSpace(s.answers[i]); existing != "" {
			text = existing + "\n\n" + text
		}
		s.answers[i] = text
	}
	s.mu.Unlock()

	return s.Transcripts(), info("Audio analyzed! Check the questions to see the matched answers."), nil
}

// Generate writes a letter and appends it to the draft history. With useAI the
// AI gateway writes it, falling back to the template on any failure. A nil
// audio uses the last recording given to the session.
func (s *Session) Generate(ctx context.Context, useAI bool, audio *types.AudioPayload) (types.Draft, *Notice, error) {
	s.mu.Lock()
	rec := s.recommender
	if audio == nil {
		audio = s.audio
	}
	input := types.GenerateLetterInput{
		Context:     s.state.Context.Normalized(),
		Answers:     s.answers.Clone(),
		Questions:   letter.ActiveQuestions(s.state.Context),
		Audio:       audio,
		Recommender: rec,
	}
	s.mu.Unlock()

	if rec == nil || rec.Name == "" || rec.Title == "" {
		return types.Draft{}, nil, errors.NewValidationError(errors.ErrCodeMissingRecommender, MsgMissingRecommender, nil)
	}
	if !input.Answers.HasContent() && (audio == nil || len(audio.Data) == 0) {
		return types.Draft{}, nil, errors.NewValidationError(errors.ErrCodeNoAnswers, MsgNoAnswers, nil)
	}

	if err := s.begin(); err != nil {
		return types.Draft{}, nil, err
	}
	defer s.end()

	content, label, notice := s.compose(ctx, useAI, input)

	d, err := s.appendDraft(ctx, content, label)
	s.deps.Observability.RecordBusinessMetric(ctx, observability.EventLetterGenerated, err == nil,
		attribute.String("label", string(label)))
	s.deps.Observability.RecordLetterLength(ctx, string(label), len(content))
	if err != nil {
		return d, notice, err
	}
	return d, notice, nil
}

func (s *Session) compose(ctx context.Context, useAI bool, input types.GenerateLetterInput) (string, types.DraftLabel, *Notice) {
	template := func() string {
		return letter.ComposeLetter(input.Context, input.Answers, input.Questions, input.Recommender)
	}
	if !useAI {
		return template(), types.DraftLabelTemplate, info("Template draft generated.")
	}

	var out types.GenerateLetterOutput
	err := s.deps.Observability.TrackAIOperation(ctx, "letter", func(ctx context.Context) *observability.AIOperationResult {
		var usage *ai.TokenUsage
		var err error
		out, usage, err = s.deps.Gateway.GenerateLetter(ctx, input)
		return &observability.AIOperationResult{Error: err, TokenUsage: (*observability.TokenUsage)(usage)}
	})
	if err == nil && strings.TrimSpace(out.Letter) == "" {
		err = errors.NewAIError(errors.ErrCodeAIServiceFailed, "AI returned an empty letter", nil)
	}
	if err != nil {
		s.deps.Logger.Warn("AI letter generation failed, using template", "session", s.id, "error", err.Error())
		s.deps.Observability.RecordBusinessMetric(ctx, observability.EventLetterFallback, true)
		return template(), types.DraftLabelFallback, warning("AI Generation failed. Falling back to template.")
	}
	return out.Letter, types.DraftLabelAI, info("Draft generated by AI!")
}

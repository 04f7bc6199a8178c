package server

import (
	"fmt"
	"net/http"
	"strings"

	recErrors "recletter/internal/errors"
	"recletter/internal/letter"
	"recletter/internal/session"
	"recletter/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AnswersRequest is the body of PUT /answers; keys are question positions
type AnswersRequest struct {
	Answers types.AnswerMap `json:"answers"`
}

// AudioRequest carries a recording; Audio is base64 in JSON
type AudioRequest struct {
	Audio    []byte `json:"audio"`
	MIMEType string `json:"mimeType,omitempty"`
}

// LetterRequest is the body of POST /letters
type LetterRequest struct {
	UseAI bool          `json:"useAI"`
	Audio *AudioRequest `json:"audio,omitempty"`
}

// DraftRequest is the body of POST /drafts
type DraftRequest struct {
	Content string `json:"content"`
}

// QuestionsResponse lists the active questions
type QuestionsResponse struct {
	Questions []types.Question `json:"questions"`
	Notice    *session.Notice  `json:"notice,omitempty"`
}

// TranscriptionResponse holds the transcripts and the answers they merged into
type TranscriptionResponse struct {
	Transcripts map[string]string `json:"transcripts,omitempty"`
	Answers     types.AnswerMap   `json:"answers"`
	Notice      *session.Notice   `json:"notice,omitempty"`
}

// LetterResponse holds a new draft
type LetterResponse struct {
	Draft  types.Draft     `json:"draft"`
	Notice *session.Notice `json:"notice,omitempty"`
}

// DraftsResponse lists drafts newest first
type DraftsResponse struct {
	Drafts []types.Draft `json:"drafts"`
}

func (s *Server) startSpan(r *http.Request, name string) (*http.Request, trace.Span) {
	ctx, span := s.Observability.Tracer("recletter.api").Start(r.Context(), "api."+name)
	return r.WithContext(ctx), span
}

// resolveSession resolves the caller's session from the X-Session-ID header
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request, span trace.Span) (*session.Session, bool) {
	sess, err := s.Sessions.Get(r.Context(), r.Header.Get(HeaderSessionID))
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Session unavailable", err)
		return nil, false
	}
	span.SetAttributes(attribute.String("session.id", sess.ID()))
	return sess, true
}

// unlock opens the admin gate for the duration of one request
func (s *Server) unlock(w http.ResponseWriter, r *http.Request, sess *session.Session, span trace.Span) bool {
	if err := sess.Unlock(r.Header.Get(HeaderAdminPassphrase)); err != nil {
		span.RecordError(err)
		s.Logger.Info("Admin passphrase rejected", "endpoint", r.URL.Path, "client_ip", getClientIP(r))
		s.writeAppError(w, r, "Configuration mode is locked", err)
		return false
	}
	return true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, span trace.Span, v any) bool {
	if err := parseJSONRequest(r, v); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "validation"))
		writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) audioPayload(req *AudioRequest) (*types.AudioPayload, error) {
	if req == nil || len(req.Audio) == 0 {
		return nil, nil
	}
	if limit := s.maxAudioSize(); limit > 0 && int64(len(req.Audio)) > limit {
		return nil, recErrors.NewValidationError(recErrors.ErrCodeInvalidRequest,
			fmt.Sprintf("audio exceeds the limit of %d bytes", limit), nil)
	}
	if req.MIMEType != "" && !strings.HasPrefix(req.MIMEType, "audio/") {
		return nil, recErrors.NewValidationError(recErrors.ErrCodeInvalidFormat,
			fmt.Sprintf("unsupported audio type %q", req.MIMEType), nil)
	}
	return &types.AudioPayload{Data: req.Audio, MIMEType: req.MIMEType}, nil
}

func (s *Server) maxAudioSize() int64 {
	if s.AppConfig == nil {
		return 0
	}
	return s.AppConfig.App.MaxAudioSize
}

func (s *Server) getContextHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "context.get")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Context())
}

func (s *Server) putContextHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "context.put")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	var next types.ProgramContext
	if !s.decode(w, r, span, &next) {
		return
	}
	if !s.unlock(w, r, sess, span) {
		return
	}
	defer sess.Lock()

	if err := sess.UpdateContext(r.Context(), next); err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Failed to update context", err)
		return
	}
	s.Logger.Info("Context updated", "session", sess.ID(), "applicant", next.ApplicantName)
	writeJSON(w, http.StatusOK, sess.Context())
}

func (s *Server) syncContextHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "context.sync")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	if !s.unlock(w, r, sess, span) {
		return
	}
	defer sess.Lock()

	if err := sess.Sync(r.Context()); err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Failed to sync context", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}

func (s *Server) getQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "questions.get")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, QuestionsResponse{Questions: sess.Questions()})
}

func (s *Server) tailorQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "questions.tailor")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	questions, notice, err := sess.TailorQuestions(r.Context())
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Failed to tailor questions", err)
		return
	}
	span.SetAttributes(attribute.Int("questions.count", len(questions)))
	writeJSON(w, http.StatusOK, QuestionsResponse{Questions: questions, Notice: notice})
}

func (s *Server) setRecommenderHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "recommender.set")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	var rec types.RecommenderInfo
	if !s.decode(w, r, span, &rec) {
		return
	}
	if err := sess.SetRecommender(rec); err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Invalid recommender", err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Recommender())
}

func (s *Server) putAnswersHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "answers.put")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	var req AnswersRequest
	if !s.decode(w, r, span, &req) {
		return
	}
	if err := sess.SetAnswers(req.Answers); err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Invalid answers", err)
		return
	}
	writeJSON(w, http.StatusOK, AnswersRequest{Answers: sess.Answers()})
}

func (s *Server) transcribeHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "transcriptions.create")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	var req AudioRequest
	if !s.decode(w, r, span, &req) {
		return
	}
	audio, err := s.audioPayload(&req)
	if err == nil && audio == nil {
		err = recErrors.NewValidationError(recErrors.ErrCodeInvalidRequest, "audio is required", nil)
	}
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Invalid audio", err)
		return
	}
	span.SetAttributes(attribute.Int("request.audio_bytes", len(audio.Data)))

	transcripts, notice, err := sess.Transcribe(r.Context(), *audio)
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Failed to transcribe audio", err)
		return
	}
	writeJSON(w, http.StatusOK, TranscriptionResponse{
		Transcripts: transcripts,
		Answers:     sess.Answers(),
		Notice:      notice,
	})
}

func (s *Server) generateLetterHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "letters.create")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	var req LetterRequest
	if !s.decode(w, r, span, &req) {
		return
	}
	audio, err := s.audioPayload(req.Audio)
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Invalid audio", err)
		return
	}
	span.SetAttributes(
		attribute.Bool("request.use_ai", req.UseAI),
		attribute.Bool("request.has_audio", audio != nil),
	)

	draft, notice, err := sess.Generate(r.Context(), req.UseAI, audio)
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Failed to generate letter", err)
		return
	}
	span.SetAttributes(
		attribute.String("draft.label", string(draft.Label)),
		attribute.Int("draft.length", len(draft.Content)),
	)
	writeJSON(w, http.StatusCreated, LetterResponse{Draft: draft, Notice: notice})
}

func (s *Server) listDraftsHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "drafts.list")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, DraftsResponse{Drafts: sess.Drafts()})
}

func (s *Server) saveDraftHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "drafts.save")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	var req DraftRequest
	if !s.decode(w, r, span, &req) {
		return
	}
	draft, err := sess.SaveManualDraft(r.Context(), req.Content)
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Failed to save draft", err)
		return
	}
	writeJSON(w, http.StatusCreated, LetterResponse{Draft: draft})
}

func (s *Server) exportDraftHandler(w http.ResponseWriter, r *http.Request) {
	r, span := s.startSpan(r, "drafts.export")
	defer span.End()

	sess, ok := s.resolveSession(w, r, span)
	if !ok {
		return
	}
	draft, err := sess.Draft(r.PathValue("id"))
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, "Draft not found", err)
		return
	}

	filename := letter.ExportFilename(sess.Context().ApplicantName)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(draft.Content)); err != nil {
		s.Logger.Warn("Failed to write draft export", "error", err.Error())
	}
}

package ai

import (
	"context"
	"fmt"
	"strings"

	"recletter/internal/config"
	recErrors "recletter/internal/errors"
	"recletter/internal/types"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"
)

// SpeechTranscriber implements AudioAnalyzer on Google Cloud Speech-to-Text.
// Cloud Speech has no notion of questions, so the whole recording is assigned
// to the first question, or to the general key when there are none.
type SpeechTranscriber struct {
	client     *speech.Client
	config     *config.OperationAIConfig
	speech     config.SpeechConfig
	maxRetries int
	breaker    *Breaker[*speechpb.LongRunningRecognizeResponse]
	logger     *recErrors.Logger
}

var _ AudioAnalyzer = (*SpeechTranscriber)(nil)

// NewSpeechTranscriber creates a Cloud Speech client using application default
// credentials or the configured credentials file
func NewSpeechTranscriber(cfg *config.OperationAIConfig, speechCfg config.SpeechConfig, logger *recErrors.Logger) (*SpeechTranscriber, error) {
	var opts []option.ClientOption
	if speechCfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(speechCfg.CredentialsFile))
	}

	client, err := speech.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, recErrors.NewAIError(recErrors.ErrCodeAIServiceFailed, "Failed to create speech client", err)
	}

	retries := 0
	if cfg.MaxRetries != nil {
		retries = *cfg.MaxRetries
	}

	return &SpeechTranscriber{
		client:     client,
		config:     cfg,
		speech:     speechCfg,
		maxRetries: retries,
		breaker:    newBreaker[*speechpb.LongRunningRecognizeResponse](config.OperationAudio+".speech", cfg.CircuitBreaker, callPolicy(cfg), logger),
		logger:     logger.With("service", "speech"),
	}, nil
}

// AnalyzeAudio transcribes the recording as a single answer
func (s *SpeechTranscriber) AnalyzeAudio(ctx context.Context, input types.AnalyzeAudioInput) (types.AnalyzeAudioOutput, *TokenUsage, error) {
	tracer := otel.Tracer("recletter.ai.speech")
	ctx, span := tracer.Start(ctx, "speech.analyze_audio")
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "speech"),
		attribute.Int("input.audio_bytes", len(input.Audio.Data)),
		attribute.String("input.audio_mime", input.Audio.EffectiveMIMEType()),
	)

	if len(input.Audio.Data) == 0 {
		return types.AnalyzeAudioOutput{Transcripts: map[string]string{}}, nil, nil
	}

	if s.config.Timeout != nil && *s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *s.config.Timeout)
		defer cancel()
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: s.recognitionConfig(input.Audio.EffectiveMIMEType()),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: input.Audio.Data},
		},
	}

	resp, err := s.breaker.Execute(func() (*speechpb.LongRunningRecognizeResponse, error) {
		return withRetry(ctx, s.logger, "speech_recognize", s.maxRetries, func() (*speechpb.LongRunningRecognizeResponse, error) {
			return s.recognize(ctx, req)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return types.AnalyzeAudioOutput{}, nil, recErrors.NewAIError(recErrors.ErrCodeTranscriptionFailed,
			"Failed to transcribe audio", err)
	}

	text := joinSpeechResults(resp)
	out := map[string]string{}
	if text != "" {
		out[transcriptTarget(input.Questions)] = text
	}

	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("output.transcript_length", len(text)),
	)
	return types.AnalyzeAudioOutput{Transcripts: out}, nil, nil
}

func (s *SpeechTranscriber) recognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	op, err := s.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

func (s *SpeechTranscriber) recognitionConfig(mimeType string) *speechpb.RecognitionConfig {
	lang := s.speech.LanguageCode
	if lang == "" {
		lang = "en-US"
	}
	return &speechpb.RecognitionConfig{
		LanguageCode:               lang,
		SampleRateHertz:            s.speech.SampleRateHertz,
		Encoding:                   inferSpeechEncoding(mimeType),
		EnableAutomaticPunctuation: true,
	}
}

// inferSpeechEncoding maps a recording MIME type to a Cloud Speech encoding
func inferSpeechEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3"), strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// transcriptTarget picks the key an undivided transcript is filed under
func transcriptTarget(questions []types.Question) string {
	if len(questions) == 0 || questions[0].ID == "" {
		return types.GeneralTranscriptKey
	}
	return questions[0].ID
}

// joinSpeechResults concatenates the top alternative of every result
func joinSpeechResults(resp *speechpb.LongRunningRecognizeResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// GetModelInfo reports the speech backend; there is no model probe to run
func (s *SpeechTranscriber) GetModelInfo(ctx context.Context) *ModelInfo {
	return &ModelInfo{
		Name:      fmt.Sprintf("speech-%s", s.recognitionConfig("").GetLanguageCode()),
		Provider:  "speech",
		Available: s.client != nil,
	}
}

// GetCircuitBreakerStats returns the recognition breaker statistics
func (s *SpeechTranscriber) GetCircuitBreakerStats() map[string]any {
	return map[string]any{
		"ai_operations":   s.breaker.Stats(),
		"overall_healthy": s.breaker.Healthy(),
	}
}

// Close releases the gRPC connection
func (s *SpeechTranscriber) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

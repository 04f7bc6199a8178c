package ai

import (
	"context"
	"fmt"
	"strings"

	"recletter/internal/config"
	"recletter/internal/errors"
	"recletter/internal/types"
)

// Service routes each AI operation to the provider configured for it
type Service struct {
	questions AIProvider
	letter    AIProvider
	audio     AudioAnalyzer
	logger    *errors.Logger
}

var _ Gateway = (*Service)(nil)

// NewService builds one provider per operation from the application config
func NewService(cfg *config.Config, logger *errors.Logger) (*Service, error) {
	questionsCfg := cfg.GetQuestionsConfig()
	questions, err := NewProvider(&questionsCfg, config.OperationQuestions, logger)
	if err != nil {
		return nil, err
	}

	letterCfg := cfg.GetLetterConfig()
	letter, err := NewProvider(&letterCfg, config.OperationLetter, logger)
	if err != nil {
		_ = questions.Close()
		return nil, err
	}

	audioCfg := cfg.GetAudioConfig()
	var audio AudioAnalyzer
	if audioCfg.Provider == "speech" {
		logger.Debug("Initializing AI service", "provider", "speech", "operation_type", config.OperationAudio)
		audio, err = NewSpeechTranscriber(&audioCfg, cfg.AI.Speech, logger)
	} else {
		audio, err = NewProvider(&audioCfg, config.OperationAudio, logger)
	}
	if err != nil {
		_ = questions.Close()
		_ = letter.Close()
		return nil, err
	}

	return NewServiceWithProviders(questions, letter, audio, logger), nil
}

// NewServiceWithProviders assembles a Service from ready-made providers
func NewServiceWithProviders(questions, letter AIProvider, audio AudioAnalyzer, logger *errors.Logger) *Service {
	return &Service{
		questions: questions,
		letter:    letter,
		audio:     audio,
		logger:    logger,
	}
}

// NewProvider creates the provider for a single operation
func NewProvider(cfg *config.OperationAIConfig, operationType string, logger *errors.Logger) (AIProvider, error) {
	logger.Debug("Initializing AI service",
		"provider", cfg.Provider,
		"operation_type", operationType,
		"model", cfg.Model,
		"temperature", *cfg.Temperature,
		"timeout", *cfg.Timeout,
		"max_retries", *cfg.MaxRetries,
		"use_system_prompts", *cfg.UseSystemPrompts)

	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiProvider(cfg, operationType, logger)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", cfg.Provider), nil)
	}
}

// TailorQuestions asks the questions provider for a tailored list and makes the ids usable
func (s *Service) TailorQuestions(ctx context.Context, input types.TailorQuestionsInput) (types.TailorQuestionsOutput, *TokenUsage, error) {
	out, usage, err := s.questions.TailorQuestions(ctx, input)
	if err != nil {
		return out, usage, err
	}
	out.Questions = normalizeQuestions(out.Questions)
	return out, usage, nil
}

// GenerateLetter delegates to the letter provider
func (s *Service) GenerateLetter(ctx context.Context, input types.GenerateLetterInput) (types.GenerateLetterOutput, *TokenUsage, error) {
	return s.letter.GenerateLetter(ctx, input)
}

// AnalyzeAudio delegates to the audio provider
func (s *Service) AnalyzeAudio(ctx context.Context, input types.AnalyzeAudioInput) (types.AnalyzeAudioOutput, *TokenUsage, error) {
	out, usage, err := s.audio.AnalyzeAudio(ctx, input)
	if err == nil && out.Transcripts == nil {
		out.Transcripts = map[string]string{}
	}
	return out, usage, err
}

// GetModelInfo returns information about each operation's model for health checks
func (s *Service) GetModelInfo(ctx context.Context) map[string]*ModelInfo {
	return map[string]*ModelInfo{
		config.OperationQuestions: s.questions.GetModelInfo(ctx),
		config.OperationLetter:    s.letter.GetModelInfo(ctx),
		config.OperationAudio:     s.audio.GetModelInfo(ctx),
	}
}

// GetCircuitBreakerStats collects breaker statistics from providers that have them
func (s *Service) GetCircuitBreakerStats() map[string]any {
	stats := map[string]any{}
	for op, p := range map[string]any{
		config.OperationQuestions: s.questions,
		config.OperationLetter:    s.letter,
		config.OperationAudio:     s.audio,
	} {
		if r, ok := p.(breakerReporter); ok {
			stats[op] = r.GetCircuitBreakerStats()
		}
	}
	return stats
}

// Close releases every provider
func (s *Service) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{s.questions, s.letter, s.audio} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// normalizeQuestions drops blank questions and makes ids unique and non-empty
func normalizeQuestions(in []types.Question) []types.Question {
	out := make([]types.Question, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, q := range in {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" {
			continue
		}
		q.ID = strings.TrimSpace(q.ID)
		if q.ID == "" || seen[q.ID] {
			q.ID = fmt.Sprintf("ai-%d", len(out)+1)
			for seen[q.ID] {
				q.ID += "x"
			}
		}
		seen[q.ID] = true
		out = append(out, q)
	}
	return out
}

// Unavailable is a Gateway stand-in used when the AI service could not be
// built. Every call fails with the construction error so callers can degrade.
type Unavailable struct {
	Err error
}

var _ Gateway = Unavailable{}

func (u Unavailable) TailorQuestions(context.Context, types.TailorQuestionsInput) (types.TailorQuestionsOutput, *TokenUsage, error) {
	return types.TailorQuestionsOutput{}, nil, u.Err
}

func (u Unavailable) GenerateLetter(context.Context, types.GenerateLetterInput) (types.GenerateLetterOutput, *TokenUsage, error) {
	return types.GenerateLetterOutput{}, nil, u.Err
}

func (u Unavailable) AnalyzeAudio(context.Context, types.AnalyzeAudioInput) (types.AnalyzeAudioOutput, *TokenUsage, error) {
	return types.AnalyzeAudioOutput{}, nil, u.Err
}

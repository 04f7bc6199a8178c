package ai

import (
	"context"

	"recletter/internal/types"
)

// AIProvider interface for different AI implementations.
// Every call returns token usage where the backend reports it; callers may ignore it.
type AIProvider interface {
	TailorQuestions(ctx context.Context, input types.TailorQuestionsInput) (types.TailorQuestionsOutput, *TokenUsage, error)
	GenerateLetter(ctx context.Context, input types.GenerateLetterInput) (types.GenerateLetterOutput, *TokenUsage, error)
	AnalyzeAudio(ctx context.Context, input types.AnalyzeAudioInput) (types.AnalyzeAudioOutput, *TokenUsage, error)
	GetModelInfo(ctx context.Context) *ModelInfo
	Close() error
}

// AudioAnalyzer turns a recording into per-question transcripts
type AudioAnalyzer interface {
	AnalyzeAudio(ctx context.Context, input types.AnalyzeAudioInput) (types.AnalyzeAudioOutput, *TokenUsage, error)
	GetModelInfo(ctx context.Context) *ModelInfo
	Close() error
}

// Gateway is the surface the session talks to. Service implements it by routing
// each call to the provider configured for that operation.
type Gateway interface {
	TailorQuestions(ctx context.Context, input types.TailorQuestionsInput) (types.TailorQuestionsOutput, *TokenUsage, error)
	GenerateLetter(ctx context.Context, input types.GenerateLetterInput) (types.GenerateLetterOutput, *TokenUsage, error)
	AnalyzeAudio(ctx context.Context, input types.AnalyzeAudioInput) (types.AnalyzeAudioOutput, *TokenUsage, error)
}

// breakerReporter is implemented by providers that guard calls with circuit breakers
type breakerReporter interface {
	GetCircuitBreakerStats() map[string]any
}

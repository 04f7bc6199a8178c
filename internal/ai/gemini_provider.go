package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"recletter/internal/config"
	recErrors "recletter/internal/errors"
	"recletter/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// GeminiProvider implements AIProvider for Google Gemini
type GeminiProvider struct {
	client         *genai.Client
	config         *config.OperationAIConfig
	operation      string
	circuitBreaker *Breaker[*genai.GenerateContentResponse]
	modelBreaker   *Breaker[*genai.Model]
	logger         *recErrors.Logger
}

var _ AIProvider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a new Gemini provider instance for a specific operation
func NewGeminiProvider(cfg *config.OperationAIConfig, operationType string, logger *recErrors.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, recErrors.NewConfigError(recErrors.ErrCodeMissingAPIKey,
			"Gemini API key is not configured (set GEMINI_API_KEY or ai.apiKey)", nil)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, recErrors.NewAIError(recErrors.ErrCodeAIServiceFailed,
			"Failed to create Gemini client", err)
	}

	return &GeminiProvider{
		client:         client,
		config:         cfg,
		operation:      operationType,
		circuitBreaker: NewCallBreaker(operationType, cfg, logger),
		modelBreaker:   NewModelBreaker(operationType, cfg, logger),
		logger:         logger,
	}, nil
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}

// modelCheckTimeout bounds the readiness probe used by the health endpoint
const modelCheckTimeout = 10 * time.Second

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	modelInfo := &ModelInfo{
		Name:     g.config.Model,
		Provider: "gemini",
	}

	checkCtx, cancel := context.WithTimeout(ctx, modelCheckTimeout)
	defer cancel()

	model, err := g.modelBreaker.Execute(func() (*genai.Model, error) {
		return g.client.Models.Get(checkCtx, g.config.Model, &genai.GetModelConfig{})
	})
	if err != nil {
		modelInfo.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"model", g.config.Model,
			"operation", g.operation,
			"error", err.Error())
		return modelInfo
	}

	modelInfo.Available = true
	modelInfo.DisplayName = model.DisplayName
	modelInfo.Version = model.Version

	g.logger.Debug("Model availability check successful",
		"model", g.config.Model,
		"operation", g.operation,
		"display_name", modelInfo.DisplayName,
		"version", modelInfo.Version)

	return modelInfo
}

// generate runs one GenerateContent call with tracing, the circuit breaker and retries
func (g *GeminiProvider) generate(
	ctx context.Context,
	operationName string,
	contents []*genai.Content,
	systemPrompt string,
	genaiConfig *genai.GenerateContentConfig,
	spanAttributes ...attribute.KeyValue,
) (*genai.GenerateContentResponse, *TokenUsage, error) {
	tracer := otel.Tracer("recletter.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini."+operationName)
	defer span.End()

	if g.config.Timeout != nil && *g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *g.config.Timeout)
		defer cancel()
	}

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.config.Model),
		attribute.Float64("ai.temperature", float64(*g.config.Temperature)),
	)
	span.SetAttributes(spanAttributes...)

	if *g.config.UseSystemPrompts && systemPrompt != "" {
		genaiConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	result, err := g.circuitBreaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return withRetry(ctx, g.logger, operationName, *g.config.MaxRetries, func() (*genai.GenerateContentResponse, error) {
			return g.client.Models.GenerateContent(ctx, g.config.Model, contents, genaiConfig)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, nil, recErrors.NewAIError(recErrors.ErrCodeAIServiceFailed, "Failed to generate content for "+operationName, err)
	}

	tokenUsage := extractTokenUsage(result)
	if tokenUsage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", tokenUsage.InputTokens),
			attribute.Int64("ai.tokens.output", tokenUsage.OutputTokens),
			attribute.Int64("ai.tokens.total", tokenUsage.TotalTokens),
		)
	}
	span.SetAttributes(attribute.Bool("success", true))
	return result, tokenUsage, nil
}

// executeAIOperation is a generic helper for operations whose response is a JSON document
func executeAIOperation[Out any](
	g *GeminiProvider,
	ctx context.Context,
	operationName string,
	contents []*genai.Content,
	systemPrompt string,
	genaiConfig *genai.GenerateContentConfig,
	spanAttributes ...attribute.KeyValue,
) (Out, *TokenUsage, error) {
	var output Out

	result, tokenUsage, err := g.generate(ctx, operationName, contents, systemPrompt, genaiConfig, spanAttributes...)
	if err != nil {
		return output, nil, err
	}

	if err := json.Unmarshal([]byte(result.Text()), &output); err != nil {
		return output, nil, recErrors.NewAIError(ErrCodeResponseParseFailed, "Failed to parse AI response for "+operationName, err)
	}

	return output, tokenUsage, nil
}

// ErrCodeResponseParseFailed marks a model reply that did not match the requested schema
const ErrCodeResponseParseFailed = "AI_RESPONSE_PARSE_FAILED"

// questionsResponse mirrors the questions schema
type questionsResponse struct {
	Questions []types.Question `json:"questions"`
}

// transcriptsResponse mirrors the transcripts schema
type transcriptsResponse struct {
	Transcripts []types.Transcript `json:"transcripts"`
}

// TailorQuestions implements AIProvider interface for question tailoring
func (g *GeminiProvider) TailorQuestions(ctx context.Context, input types.TailorQuestionsInput) (types.TailorQuestionsOutput, *TokenUsage, error) {
	systemPrompt, userPrompt, err := g.promptsFor(config.OperationQuestions, newPromptData(input.Context, input.Recommender))
	if err != nil {
		return types.TailorQuestionsOutput{}, nil, err
	}

	resp, tokenUsage, err := executeAIOperation[questionsResponse](
		g,
		ctx,
		"tailor_questions",
		genai.Text(userPrompt),
		systemPrompt,
		g.buildQuestionsSchema(),
		attribute.Int("input.context_length", len(input.Context.OpportunityContext)),
		attribute.Bool("input.has_recommender", input.Recommender != nil),
	)
	if err != nil {
		return types.TailorQuestionsOutput{}, nil, err
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attribute.Int("output.questions", len(resp.Questions)))
	}

	return types.TailorQuestionsOutput{Questions: resp.Questions}, tokenUsage, nil
}

// GenerateLetter implements AIProvider interface for letter drafting.
// The reply is the letter body as plain text.
func (g *GeminiProvider) GenerateLetter(ctx context.Context, input types.GenerateLetterInput) (types.GenerateLetterOutput, *TokenUsage, error) {
	data := newPromptData(input.Context, input.Recommender)
	for _, i := range input.Answers.Indices() {
		if answer := strings.TrimSpace(input.Answers[i]); answer != "" {
			data.Answers = append(data.Answers, answer)
		}
	}
	data.HasAudio = input.Audio != nil && len(input.Audio.Data) > 0

	systemPrompt, userPrompt, err := g.promptsFor(config.OperationLetter, data)
	if err != nil {
		return types.GenerateLetterOutput{}, nil, err
	}

	parts := []*genai.Part{}
	if data.HasAudio {
		parts = append(parts, genai.NewPartFromBytes(input.Audio.Data, input.Audio.EffectiveMIMEType()))
	}
	parts = append(parts, genai.NewPartFromText(userPrompt))

	genaiConfig := &genai.GenerateContentConfig{}
	if *g.config.Temperature > 0 {
		genaiConfig.Temperature = g.config.Temperature
	}

	result, tokenUsage, err := g.generate(
		ctx,
		"generate_letter",
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		systemPrompt,
		genaiConfig,
		attribute.Int("input.answers", len(data.Answers)),
		attribute.Bool("input.has_audio", data.HasAudio),
	)
	if err != nil {
		return types.GenerateLetterOutput{}, nil, err
	}

	letter := strings.TrimSpace(result.Text())
	if letter == "" {
		return types.GenerateLetterOutput{}, nil, recErrors.NewAIError(ErrCodeResponseParseFailed,
			"AI returned an empty letter", nil)
	}

	return types.GenerateLetterOutput{Letter: letter}, tokenUsage, nil
}

// AnalyzeAudio implements AIProvider interface for transcription and answer mapping
func (g *GeminiProvider) AnalyzeAudio(ctx context.Context, input types.AnalyzeAudioInput) (types.AnalyzeAudioOutput, *TokenUsage, error) {
	data := PromptData{Questions: input.Questions}
	systemPrompt, userPrompt, err := g.promptsFor(config.OperationAudio, data)
	if err != nil {
		return types.AnalyzeAudioOutput{}, nil, err
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(input.Audio.Data, input.Audio.EffectiveMIMEType()),
		genai.NewPartFromText(userPrompt),
	}

	resp, tokenUsage, err := executeAIOperation[transcriptsResponse](
		g,
		ctx,
		"analyze_audio",
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		systemPrompt,
		g.buildTranscriptsSchema(),
		attribute.Int("input.audio_bytes", len(input.Audio.Data)),
		attribute.String("input.audio_mime", input.Audio.EffectiveMIMEType()),
		attribute.Int("input.questions", len(input.Questions)),
	)
	if err != nil {
		return types.AnalyzeAudioOutput{}, nil, err
	}

	return types.AnalyzeAudioOutput{Transcripts: collectTranscripts(resp.Transcripts, input.Questions)}, tokenUsage, nil
}

// collectTranscripts folds model segments into a map keyed by question id.
// Segments naming an unknown id are treated as general context.
func collectTranscripts(segments []types.Transcript, questions []types.Question) map[string]string {
	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}

	out := make(map[string]string)
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		key := seg.QuestionID
		if !known[key] {
			key = types.GeneralTranscriptKey
		}
		if prev, ok := out[key]; ok {
			text = prev + " " + text
		}
		out[key] = text
	}
	return out
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (g *GeminiProvider) GetCircuitBreakerStats() map[string]any {
	return map[string]any{
		"ai_operations":    g.circuitBreaker.Stats(),
		"model_operations": g.modelBreaker.Stats(),
		"overall_healthy":  g.circuitBreaker.Healthy() && g.modelBreaker.Healthy(),
	}
}

// Close implements AIProvider interface
func (g *GeminiProvider) Close() error {
	// The genai client holds no resources in single-shot mode
	return nil
}

// buildQuestionsSchema creates the schema for question tailoring requests
func (g *GeminiProvider) buildQuestionsSchema() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"questions": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"id":             {Type: genai.TypeString},
							"text":           {Type: genai.TypeString},
							"focusQuality":   {Type: genai.TypeString},
							"contextContext": {Type: genai.TypeString},
						},
						Required: []string{"id", "text", "focusQuality", "contextContext"},
					},
				},
			},
			Required: []string{"questions"},
		},
	}

	if *g.config.Temperature > 0 {
		cfg.Temperature = g.config.Temperature
	}

	return cfg
}

// buildTranscriptsSchema creates the schema for audio analysis requests
func (g *GeminiProvider) buildTranscriptsSchema() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"transcripts": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"questionId": {Type: genai.TypeString},
							"text":       {Type: genai.TypeString},
						},
						Required: []string{"questionId", "text"},
					},
				},
			},
			Required: []string{"transcripts"},
		},
	}

	if *g.config.Temperature > 0 {
		cfg.Temperature = g.config.Temperature
	}

	return cfg
}

// promptsFor resolves and renders the system and user prompts of an operation
func (g *GeminiProvider) promptsFor(operation string, data PromptData) (string, string, error) {
	loaded := config.GetPromptsForOperation(operation)
	defaultSystem, defaultUser := defaultPrompts(operation)

	systemPrompt := resolvePrompt(loaded.System, g.config.Prompts.System, defaultSystem)
	userTemplate := resolvePrompt(loaded.User, g.config.Prompts.User, defaultUser)

	userPrompt, err := renderPrompt(operation, userTemplate, data)
	if err != nil {
		return "", "", recErrors.NewConfigError(recErrors.ErrCodeInvalidConfig, "Invalid prompt template", err)
	}
	return systemPrompt, userPrompt, nil
}

func defaultPrompts(operation string) (string, string) {
	switch operation {
	case config.OperationQuestions:
		return DefaultSystemPrompts.TailorQuestions, DefaultUserPrompts.TailorQuestions
	case config.OperationLetter:
		return DefaultSystemPrompts.GenerateLetter, DefaultUserPrompts.GenerateLetter
	case config.OperationAudio:
		return DefaultSystemPrompts.AnalyzeAudio, DefaultUserPrompts.AnalyzeAudio
	default:
		return "", ""
	}
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}

// resolvePrompt selects a prompt by priority: file, then inline config, then the built-in default
func resolvePrompt(loadedFromFile, fromConfig, fromDefault string) string {
	if loadedFromFile != "" {
		return loadedFromFile
	}
	if fromConfig != "" {
		return fromConfig
	}
	return fromDefault
}

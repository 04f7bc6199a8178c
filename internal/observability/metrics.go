package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Business event names accepted by RecordBusinessMetric
const (
	EventLetterGenerated   = "letter_generated"
	EventLetterFallback    = "letter_fallback"
	EventQuestionsTailored = "questions_tailored"
	EventAudioTranscribed  = "audio_transcribed"
	EventDraftSaved        = "draft_saved"
	EventWebhookDispatched = "webhook_dispatched"
	EventContextReloaded   = "context_reloaded"
	EventRateLimitHit      = "rate_limit_hit"
)

// Metrics holds the instruments recletter records
type Metrics struct {
	AIProcessingTime metric.Float64Histogram
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AITokenUsage     metric.Int64Histogram

	LettersGenerated  metric.Int64Counter
	LetterFallbacks   metric.Int64Counter
	LetterLength      metric.Int64Histogram
	QuestionsTailored metric.Int64Counter
	Transcriptions    metric.Int64Counter
	DraftsSaved       metric.Int64Counter

	WebhookDispatches metric.Int64Counter
	ContextReloads    metric.Int64Counter
	RateLimitHits     metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	histograms := []struct {
		target *metric.Float64Histogram
		name   string
		desc   string
		unit   string
	}{
		{&m.AIProcessingTime, "recletter_ai_processing_duration_seconds", "Time spent processing AI requests", "s"},
	}
	for _, h := range histograms {
		if *h.target, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit(h.unit)); err != nil {
			return nil, fmt.Errorf("failed to create %s metric: %w", h.name, err)
		}
	}

	intHistograms := []struct {
		target *metric.Int64Histogram
		name   string
		desc   string
		unit   string
	}{
		{&m.AITokenUsage, "recletter_ai_token_usage_total", "Token usage for AI requests (input, output, total)", "tokens"},
		{&m.LetterLength, "recletter_letter_length_chars", "Length of generated letters", "chars"},
	}
	for _, h := range intHistograms {
		if *h.target, err = meter.Int64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit(h.unit)); err != nil {
			return nil, fmt.Errorf("failed to create %s metric: %w", h.name, err)
		}
	}

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.AIRequestCount, "recletter_ai_requests_total", "Total number of AI requests"},
		{&m.AIErrorCount, "recletter_ai_errors_total", "Total number of AI request errors"},
		{&m.LettersGenerated, "recletter_letters_generated_total", "Total number of letters generated, by draft label"},
		{&m.LetterFallbacks, "recletter_letter_fallbacks_total", "Total number of AI letters replaced by the template"},
		{&m.QuestionsTailored, "recletter_questions_tailored_total", "Total number of question tailoring attempts"},
		{&m.Transcriptions, "recletter_transcriptions_total", "Total number of audio transcription attempts"},
		{&m.DraftsSaved, "recletter_drafts_saved_total", "Total number of manual drafts saved"},
		{&m.WebhookDispatches, "recletter_webhook_dispatches_total", "Total number of spreadsheet webhook dispatches"},
		{&m.ContextReloads, "recletter_context_reloads_total", "Total number of context file reloads"},
		{&m.RateLimitHits, "recletter_rate_limit_hits_total", "Total number of rate limit hits"},
	}
	for _, c := range counters {
		if *c.target, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("failed to create %s metric: %w", c.name, err)
		}
	}

	return m, nil
}

// TokenUsage is the token accounting of one AI call
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// AIOperationResult is what a tracked AI call reports back
type AIOperationResult struct {
	Error      error
	TokenUsage *TokenUsage
}

// TrackAIOperation runs fn inside an "ai.<operation>" span and records
// duration, request, error and token metrics
func (m *Manager) TrackAIOperation(ctx context.Context, operation string, fn func(context.Context) *AIOperationResult) error {
	if !m.Enabled() || m.metrics == nil {
		if result := fn(ctx); result != nil {
			return result.Error
		}
		return nil
	}

	ctx, span := m.Tracer("recletter.ai").Start(ctx, "ai."+operation)
	defer span.End()

	start := time.Now()
	result := fn(ctx)
	duration := time.Since(start).Seconds()

	var err error
	if result != nil {
		err = result.Error
	}

	ai := m.settings.Custom.AIOperations
	if ai.Enabled {
		attrs := []attribute.KeyValue{
			attribute.String("operation", operation),
			attribute.Bool("success", err == nil),
		}
		if ai.TrackDuration {
			m.metrics.AIProcessingTime.Record(ctx, duration, metric.WithAttributes(attrs...))
		}
		m.metrics.AIRequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
		if err != nil {
			m.metrics.AIErrorCount.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		if result != nil && result.TokenUsage != nil {
			m.recordTokenUsage(ctx, operation, result.TokenUsage, ai.TrackTokenUsage, span)
		}
		span.SetAttributes(attrs...)
	}

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}
	return err
}

func (m *Manager) recordTokenUsage(ctx context.Context, operation string, usage *TokenUsage, record bool, span oteltrace.Span) {
	if record {
		for _, tt := range []struct {
			kind  string
			value int64
		}{
			{"input", usage.InputTokens},
			{"output", usage.OutputTokens},
			{"total", usage.TotalTokens},
		} {
			m.metrics.AITokenUsage.Record(ctx, tt.value, metric.WithAttributes(
				attribute.String("operation", operation),
				attribute.String("token_type", tt.kind),
			))
		}
	}
	span.SetAttributes(
		attribute.Int64("ai.tokens.input", usage.InputTokens),
		attribute.Int64("ai.tokens.output", usage.OutputTokens),
		attribute.Int64("ai.tokens.total", usage.TotalTokens),
	)
}

// RecordBusinessMetric counts one domain event. Unknown events are ignored.
func (m *Manager) RecordBusinessMetric(ctx context.Context, event string, success bool, attributes ...attribute.KeyValue) {
	if !m.Enabled() || m.metrics == nil {
		return
	}
	custom := m.settings.Custom

	attrs := attributes
	if custom.BusinessMetrics.TrackSuccessRates {
		attrs = append([]attribute.KeyValue{attribute.Bool("success", success)}, attributes...)
	}
	opt := metric.WithAttributes(attrs...)

	switch event {
	case EventRateLimitHit:
		if custom.Infrastructure.Enabled && custom.Infrastructure.TrackRateLimits {
			m.metrics.RateLimitHits.Add(ctx, 1, opt)
		}
		return
	case EventWebhookDispatched:
		if custom.Infrastructure.Enabled && custom.Infrastructure.TrackWebhooks {
			m.metrics.WebhookDispatches.Add(ctx, 1, opt)
		}
		return
	case EventContextReloaded:
		if custom.Infrastructure.Enabled {
			m.metrics.ContextReloads.Add(ctx, 1, opt)
		}
		return
	}

	if !custom.BusinessMetrics.Enabled {
		return
	}
	switch event {
	case EventLetterGenerated:
		m.metrics.LettersGenerated.Add(ctx, 1, opt)
	case EventLetterFallback:
		m.metrics.LetterFallbacks.Add(ctx, 1, opt)
	case EventQuestionsTailored:
		m.metrics.QuestionsTailored.Add(ctx, 1, opt)
	case EventAudioTranscribed:
		m.metrics.Transcriptions.Add(ctx, 1, opt)
	case EventDraftSaved:
		m.metrics.DraftsSaved.Add(ctx, 1, opt)
	}
}

// RecordLetterLength records the size of a generated letter
func (m *Manager) RecordLetterLength(ctx context.Context, label string, length int) {
	if !m.Enabled() || m.metrics == nil {
		return
	}
	biz := m.settings.Custom.BusinessMetrics
	if !biz.Enabled || !biz.TrackContentSizes {
		return
	}
	m.metrics.LetterLength.Record(ctx, int64(length), metric.WithAttributes(attribute.String("label", label)))
}

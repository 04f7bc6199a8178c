package ai

import (
	"context"
	"errors"

	"recletter/internal/config"
	recErrors "recletter/internal/errors"

	"github.com/sony/gobreaker/v2"
	"google.golang.org/genai"
)

// tripPolicy decides when a breaker opens: at least minRequests calls in the
// current interval with a failure ratio of ratio or more.
type tripPolicy struct {
	minRequests uint32
	ratio       float64
}

func (p tripPolicy) ready(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < p.minRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= p.ratio
}

func callPolicy(cfg *config.OperationAIConfig) tripPolicy {
	return tripPolicy{
		minRequests: cfg.CircuitBreaker.MinRequests,
		ratio:       cfg.CircuitBreaker.FailureThreshold,
	}
}

// model probes only feed the health endpoint, so they trip late
var modelProbePolicy = tripPolicy{minRequests: 5, ratio: 0.8}

// Breaker guards one kind of upstream call. A nil *Breaker is valid and
// passes every call straight through.
type Breaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

func newBreaker[T any](name string, cfg config.CircuitBreakerConfig, policy tripPolicy, logger *recErrors.Logger) *Breaker[T] {
	if !cfg.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: policy.ready,
		// a caller hanging up says nothing about the upstream
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
				"min_requests", policy.minRequests,
				"failure_ratio", policy.ratio)
		},
	}
	return &Breaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// NewCallBreaker guards GenerateContent calls of one operation, tripping on the
// operation's configured request floor and failure threshold
func NewCallBreaker(operation string, cfg *config.OperationAIConfig, logger *recErrors.Logger) *Breaker[*genai.GenerateContentResponse] {
	return newBreaker[*genai.GenerateContentResponse](operation+".generate", cfg.CircuitBreaker, callPolicy(cfg), logger)
}

// NewModelBreaker guards model availability probes of one operation
func NewModelBreaker(operation string, cfg *config.OperationAIConfig, logger *recErrors.Logger) *Breaker[*genai.Model] {
	return newBreaker[*genai.Model](operation+".model", cfg.CircuitBreaker, modelProbePolicy, logger)
}

// Execute runs fn unless the breaker is open
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// Healthy reports whether the breaker is closed
func (b *Breaker[T]) Healthy() bool {
	return b == nil || b.cb.State() == gobreaker.StateClosed
}

// Stats describes the breaker state and its counters for the current interval
func (b *Breaker[T]) Stats() map[string]any {
	if b == nil {
		return map[string]any{"enabled": false}
	}
	counts := b.cb.Counts()
	return map[string]any{
		"name":    b.cb.Name(),
		"state":   b.cb.State().String(),
		"enabled": true,
		"counts": map[string]uint32{
			"requests":              counts.Requests,
			"total_successes":       counts.TotalSuccesses,
			"total_failures":        counts.TotalFailures,
			"consecutive_successes": counts.ConsecutiveSuccesses,
			"consecutive_failures":  counts.ConsecutiveFailures,
		},
	}
}

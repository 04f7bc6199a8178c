package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	recErrors "recletter/internal/errors"
)

// getHealthCheckTimeout returns the configured health check timeout
func (s *Server) getHealthCheckTimeout() time.Duration {
	if s.AppConfig == nil || s.AppConfig.Observability.HealthCheck.Timeout <= 0 {
		return 10 * time.Second
	}
	return s.AppConfig.Observability.HealthCheck.Timeout
}

// healthHandler reports the service status and the AI models behind it.
// Without a working AI service the API still answers from the template, so
// the status is "degraded" rather than a failure.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "recletter",
		"version": s.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}

	aiStatus, aiHealthy := s.checkAIModelsHealth(r.Context())
	response["ai_models"] = aiStatus
	if s.AI != nil {
		response["circuit_breakers"] = s.AI.GetCircuitBreakerStats()
	}
	if s.watcher != nil {
		response["context_watcher"] = map[string]any{"running": s.watcher.IsRunning()}
	}

	if !aiHealthy {
		response["status"] = "degraded"
	}
	writeJSON(w, http.StatusOK, response)
}

// checkAIModelsHealth asks each operation's model whether it is reachable
func (s *Server) checkAIModelsHealth(ctx context.Context) (map[string]any, bool) {
	if s.AI == nil {
		msg := "AI service is not configured"
		if s.AIError != nil {
			msg = s.AIError.Error()
		}
		return map[string]any{"available": false, "error": msg}, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.getHealthCheckTimeout())
	defer cancel()

	healthy := true
	status := make(map[string]any)
	for op, info := range s.AI.GetModelInfo(ctx) {
		status[op] = info
		if info == nil || !info.Available {
			healthy = false
		}
	}
	return status, healthy
}

// statsHandler provides server statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "recletter",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.Settings.MaxRequestSize,
			"uptime_seconds":         int64(time.Since(s.started).Seconds()),
		},
	}

	if s.Sessions != nil {
		response["sessions"] = map[string]any{
			"active": s.Sessions.Len(),
			"ids":    s.Sessions.IDs(),
		}
	}

	limits := s.Settings.RateLimit
	response["rate_limit_config"] = map[string]any{
		"enabled":          limits.Enabled,
		"requests_per_min": limits.RequestsPerMin,
		"burst_capacity":   limits.BurstCapacity,
		"by_ip":            limits.ByIP,
		"by_api_key":       limits.ByAPIKey,
	}
	response["rate_limiting"] = map[string]any{"enabled": false}
	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	}

	writeJSON(w, http.StatusOK, response)
}

// parseJSONRequest parses JSON request body into the provided struct
func parseJSONRequest(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("content-type must be application/json")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("request body too large (limit is %d bytes)", maxBytesErr.Limit)
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("Failed to close request body: %v", err)
		}
	}()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// statusForError maps an application error onto an HTTP status
func statusForError(appErr *recErrors.AppError) int {
	switch appErr.Code {
	case recErrors.ErrCodeDraftNotFound:
		return http.StatusNotFound
	case recErrors.ErrCodeAdminLocked:
		return http.StatusForbidden
	}
	switch appErr.Type {
	case recErrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case recErrors.ErrorTypeConflict:
		return http.StatusConflict
	case recErrors.ErrorTypeAuth:
		return http.StatusUnauthorized
	case recErrors.ErrorTypeConfig:
		return http.StatusServiceUnavailable
	case recErrors.ErrorTypeNetwork, recErrors.ErrorTypeAI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError writes err with the status of its application error type
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, title string, err error) {
	appErr, ok := recErrors.AsAppError(err)
	if !ok {
		s.Logger.LogError(err, title, "endpoint", r.URL.Path)
		writeErrorResponse(w, title, err.Error(), http.StatusInternalServerError)
		return
	}

	status := statusForError(appErr)
	if status >= http.StatusInternalServerError {
		s.Logger.LogError(err, title, "endpoint", r.URL.Path)
	} else {
		s.Logger.Debug(title, "endpoint", r.URL.Path, "code", appErr.Code, "status", status)
	}
	writeJSON(w, status, ErrorResponse{
		Error:   title,
		Message: appErr.Message,
		Code:    appErr.Code,
	})
}

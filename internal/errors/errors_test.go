package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	appErr := NewNetworkError(ErrCodeWebhookDispatch, "webhook dispatch failed", cause).
		WithContext("url", "https://example.test/hook")
	wrapped := fmt.Errorf("sync: %w", appErr)

	assert.True(t, IsType(wrapped, ErrorTypeNetwork))
	assert.True(t, HasCode(wrapped, ErrCodeWebhookDispatch))
	assert.False(t, IsType(cause, ErrorTypeNetwork), "plain errors carry no type")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "WEBHOOK_DISPATCH_FAILED: webhook dispatch failed (caused by: connection refused)", appErr.Error())

	got, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Same(t, appErr, got)
	assert.Equal(t, "https://example.test/hook", got.Context["url"])
}

func TestConstructorsSetType(t *testing.T) {
	tests := []struct {
		err  *AppError
		want ErrorType
	}{
		{NewValidationError(ErrCodeNoAnswers, "m", nil), ErrorTypeValidation},
		{NewIOError(ErrCodeFileNotFound, "m", nil), ErrorTypeIO},
		{NewAIError(ErrCodeAIServiceFailed, "m", nil), ErrorTypeAI},
		{NewNetworkError(ErrCodeWebhookDispatch, "m", nil), ErrorTypeNetwork},
		{NewConfigError(ErrCodeMissingAPIKey, "m", nil), ErrorTypeConfig},
		{NewConflictError(ErrCodeRecommenderLocked, "m", nil), ErrorTypeConflict},
		{NewAuthError(ErrCodeAdminLocked, "m", nil), ErrorTypeAuth},
		{NewInternalError(ErrCodeStoreFailed, "m", nil), ErrorTypeInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Type)
			assert.Equal(t, tt.err.Code+": m", tt.err.Error())
		})
	}
}

func TestLoggerLogErrorExpandsAppError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelDebug)

	err := NewValidationError(ErrCodeNoAnswers, "no answers", nil).WithContext("session", "abc")
	logger.LogError(fmt.Errorf("generate: %w", err), "Generation rejected", "attempt", 2)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record), buf.String())
	assert.Equal(t, ErrCodeNoAnswers, record["error_code"])
	assert.Equal(t, "validation", record["error_type"])
	assert.Equal(t, "abc", record["session"])
	assert.Equal(t, float64(2), record["attempt"])
}

func TestLoggerLogErrorPlainError(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, slog.LevelInfo).LogError(fmt.Errorf("disk full"), "Save failed")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "disk full", record["error"])
	assert.Equal(t, "Save failed", record["msg"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := New("verbose")
	assert.Error(t, err)
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewTo(&buf, "warn")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.With("component", "store").Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"component":"store"`)
}

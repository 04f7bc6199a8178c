// Package webhook posts the program context to a spreadsheet endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recletter/internal/config"
	"recletter/internal/errors"
	"recletter/internal/letter"
	"recletter/internal/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ContentType is sent with every dispatch; the endpoint reads the JSON body as plain text
const ContentType = "text/plain;charset=utf-8"

// Payload is the row appended by the spreadsheet endpoint
type Payload struct {
	Values []string `json:"values"`
}

// BuildPayload flattens a context into a spreadsheet row
func BuildPayload(ctx types.ProgramContext, now time.Time) Payload {
	ctx = ctx.Normalized()

	questionTexts := make([]string, 0)
	for _, q := range letter.ActiveQuestions(ctx) {
		questionTexts = append(questionTexts, q.Text)
	}

	return Payload{Values: []string{
		now.UTC().Format(time.RFC3339),
		ctx.ApplicantName,
		ctx.TargetProgramName,
		ctx.OpportunityContext,
		ctx.SubmissionDeadline,
		strings.Join(ctx.CoreQualities, ", "),
		strings.Join(ctx.SpecificAnecdotes, " | "),
		strings.Join(questionTexts, " | "),
	}}
}

// Dispatcher sends payloads without waiting on the endpoint's verdict
type Dispatcher struct {
	client     *http.Client
	defaultURL string
	logger     *errors.Logger
	now        func() time.Time
}

// NewDispatcher creates a dispatcher with a traced HTTP client
func NewDispatcher(cfg config.WebhookConfig, logger *errors.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		defaultURL: cfg.URL,
		logger:     logger,
		now:        time.Now,
	}
}

// ResolveURL returns the context's own webhook URL, or the configured one
func (d *Dispatcher) ResolveURL(ctx types.ProgramContext) string {
	if url := strings.TrimSpace(ctx.WebhookURL); url != "" {
		return url
	}
	return strings.TrimSpace(d.defaultURL)
}

// Dispatch posts the context row. Success means the request left without a
// transport error; the response status is logged but not checked.
func (d *Dispatcher) Dispatch(ctx context.Context, programCtx types.ProgramContext) error {
	url := d.ResolveURL(programCtx)
	if url == "" {
		return errors.NewConfigError(errors.ErrCodeMissingWebhookURL,
			"webhook URL is not configured", nil)
	}

	body, err := json.Marshal(BuildPayload(programCtx, d.now()))
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeWebhookDispatch, "failed to encode webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeMissingWebhookURL,
			fmt.Sprintf("invalid webhook URL: %s", url), err)
	}
	req.Header.Set("Content-Type", ContentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.NewNetworkError(errors.ErrCodeWebhookDispatch, "webhook dispatch failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	d.logger.Info("Webhook dispatched",
		"applicant", programCtx.ApplicantName,
		"status", resp.StatusCode)
	return nil
}

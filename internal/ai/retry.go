package ai

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	recErrors "recletter/internal/errors"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxBackoff = 30 * time.Second

// withRetry calls fn up to retries+1 times, backing off between attempts.
// Only errors isRetryableError accepts are retried.
func withRetry[T any](ctx context.Context, logger *recErrors.Logger, name string, retries int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := 0
	for attempts <= retries {
		if attempts > 0 {
			logger.Warn("Retrying AI call", "operation", name, "attempt", attempts, "max_retries", retries, "error", lastErr.Error())
			select {
			case <-time.After(backoffDelay(attempts)):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		attempts++

		out, err := fn()
		if err == nil {
			if attempts > 1 {
				logger.Info("AI call succeeded after retry", "operation", name, "attempts", attempts)
			}
			return out, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	logger.LogError(lastErr, "AI call failed", "operation", name, "attempts", attempts)
	return zero, fmt.Errorf("%s failed after %d attempt(s): %w", name, attempts, lastErr)
}

// backoffDelay doubles from one second per attempt with up to 10% jitter,
// capped at maxBackoff
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := maxBackoff
	if attempt <= 5 {
		base = time.Second << (attempt - 1)
	}
	if n, err := rand.Int(rand.Reader, big.NewInt(int64(base/10)+1)); err == nil {
		base += time.Duration(n.Int64())
	}
	return min(base, maxBackoff)
}

// isRetryableError accepts transport failures and the throttling or
// server-side statuses of the REST and gRPC APIs
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.Code)
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return isRetryableStatus(genaiErr.Code)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
			return true
		}
	}
	return false
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"recletter/internal/config"
	"recletter/internal/errors"
	"recletter/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const defaultIdleEviction = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client. Buckets idle for longer than
// the eviction age are dropped by a background sweep.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rate    rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time

	done   chan struct{}
	once   sync.Once
	logger *errors.Logger
}

// NewRateLimiter creates a limiter allowing cfg.RequestsPerMin per client with
// bursts of up to cfg.BurstCapacity. cfg.Window sets how long an idle client
// keeps its bucket.
func NewRateLimiter(cfg config.RateLimitConfig, logger *errors.Logger) *RateLimiter {
	idle := cfg.Window
	if idle <= 0 {
		idle = defaultIdleEviction
	}
	burst := cfg.BurstCapacity
	if burst <= 0 {
		burst = 1
	}

	m := &RateLimiter{
		buckets: make(map[string]*clientBucket),
		rate:    rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		done:    make(chan struct{}),
		logger:  logger,
	}
	go m.sweepLoop()
	return m
}

func (m *RateLimiter) bucket(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(m.rate, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = m.now()
	return b.limiter
}

// Allow spends one token for key. When none is left it returns false and how
// long the client should wait before retrying.
func (m *RateLimiter) Allow(key string) (bool, time.Duration) {
	limiter := m.bucket(key)
	now := m.now()
	if limiter.AllowN(now, 1) {
		return true, 0
	}
	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

// GetStats returns current rate limiter statistics
func (m *RateLimiter) GetStats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]any{
		"active_clients":  len(m.buckets),
		"rate_per_minute": float64(m.rate) * 60.0,
		"burst_capacity":  m.burst,
		"idle_eviction":   m.idle.String(),
	}
}

func (m *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(m.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

// sweep drops the buckets of clients idle for longer than the eviction age
func (m *RateLimiter) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idle)
	evicted := 0
	for key, b := range m.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(m.buckets, key)
			evicted++
		}
	}
	if m.logger != nil && evicted > 0 {
		m.logger.Debug("Rate limiter evicted idle clients", "evicted", evicted, "remaining", len(m.buckets))
	}
}

// Close stops the background sweep
func (m *RateLimiter) Close() {
	m.once.Do(func() { close(m.done) })
}

// rateLimitMiddleware rejects clients over their budget with 429 and records the hit
func (s *Server) rateLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	if !s.Settings.RateLimit.Enabled || s.RateLimiter == nil {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r, s.Settings.RateLimit.ByAPIKey, s.Settings.RateLimit.ByIP)
			if key == "" {
				next(w, r)
				return
			}

			allowed, wait := s.RateLimiter.Allow(key)
			if !allowed {
				s.Logger.Info("Rate limit exceeded",
					"key", maskAPIKey(key),
					"endpoint", r.URL.Path,
					"session", r.Header.Get(HeaderSessionID),
					"retry_after", wait.String())
				s.Observability.RecordBusinessMetric(r.Context(), observability.EventRateLimitHit, true,
					attribute.String("endpoint", r.URL.Path),
					attribute.String("method", r.Method))
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeErrorResponse(w, "Rate limit exceeded", "Too many requests", http.StatusTooManyRequests)
				return
			}

			next(w, r)
		}
	}
}

// rateLimitKey picks the bucket for a request: the API key when keyed limits
// are on and one is present, otherwise the client IP
func rateLimitKey(r *http.Request, byAPIKey, byIP bool) string {
	if byAPIKey {
		if key := requestAPIKey(r); key != "" {
			return "api:" + key
		}
	}
	if byIP {
		return "ip:" + getClientIP(r)
	}
	return ""
}

// requestAPIKey reads the X-API-Key header or a Bearer token
func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	return ""
}

// getClientIP prefers proxy headers and falls back to the connection address
func getClientIP(r *http.Request) string {
	for ip := range strings.SplitSeq(r.Header.Get("X-Forwarded-For"), ",") {
		if ip = strings.TrimSpace(ip); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package server

import (
	"io"
	"os"
	"time"

	"recletter/internal/ai"
	"recletter/internal/config"
	recErrors "recletter/internal/errors"
	"recletter/internal/observability"
	"recletter/internal/session"
	"recletter/internal/store"
)

// Request headers understood by the API
const (
	HeaderSessionID       = "X-Session-ID"
	HeaderAdminPassphrase = "X-Admin-Passphrase"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Server serves the interview API for every session in the registry
type Server struct {
	Version   string
	AppConfig *config.Config
	Settings  config.ServerConfig

	Logger      *recErrors.Logger
	RateLimiter *RateLimiter

	// Session state and collaborators, built by Start or set directly in tests
	Sessions      *session.Registry
	AI            *ai.Service
	AIError       error
	Observability *observability.Manager

	apiKeys map[string]bool
	store   store.Store
	watcher *store.ContextWatcher
	out     io.Writer
	started time.Time
}

// NewServer creates a server from the application config. cfg.Server must
// already carry any command-line overrides.
func NewServer(cfg *config.Config, version string, logger *recErrors.Logger) *Server {
	keys := make(map[string]bool, len(cfg.Server.APIKeys))
	for _, key := range cfg.Server.APIKeys {
		if key != "" {
			keys[key] = true
		}
	}

	s := &Server{
		Version:   version,
		AppConfig: cfg,
		Settings:  cfg.Server,
		Logger:    logger,
		apiKeys:   keys,
		out:       os.Stderr,
		started:   time.Now(),
	}
	if cfg.Server.RateLimit.Enabled {
		s.RateLimiter = NewRateLimiter(cfg.Server.RateLimit, logger)
	}
	return s
}

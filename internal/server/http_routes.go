package server

import "net/http"

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	rateLimit := s.rateLimitMiddleware()
	requestLimit := s.requestSizeLimitMiddleware()
	api := func(h http.HandlerFunc) http.HandlerFunc {
		return rateLimit(s.authMiddleware(requestLimit(h)))
	}

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	if h := s.Observability.PrometheusHandler(); h != nil {
		mux.Handle("GET "+s.Observability.PrometheusEndpoint(), h)
	}

	mux.HandleFunc("GET /context", api(s.getContextHandler))
	mux.HandleFunc("PUT /context", api(s.putContextHandler))
	mux.HandleFunc("POST /context/sync", api(s.syncContextHandler))
	mux.HandleFunc("GET /questions", api(s.getQuestionsHandler))
	mux.HandleFunc("POST /questions/tailor", api(s.tailorQuestionsHandler))
	mux.HandleFunc("POST /recommender", api(s.setRecommenderHandler))
	mux.HandleFunc("PUT /answers", api(s.putAnswersHandler))
	mux.HandleFunc("POST /transcriptions", api(s.transcribeHandler))
	mux.HandleFunc("POST /letters", api(s.generateLetterHandler))
	mux.HandleFunc("GET /drafts", api(s.listDraftsHandler))
	mux.HandleFunc("POST /drafts", api(s.saveDraftHandler))
	mux.HandleFunc("GET /drafts/{id}/export", api(s.exportDraftHandler))

	return mux
}

// Handler returns the routed API wrapped in the tracing middleware
func (s *Server) Handler() http.Handler {
	return s.Observability.HTTPMiddleware()(s.setupRoutes())
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication if no API keys are configured
		if len(s.apiKeys) == 0 {
			next(w, r)
			return
		}

		apiKey := requestAPIKey(r)

		if apiKey == "" {
			s.Logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", r.RemoteAddr)
			writeErrorResponse(w, "Missing API key", "X-API-Key header or Authorization Bearer token required", http.StatusUnauthorized)
			return
		}

		if !s.apiKeys[apiKey] {
			s.Logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", r.RemoteAddr,
				"api_key_prefix", maskAPIKey(apiKey))
			writeErrorResponse(w, "Invalid API key", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		s.Logger.Debug("API authentication successful",
			"endpoint", r.URL.Path,
			"client_ip", r.RemoteAddr,
			"api_key_prefix", maskAPIKey(apiKey))

		next(w, r)
	}
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.Settings.MaxRequestSize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, s.Settings.MaxRequestSize)
			}

			next(w, r)
		}
	}
}

// maskAPIKey masks an API key for logging (shows only first 8 characters)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}

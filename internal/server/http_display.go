package server

import "fmt"

// displayServerInfo shows server configuration information
func (s *Server) displayServerInfo() {
	s.displayEndpoints()
	s.displayAuthInfo()
	s.displayRequestLimitInfo()
	s.displayRateLimitInfo()
	s.displayAIInfo()
}

// displayEndpoints shows available API endpoints
func (s *Server) displayEndpoints() {
	lines := []string{
		"Available endpoints:",
		"  GET  /health               - Health check",
		"  GET  /stats                - Server statistics",
		"  GET  /context              - Program context",
		"  PUT  /context              - Replace program context (X-Admin-Passphrase)",
		"  POST /context/sync         - Send context to the spreadsheet (X-Admin-Passphrase)",
		"  GET  /questions            - Interview questions",
		"  POST /questions/tailor     - Tailor questions with AI",
		"  POST /recommender          - Set recommender details",
		"  PUT  /answers              - Set interview answers",
		"  POST /transcriptions       - Transcribe a recorded memo",
		"  POST /letters              - Generate a letter",
		"  GET  /drafts               - List drafts",
		"  POST /drafts               - Save an edited draft",
		"  GET  /drafts/{id}/export   - Download a draft",
	}
	if s.Observability.PrometheusHandler() != nil {
		lines = append(lines, fmt.Sprintf("  GET  %-22s - Prometheus metrics", s.Observability.PrometheusEndpoint()))
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(s.out, line)
	}
}

// displayAuthInfo shows authentication configuration
func (s *Server) displayAuthInfo() {
	if len(s.apiKeys) > 0 {
		_, _ = fmt.Fprintf(s.out, "API authentication: ENABLED (%d keys configured)\n", len(s.apiKeys))
		_, _ = fmt.Fprintln(s.out, "Include 'X-API-Key: <your-key>' header in API requests")
	} else {
		_, _ = fmt.Fprintln(s.out, "API authentication: DISABLED (no API keys configured)")
		_, _ = fmt.Fprintln(s.out, "WARNING: API endpoints are publicly accessible!")
	}
}

// displayRequestLimitInfo shows request size limit configuration
func (s *Server) displayRequestLimitInfo() {
	if s.Settings.MaxRequestSize > 0 {
		_, _ = fmt.Fprintf(s.out, "Request size limit: %d bytes (%.1f MB)\n", s.Settings.MaxRequestSize, float64(s.Settings.MaxRequestSize)/(1024*1024))
	} else {
		_, _ = fmt.Fprintln(s.out, "Request size limit: DISABLED")
		_, _ = fmt.Fprintln(s.out, "WARNING: No request size limits configured!")
	}
}

// displayRateLimitInfo shows rate limiting configuration
func (s *Server) displayRateLimitInfo() {
	if s.Settings.RateLimit.Enabled {
		_, _ = fmt.Fprintf(s.out, "Rate limiting: ENABLED (%d requests/min, burst: %d)\n",
			s.Settings.RateLimit.RequestsPerMin, s.Settings.RateLimit.BurstCapacity)
		if s.Settings.RateLimit.ByAPIKey {
			_, _ = fmt.Fprintln(s.out, "  - Per API key rate limiting enabled")
		}
		if s.Settings.RateLimit.ByIP {
			_, _ = fmt.Fprintln(s.out, "  - Per IP address rate limiting enabled")
		}
	} else {
		_, _ = fmt.Fprintln(s.out, "Rate limiting: DISABLED")
		_, _ = fmt.Fprintln(s.out, "WARNING: No rate limiting configured!")
	}
}

// displayAIInfo shows whether letters can be written by AI
func (s *Server) displayAIInfo() {
	if s.AI != nil {
		_, _ = fmt.Fprintln(s.out, "AI service: ENABLED")
		return
	}
	_, _ = fmt.Fprintln(s.out, "AI service: UNAVAILABLE (letters fall back to the template)")
}

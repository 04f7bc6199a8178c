package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"recletter/internal/ai"
	"recletter/internal/observability"
	"recletter/internal/session"
	"recletter/internal/store"
	"recletter/internal/types"
	"recletter/internal/webhook"
)

// Start builds the server's components, serves until ctx is cancelled and
// then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	if err := s.initializeComponents(ctx); err != nil {
		s.shutdownComponents()
		return err
	}
	defer s.shutdownComponents()

	httpServer := s.setupHTTPServer()
	if err := s.configureTLS(httpServer); err != nil {
		return err
	}

	s.displayServerInfo()

	return s.startWithGracefulShutdown(ctx, httpServer, s.setupMetricsServer())
}

// initializeComponents sets up observability, the store, the AI service and
// the session registry, then imports and watches the context file
func (s *Server) initializeComponents(ctx context.Context) error {
	cfg := s.AppConfig

	if s.Observability == nil {
		om, err := observability.NewManager(observability.SettingsFromConfig(cfg, s.Version))
		if err != nil {
			return fmt.Errorf("failed to initialize observability: %w", err)
		}
		s.Observability = om
	}

	st, err := store.New(cfg.Store, s.Logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	s.store = st

	var gateway ai.Gateway
	if svc, err := ai.NewService(cfg, s.Logger); err != nil {
		s.AIError = err
		s.Logger.Warn("AI service unavailable, letters will use the template", "error", err.Error())
		gateway = ai.Unavailable{Err: err}
	} else {
		s.AI = svc
		gateway = svc
	}

	s.Sessions = session.NewRegistry(session.Deps{
		Store:           st,
		Gateway:         gateway,
		Syncer:          webhook.NewDispatcher(cfg.Webhook, s.Logger),
		Observability:   s.Observability,
		Logger:          s.Logger,
		AdminPassphrase: cfg.Admin.Passphrase,
	})

	return s.setupContextFile(ctx)
}

// setupContextFile imports the configured context file into the default
// session and, when enabled, re-imports it on every change
func (s *Server) setupContextFile(ctx context.Context) error {
	storeCfg := s.AppConfig.Store
	if storeCfg.ContextFile == "" {
		return nil
	}

	programCtx, err := store.LoadContextFile(storeCfg.ContextFile)
	if err != nil {
		return fmt.Errorf("failed to load context file: %w", err)
	}
	if err := s.Sessions.ApplyContext(ctx, storeCfg.SessionID, programCtx); err != nil {
		return fmt.Errorf("failed to apply context file: %w", err)
	}
	s.Logger.Info("Context file imported", "file", storeCfg.ContextFile, "session", storeCfg.SessionID)

	if !storeCfg.WatchContext {
		return nil
	}
	s.watcher = store.NewContextWatcher(storeCfg.ContextFile, storeCfg.DebounceDelay, s.applyContextChange, s.Logger)
	if err := s.watcher.Start(); err != nil {
		return fmt.Errorf("failed to watch context file: %w", err)
	}
	return nil
}

// applyContextChange is the context watcher callback
func (s *Server) applyContextChange(programCtx types.ProgramContext) {
	ctx := context.Background()
	sessionID := s.AppConfig.Store.SessionID
	err := s.Sessions.ApplyContext(ctx, sessionID, programCtx)
	s.Observability.RecordBusinessMetric(ctx, observability.EventContextReloaded, err == nil)
	if err != nil {
		s.Logger.LogError(err, "Failed to apply changed context file", "session", sessionID)
	}
}

// setupHTTPServer creates and configures the HTTP server
func (s *Server) setupHTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.Settings.Host, s.Settings.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.Settings.ReadTimeout,
		WriteTimeout: s.Settings.WriteTimeout,
		IdleTimeout:  s.Settings.IdleTimeout,
	}
}

// setupMetricsServer returns a separate scrape server when Prometheus is
// configured on its own port
func (s *Server) setupMetricsServer() *http.Server {
	handler := s.Observability.PrometheusHandler()
	port := s.AppConfig.Observability.Prometheus.Port
	if handler == nil || port == "" || port == s.Settings.Port {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(s.Observability.PrometheusEndpoint(), handler)
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.Settings.Host, port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// startWithGracefulShutdown starts the HTTP server and handles graceful shutdown
func (s *Server) startWithGracefulShutdown(ctx context.Context, server, metricsServer *http.Server) error {
	serverErrors := make(chan error, 2)

	go func() {
		s.Logger.Info("Starting HTTP server",
			"address", server.Addr,
			"tls_enabled", server.TLSConfig != nil)

		var err error
		if server.TLSConfig != nil {
			// Certificates are already loaded into the TLS config
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	if metricsServer != nil {
		go func() {
			s.Logger.Info("Starting metrics server", "address", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrors <- err
			}
		}()
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
		s.Logger.Info("Received shutdown signal, starting graceful shutdown")
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
		return s.performGracefulShutdown(server)
	}
}

// performGracefulShutdown handles the graceful shutdown process
func (s *Server) performGracefulShutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.Logger.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
		return server.Close()
	}

	s.Logger.Info("Server shutdown completed successfully")
	return nil
}

// shutdownComponents releases everything initializeComponents created
func (s *Server) shutdownComponents() {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.Logger.LogError(err, "Failed to stop context watcher")
		}
	}
	if s.RateLimiter != nil {
		s.RateLimiter.Close()
		s.Logger.Info("Rate limiter cleaned up")
	}
	if s.AI != nil {
		if err := s.AI.Close(); err != nil {
			s.Logger.LogError(err, "Failed to close AI service")
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.Logger.LogError(err, "Failed to close session store")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Observability.Shutdown(ctx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown observability")
	}
}

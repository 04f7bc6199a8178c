package cli

import (
	"fmt"

	"recletter/internal/server"

	"github.com/spf13/cobra"
)

type serveOptions struct {
	port     string
	host     string
	tlsMode  string
	certFile string
	keyFile  string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start an HTTP server exposing the drafting session as a JSON API.

Available endpoints:
- GET/PUT /context, POST /context/sync: program context and spreadsheet sync
- GET /questions, POST /questions/tailor: interview questions
- POST /recommender, PUT /answers: recommender intake
- POST /transcriptions: transcribe a base64 audio memo
- POST /letters: generate a letter (useAI selects AI or template)
- GET/POST /drafts, GET /drafts/{id}/export: draft history
- GET /health, GET /stats, GET /metrics: operations

Requests pick a session with the X-Session-ID header. PUT /context and
POST /context/sync need the X-Admin-Passphrase header.

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled, server
- Use --cert-file and --key-file for TLS certificates`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.port, "port", "p", "", "Port to listen on (default from config)")
	cmd.Flags().StringVar(&opts.host, "host", "", "Host to bind to (default from config)")
	cmd.Flags().StringVar(&opts.tlsMode, "tls-mode", "", "TLS mode: disabled, server (overrides config)")
	cmd.Flags().StringVar(&opts.certFile, "cert-file", "", "Server certificate file (PEM, overrides config)")
	cmd.Flags().StringVar(&opts.keyFile, "key-file", "", "Server private key file (PEM, overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	// Flags override the loaded config only when given
	flags := cmd.Flags()
	override := func(name string, target *string, value string) {
		if flags.Changed(name) {
			*target = value
		}
	}
	override("port", &cfg.Server.Port, opts.port)
	override("host", &cfg.Server.Host, opts.host)
	override("tls-mode", &cfg.Server.TLS.Mode, opts.tlsMode)
	override("cert-file", &cfg.Server.TLS.CertFile, opts.certFile)
	override("key-file", &cfg.Server.TLS.KeyFile, opts.keyFile)

	if err := cfg.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	srv := server.NewServer(cfg, Version, logger)
	return srv.Start(cmd.Context())
}

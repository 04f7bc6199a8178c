package cli

import (
	"context"
	"fmt"
	"io"

	"recletter/internal/ai"
	"recletter/internal/common"
	"recletter/internal/config"
	"recletter/internal/errors"
	"recletter/internal/session"
	"recletter/internal/store"
	"recletter/internal/webhook"

	"github.com/spf13/cobra"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "recletter",
		Short: "A CLI tool for drafting recommendation letters",
		Long: `Recletter helps a recommender write a letter for an applicant.
The applicant describes the opportunity and the qualities to highlight; the
recommender answers a short interview, in text or as a recorded memo, and
recletter drafts the letter with AI or from a fixed template.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("session", "", "Session id (default from config)")

	rootCmd.AddCommand(newQuestionsCmd())
	rootCmd.AddCommand(newComposeCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newTranscribeCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newDraftsCmd())
	rootCmd.AddCommand(newContextCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command line with cfg and logger attached to ctx
func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger) error {
	return ExecuteArgs(ctx, cfg, logger, nil, nil)
}

// ExecuteArgs runs the command tree with explicit arguments and output.
// A nil args slice reads os.Args; a nil out writes to os.Stdout.
func ExecuteArgs(ctx context.Context, cfg *config.Config, logger *errors.Logger, args []string, out io.Writer) error {
	// Attach the config and logger to the context, making them available to all subcommands
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)

	rootCmd := NewRootCmd()
	if args != nil {
		rootCmd.SetArgs(args)
	}
	if out != nil {
		rootCmd.SetOut(out)
		rootCmd.SetErr(out)
	}
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context") // Should not happen if properly initialized
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context") // Should not happen if properly initialized
}

// addOutputFlags registers the --output and --format flags shared by commands that print results
func addOutputFlags(cmd *cobra.Command, cmdConfig *common.CommandConfig) {
	cmd.Flags().StringVarP(&cmdConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&cmdConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
}

// prepareOutput applies the default format and validates it
func prepareOutput(cmd *cobra.Command, cmdConfig *common.CommandConfig) error {
	cfg := getConfigFromContext(cmd.Context())
	if cmdConfig.OutputFormat == "" {
		cmdConfig.OutputFormat = cfg.App.DefaultFormat
	}
	cmdConfig.Stdout = cmd.OutOrStdout()
	return common.ValidateOutputFormat(cmdConfig.OutputFormat, cfg.App.SupportedFormats)
}

func sessionID(cmd *cobra.Command) string {
	if f := cmd.Flag("session"); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	if cfg := getConfigFromContext(cmd.Context()); cfg.Store.SessionID != "" {
		return cfg.Store.SessionID
	}
	return store.DefaultSessionID
}

// openSession loads the configured session. With withAI the AI service is
// attached; when it cannot be built the session falls back to the template.
func openSession(cmd *cobra.Command, withAI bool) (*session.Session, func(), error) {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	st, err := store.New(cfg.Store, logger)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{st.Close}
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("Failed to release resource", "error", err.Error())
			}
		}
	}

	deps := session.Deps{
		Store:           st,
		Syncer:          webhook.NewDispatcher(cfg.Webhook, logger),
		Logger:          logger,
		AdminPassphrase: cfg.Admin.Passphrase,
	}
	if withAI {
		svc, err := ai.NewService(cfg, logger)
		if err != nil {
			logger.Warn("AI service unavailable, letters will use the template", "error", err.Error())
			deps.Gateway = ai.Unavailable{Err: err}
		} else {
			deps.Gateway = svc
			closers = append(closers, svc.Close)
		}
	}

	s, err := session.New(sessionID(cmd), deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := s.Load(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return s, cleanup, nil
}

func printNotice(cmd *cobra.Command, n *session.Notice) {
	if n == nil {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", n.Level, n.Message)
}

package cli

import (
	"fmt"

	"recletter/internal/common"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var contextFile, passphrase string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Send the program context to the spreadsheet webhook",
		Long: `Send the session's program context to the spreadsheet webhook as one row.
The webhook URL comes from the context's webhookUrl, or from webhook.url in
the configuration. --context imports a context file into the session first.
The admin passphrase is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := getConfigFromContext(ctx)
			logger := getLoggerFromContext(ctx)

			s, cleanup, err := openSession(cmd, false)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := s.Unlock(passphrase); err != nil {
				return err
			}
			if contextFile != "" {
				files, err := common.NewFileProcessor(logger, cfg.App.MaxFileSize, 0).ValidateAndReadFiles(contextFile)
				if err != nil {
					return err
				}
				programCtx, err := common.ParseContext(&files[0])
				if err != nil {
					return err
				}
				if err := s.UpdateContext(ctx, programCtx); err != nil {
					return err
				}
			}

			if err := s.Sync(ctx); err != nil {
				return fmt.Errorf("failed to sync context: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Context sent to the spreadsheet.")
			return nil
		},
	}
	cmd.Flags().StringVar(&contextFile, "context", "", "Context file imported into the session before syncing")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Admin passphrase")
	return cmd
}

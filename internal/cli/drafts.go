package cli

import (
	"fmt"
	"io"

	"recletter/internal/common"

	"github.com/spf13/cobra"
)

func newDraftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Work with the session's saved drafts",
	}
	cmd.AddCommand(newDraftsListCmd())
	cmd.AddCommand(newDraftsExportCmd())
	cmd.AddCommand(newDraftsSaveCmd())
	return cmd
}

func newDraftsListCmd() *cobra.Command {
	var output common.CommandConfig
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved drafts, newest first",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return prepareOutput(cmd, &output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openSession(cmd, false)
			if err != nil {
				return err
			}
			defer cleanup()
			return common.NewOutputHandler(getLoggerFromContext(cmd.Context())).HandleOutput(s.Drafts(), output)
		},
	}
	addOutputFlags(cmd, &output)
	return cmd
}

func newDraftsExportCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export [draft-id]",
		Short: "Write a draft to a text file",
		Long: `Write a draft to Recommendation_<applicant>_Draft.txt in --dir.
Without a draft id the newest draft is exported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openSession(cmd, false)
			if err != nil {
				return err
			}
			defer cleanup()

			id := ""
			if len(args) == 1 {
				id = args[0]
			} else if drafts := s.Drafts(); len(drafts) > 0 {
				id = drafts[0].ID
			} else {
				return fmt.Errorf("no drafts saved yet")
			}
			if _, err := s.RestoreDraft(id); err != nil {
				return err
			}

			if dir == "" {
				dir = getConfigFromContext(cmd.Context()).App.ExportDir
			}
			path, err := s.Export(dir)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory to write into (default from config)")
	return cmd
}

func newDraftsSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save [letter-file]",
		Short: "Save an edited letter as a \"Manual Edit\" draft",
		Long:  `Save an edited letter as a new draft. Use "-" to read the letter from stdin.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := getConfigFromContext(ctx)
			logger := getLoggerFromContext(ctx)

			var content []byte
			var err error
			if args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				var files []common.InputFile
				files, err = common.NewFileProcessor(logger, cfg.App.MaxFileSize, 0).ValidateAndReadFiles(args[0])
				if err == nil {
					content = files[0].Data
				}
			}
			if err != nil {
				return err
			}

			s, cleanup, err := openSession(cmd, false)
			if err != nil {
				return err
			}
			defer cleanup()

			d, err := s.SaveManualDraft(ctx, string(content))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), d.ID)
			return nil
		},
	}
}

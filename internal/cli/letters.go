package cli

import (
	"fmt"

	"recletter/internal/common"
	"recletter/internal/types"

	"github.com/spf13/cobra"
)

type letterOptions struct {
	output      common.CommandConfig
	contextFile string
	audioFile   string
	exportDir   string
}

func newComposeCmd() *cobra.Command {
	opts := &letterOptions{}
	cmd := &cobra.Command{
		Use:   "compose [interview-file]",
		Short: "Compose a letter from the template",
		Long: `Compose a recommendation letter from the built-in template.
The interview file (YAML or JSON) holds the recommender's details and the
answers keyed by question position. No AI service is needed. The letter is
added to the session's drafts.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return prepareOutput(cmd, &opts.output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLetter(cmd, args[0], false, opts)
		},
	}
	addLetterFlags(cmd, opts)
	return cmd
}

func newGenerateCmd() *cobra.Command {
	opts := &letterOptions{}
	cmd := &cobra.Command{
		Use:   "generate [interview-file]",
		Short: "Generate a letter with AI",
		Long: `Generate a recommendation letter with AI from an interview file and,
optionally, a recorded memo (--audio). When the AI service is not configured
or the call fails, the letter is composed from the template instead and
labelled "Template (Fallback)". The letter is added to the session's drafts.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return prepareOutput(cmd, &opts.output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLetter(cmd, args[0], true, opts)
		},
	}
	addLetterFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.audioFile, "audio", "", "Recorded memo to send along with the answers")
	return cmd
}

func addLetterFlags(cmd *cobra.Command, opts *letterOptions) {
	addOutputFlags(cmd, &opts.output)
	cmd.Flags().StringVar(&opts.contextFile, "context", "", "Context file imported into the session first")
	cmd.Flags().StringVar(&opts.exportDir, "export-dir", "", "Also write the letter as a text file into this directory")
}

func runLetter(cmd *cobra.Command, interviewFile string, useAI bool, opts *letterOptions) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)
	fp := common.NewFileProcessor(logger, cfg.App.MaxFileSize, cfg.App.MaxAudioSize)

	paths := []string{interviewFile}
	if opts.contextFile != "" {
		paths = append(paths, opts.contextFile)
	}
	if opts.audioFile != "" {
		paths = append(paths, opts.audioFile)
	}
	files, err := fp.ValidateAndReadFiles(paths...)
	if err != nil {
		return err
	}

	iv, err := common.ParseInterview(files[0])
	if err != nil {
		return err
	}

	var audio *types.AudioPayload
	if opts.audioFile != "" {
		if audio, err = common.AudioPayload(files[len(files)-1]); err != nil {
			return err
		}
	}
	if err := common.ValidateInterview(iv, audio != nil, true); err != nil {
		return err
	}

	s, cleanup, err := openSession(cmd, useAI)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.contextFile != "" {
		programCtx, err := common.ParseContext(&files[1])
		if err != nil {
			return err
		}
		if err := s.ImportContext(ctx, programCtx); err != nil {
			return err
		}
	}
	if err := s.SetRecommender(*iv.Recommender); err != nil {
		return err
	}
	if err := s.SetAnswers(iv.Answers); err != nil {
		return err
	}

	logger.Info("Starting letter generation",
		"session", s.ID(),
		"use_ai", useAI,
		"answers", len(iv.Answers.Indices()),
		"has_audio", audio != nil,
		"output_format", opts.output.OutputFormat)

	draft, notice, err := s.Generate(ctx, useAI, audio)
	if err != nil {
		return fmt.Errorf("failed to generate letter: %w", err)
	}
	printNotice(cmd, notice)
	logger.Info("Letter draft saved", "session", s.ID(), "draft_id", draft.ID, "label", string(draft.Label))

	if opts.exportDir != "" {
		path, err := s.Export(opts.exportDir)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Letter exported to %s\n", path)
	}

	return common.NewOutputHandler(logger).HandleOutput(types.GenerateLetterOutput{Letter: draft.Content}, opts.output)
}

package cli

import (
	"context"
	"fmt"

	"recletter/internal/ai"
	"recletter/internal/common"
	"recletter/internal/letter"
	"recletter/internal/types"

	"github.com/spf13/cobra"
)

type questionsOptions struct {
	output    common.CommandConfig
	tailor    bool
	save      bool
	interview string
}

func newQuestionsCmd() *cobra.Command {
	opts := &questionsOptions{}
	cmd := &cobra.Command{
		Use:   "questions [context-file]",
		Short: "List the interview questions for a program context",
		Long: `List the interview questions a recommender is asked.
Without a context file the session's stored context is used. The list is the
context's custom questions when it has any, otherwise it is derived from the
core qualities and anecdotes.

With --tailor the AI proposes questions suited to the context, and to the
recommender when --interview names an interview file. --save stores the
tailored list as the session's custom questions.`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.save && !opts.tailor {
				return fmt.Errorf("--save requires --tailor")
			}
			return prepareOutput(cmd, &opts.output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.tailor {
				return runTailorQuestions(cmd, args, opts)
			}
			return runListQuestions(cmd, args, opts)
		},
	}
	addOutputFlags(cmd, &opts.output)
	cmd.Flags().BoolVar(&opts.tailor, "tailor", false, "Ask the AI for tailored questions")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Store tailored questions in the session")
	cmd.Flags().StringVar(&opts.interview, "interview", "", "Interview file whose recommender the questions are tailored to")
	return cmd
}

// resolveContext reads the context file in args, or the stored session context
func resolveContext(cmd *cobra.Command, args []string) (types.ProgramContext, error) {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())
	if len(args) > 0 {
		files, err := common.NewFileProcessor(logger, cfg.App.MaxFileSize, cfg.App.MaxAudioSize).ValidateAndReadFiles(args[0])
		if err != nil {
			return types.ProgramContext{}, err
		}
		return common.ParseContext(&files[0])
	}
	s, cleanup, err := openSession(cmd, false)
	if err != nil {
		return types.ProgramContext{}, err
	}
	defer cleanup()
	return s.Context(), nil
}

func runListQuestions(cmd *cobra.Command, args []string, opts *questionsOptions) error {
	logger := getLoggerFromContext(cmd.Context())
	programCtx, err := resolveContext(cmd, args)
	if err != nil {
		return err
	}
	out := types.TailorQuestionsOutput{Questions: letter.ActiveQuestions(programCtx)}
	return common.NewOutputHandler(logger).HandleOutput(out, opts.output)
}

func runTailorQuestions(cmd *cobra.Command, args []string, opts *questionsOptions) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	programCtx, err := resolveContext(cmd, args)
	if err != nil {
		return err
	}

	aiService, err := ai.NewService(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer func() { _ = aiService.Close() }()

	var paths []string
	if opts.interview != "" {
		paths = append(paths, opts.interview)
	}

	createInput := func(files []common.InputFile) (types.TailorQuestionsInput, error) {
		input := types.TailorQuestionsInput{Context: programCtx}
		if len(files) == 1 {
			iv, err := common.ParseInterview(files[0])
			if err != nil {
				return input, err
			}
			input.Recommender = iv.Recommender
		}
		return input, nil
	}

	logDetails := func(input types.TailorQuestionsInput, cfg common.CommandConfig) {
		logger.Info("Starting question tailoring",
			"applicant", input.Context.ApplicantName,
			"has_recommender", input.Recommender != nil,
			"output_format", cfg.OutputFormat)
	}

	var tailored []types.Question
	tailorOperation := func(ctx context.Context, input types.TailorQuestionsInput) (types.TailorQuestionsOutput, *ai.TokenUsage, error) {
		out, usage, err := aiService.TailorQuestions(ctx, input)
		tailored = out.Questions
		return out, usage, err
	}

	runner := common.Runner{Logger: logger, MaxFileSize: cfg.App.MaxFileSize, MaxAudioSize: cfg.App.MaxAudioSize}
	if err := common.RunAICommand(ctx, runner, "questions", opts.output, paths, createInput, tailorOperation, logDetails); err != nil {
		return fmt.Errorf("failed to tailor questions: %w", err)
	}

	if opts.save && len(tailored) > 0 {
		s, cleanup, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer cleanup()
		programCtx.CustomQuestions = tailored
		if err := s.ImportContext(ctx, programCtx); err != nil {
			return fmt.Errorf("failed to save tailored questions: %w", err)
		}
		logger.Info("Tailored questions saved", "session", s.ID(), "count", len(tailored))
	}
	logger.Info("Question tailoring completed successfully")
	return nil
}

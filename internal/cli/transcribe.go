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

func newTranscribeCmd() *cobra.Command {
	var output common.CommandConfig
	var contextFile string

	cmd := &cobra.Command{
		Use:   "transcribe [audio-file]",
		Short: "Transcribe a recorded memo into per-question answers",
		Long: `Transcribe a recorded memo and split it across the interview questions.
Supported formats are webm, ogg, opus, wav, flac, mp3 and m4a. The questions
come from --context, or from the session's stored context. Speech that does
not answer a question is listed under "general".`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return prepareOutput(cmd, &output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, args[0], contextFile, output)
		},
	}
	addOutputFlags(cmd, &output)
	cmd.Flags().StringVar(&contextFile, "context", "", "Context file that defines the questions")
	return cmd
}

func runTranscribe(cmd *cobra.Command, audioFile, contextFile string, output common.CommandConfig) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	paths := []string{audioFile}
	var stored *types.ProgramContext
	if contextFile != "" {
		paths = append(paths, contextFile)
	} else {
		programCtx, err := resolveContext(cmd, nil)
		if err != nil {
			return err
		}
		stored = &programCtx
	}

	aiService, err := ai.NewService(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer func() { _ = aiService.Close() }()

	createInput := func(files []common.InputFile) (types.AnalyzeAudioInput, error) {
		audio, err := common.AudioPayload(files[0])
		if err != nil {
			return types.AnalyzeAudioInput{}, err
		}
		programCtx := stored
		if programCtx == nil {
			parsed, err := common.ParseContext(&files[1])
			if err != nil {
				return types.AnalyzeAudioInput{}, err
			}
			programCtx = &parsed
		}
		return types.AnalyzeAudioInput{Audio: *audio, Questions: letter.ActiveQuestions(*programCtx)}, nil
	}

	logDetails := func(input types.AnalyzeAudioInput, cfg common.CommandConfig) {
		logger.Info("Starting audio transcription",
			"audio_bytes", len(input.Audio.Data),
			"mime_type", input.Audio.MIMEType,
			"questions", len(input.Questions),
			"output_format", cfg.OutputFormat)
	}

	transcribeOperation := func(ctx context.Context, input types.AnalyzeAudioInput) (types.AnalyzeAudioOutput, *ai.TokenUsage, error) {
		return aiService.AnalyzeAudio(ctx, input)
	}

	runner := common.Runner{Logger: logger, MaxFileSize: cfg.App.MaxFileSize, MaxAudioSize: cfg.App.MaxAudioSize}
	if err := common.RunAICommand(ctx, runner, "audio", output, paths, createInput, transcribeOperation, logDetails); err != nil {
		return fmt.Errorf("failed to transcribe audio: %w", err)
	}
	logger.Info("Audio transcription completed successfully")
	return nil
}

package common

import (
	"context"
	"fmt"

	"recletter/internal/ai"
	"recletter/internal/errors"
	"recletter/internal/observability"
)

// CreateInputFunc builds the AI input from the files named on the command line
type CreateInputFunc[Input any] func(files []InputFile) (Input, error)

// LogDetailsFunc logs the start of an operation
type LogDetailsFunc[Input any] func(input Input, cfg CommandConfig)

// AIOperationFunc is a generic function signature for any AI operation with context and token usage.
type AIOperationFunc[Input, Output any] func(context.Context, Input) (Output, *ai.TokenUsage, error)

// Runner carries what every file-based AI command shares
type Runner struct {
	Logger        *errors.Logger
	Observability *observability.Manager
	MaxFileSize   int64
	MaxAudioSize  int64
}

// RunAICommand reads the input files, runs one traced AI operation and writes the formatted result
func RunAICommand[Input, Output any](
	ctx context.Context,
	runner Runner,
	operation string,
	cmdConfig CommandConfig,
	args []string,
	createInput CreateInputFunc[Input],
	aiOperation AIOperationFunc[Input, Output],
	logDetails LogDetailsFunc[Input],
) error {
	logger := runner.Logger
	fileProcessor := NewFileProcessor(logger, runner.MaxFileSize, runner.MaxAudioSize)
	outputHandler := NewOutputHandler(logger)

	files, err := fileProcessor.ValidateAndReadFiles(args...)
	if err != nil {
		return err
	}

	input, err := createInput(files)
	if err != nil {
		return fmt.Errorf("failed to create input from files: %w", err)
	}

	logDetails(input, cmdConfig)

	var result Output
	err = runner.Observability.TrackAIOperation(ctx, operation, func(ctx context.Context) *observability.AIOperationResult {
		var usage *ai.TokenUsage
		var opErr error
		result, usage, opErr = aiOperation(ctx, input)
		if usage != nil {
			logger.Info("AI token usage",
				"operation", operation,
				"input_tokens", usage.InputTokens,
				"output_tokens", usage.OutputTokens,
				"total_tokens", usage.TotalTokens)
		}
		return &observability.AIOperationResult{Error: opErr, TokenUsage: (*observability.TokenUsage)(usage)}
	})
	if err != nil {
		return err
	}

	return outputHandler.HandleOutput(result, cmdConfig)
}

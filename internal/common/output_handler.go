package common

import (
	"fmt"
	"io"
	"os"

	"recletter/internal/errors"
	"recletter/internal/formatters"
)

// CommandConfig names where and how a command prints its result
type CommandConfig struct {
	OutputFile   string
	OutputFormat string
	Stdout       io.Writer // nil means os.Stdout
}

func (c CommandConfig) writer() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

// OutputHandler renders command results through the formatter registry
type OutputHandler struct {
	files    *FileProcessor
	registry *formatters.FormatterRegistry
	logger   *errors.Logger
}

// NewOutputHandler creates a handler using the global formatter registry
func NewOutputHandler(logger *errors.Logger) *OutputHandler {
	return &OutputHandler{
		files:    NewFileProcessor(logger, 0, 0),
		registry: formatters.GlobalRegistry,
		logger:   logger,
	}
}

// HandleOutput renders data in the requested format and writes it to the
// output file, or to stdout when none is set
func (oh *OutputHandler) HandleOutput(data any, config CommandConfig) error {
	if err := oh.files.ValidateOutputFile(config.OutputFile); err != nil {
		return err
	}

	rendered, err := oh.registry.Format(data, config.OutputFormat)
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("Failed to format output as %s", config.OutputFormat), err)
	}

	if config.OutputFile == "" {
		_, err = io.WriteString(config.writer(), rendered)
		return err
	}
	if err := oh.files.WriteFile(config.OutputFile, rendered); err != nil {
		return err
	}
	oh.logger.Info("Output written", "file", config.OutputFile, "format", config.OutputFormat)
	return nil
}

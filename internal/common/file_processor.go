package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"recletter/internal/errors"
	"recletter/internal/store"
	"recletter/internal/types"
	"recletter/internal/utils"

	"gopkg.in/yaml.v3"
)

// InputFile is one file named on the command line
type InputFile struct {
	Path string
	Data []byte
}

// Interview holds a recommender's details and answers, read from a YAML or JSON file
type Interview struct {
	Recommender *types.RecommenderInfo `json:"recommender,omitempty" yaml:"recommender,omitempty"`
	Answers     types.AnswerMap        `json:"answers" yaml:"answers"`
}

// FileProcessor handles common file operations
type FileProcessor struct {
	logger       *errors.Logger
	maxFileSize  int64
	maxAudioSize int64
}

// NewFileProcessor creates a file processor; zero limits disable size checks
func NewFileProcessor(logger *errors.Logger, maxFileSize, maxAudioSize int64) *FileProcessor {
	return &FileProcessor{logger: logger, maxFileSize: maxFileSize, maxAudioSize: maxAudioSize}
}

// ReadFile reads content from a file with proper error handling
func (fp *FileProcessor) ReadFile(filename string) ([]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	defer func() {
		if err := file.Close(); err != nil && fp.logger != nil {
			fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}
	return content, nil
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename, content string) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return errors.NewIOError("DIRECTORY_CREATE_FAILED",
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	if err := os.WriteFile(filename, []byte(content), 0600); err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}
	return nil
}

// ValidateAndReadFiles validates and reads the input files in order
func (fp *FileProcessor) ValidateAndReadFiles(filenames ...string) ([]InputFile, error) {
	files := make([]InputFile, len(filenames))

	for i, filename := range filenames {
		if err := utils.ValidateInputFile(filename); err != nil {
			return nil, errors.NewValidationError("INVALID_INPUT_FILE",
				fmt.Sprintf("Invalid file %s", filename), err)
		}

		kind := utils.KindOf(filename)
		limit := fp.maxFileSize
		if kind == utils.KindAudio {
			limit = fp.maxAudioSize
		}
		if err := utils.ValidateFileSize(filename, limit); err != nil {
			return nil, errors.NewValidationError("INVALID_INPUT_FILE",
				fmt.Sprintf("Invalid file %s", filename), err)
		}
		if kind == utils.KindUnknown && fp.logger != nil {
			fp.logger.Warn("File type not recognized, reading as-is", "filename", filename)
		}

		content, err := fp.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		files[i] = InputFile{Path: filename, Data: content}
	}

	return files, nil
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}
	return nil
}

// ParseContext decodes a context file, or returns the default context for a nil file
func ParseContext(file *InputFile) (types.ProgramContext, error) {
	if file == nil {
		return types.DefaultProgramContext(), nil
	}
	return store.ParseContext(file.Data, filepath.Ext(file.Path))
}

// ParseInterview decodes an interview file; .json is JSON, anything else YAML
func ParseInterview(file InputFile) (Interview, error) {
	var iv Interview
	var err error
	if utils.GetFileExtension(file.Path) == ".json" {
		dec := json.NewDecoder(bytes.NewReader(file.Data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&iv)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(file.Data))
		dec.KnownFields(true)
		err = dec.Decode(&iv)
	}
	if err != nil && err != io.EOF {
		return Interview{}, errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("invalid interview file %s", file.Path), err)
	}
	if iv.Answers == nil {
		iv.Answers = types.AnswerMap{}
	}
	return iv, nil
}

// AudioPayload wraps an audio file, inferring its MIME type from the extension
func AudioPayload(file InputFile) (*types.AudioPayload, error) {
	mimeType := utils.AudioMIMEType(file.Path)
	if mimeType == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("%s is not a supported audio file", file.Path), nil)
	}
	if len(file.Data) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("audio file %s is empty", file.Path), nil)
	}
	return &types.AudioPayload{Data: file.Data, MIMEType: mimeType}, nil
}

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"recletter/internal/errors"
	"recletter/internal/types"

	"gopkg.in/yaml.v3"
)

// LoadContextFile reads a program context from a YAML or JSON file.
// The format follows the extension; anything other than .json is parsed as YAML.
func LoadContextFile(path string) (types.ProgramContext, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.ProgramContext{}, errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("context file not found: %s", path), err)
		}
		return types.ProgramContext{}, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("failed to read context file: %s", path), err)
	}
	return ParseContext(raw, filepath.Ext(path))
}

// ParseContext decodes a program context document; ext selects the format
func ParseContext(raw []byte, ext string) (types.ProgramContext, error) {
	var ctx types.ProgramContext

	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ctx); err != nil {
			return types.ProgramContext{}, errors.NewValidationError(errors.ErrCodeInvalidFormat,
				"invalid JSON context document", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&ctx); err != nil {
			return types.ProgramContext{}, errors.NewValidationError(errors.ErrCodeInvalidFormat,
				"invalid YAML context document", err)
		}
	}

	ctx = ctx.Normalized()
	if ctx.CustomQuestions == nil {
		ctx.CustomQuestions = []types.Question{}
	}
	return ctx, nil
}

// MarshalContextYAML renders a context in the same YAML layout LoadContextFile reads
func MarshalContextYAML(ctx types.ProgramContext) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ctx.Normalized()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

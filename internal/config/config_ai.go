package config

import (
	"cmp"
	"fmt"
)

// AI operation names
const (
	OperationQuestions = "questions"
	OperationLetter    = "letter"
	OperationAudio     = "audio"
)

// resolve fills every unset field of op from the global AI settings
func (c *Config) resolve(op OperationAIConfig) OperationAIConfig {
	g := c.AI
	op.Provider = cmp.Or(op.Provider, g.Provider)
	op.Model = cmp.Or(op.Model, g.Model)
	op.APIKey = cmp.Or(op.APIKey, g.APIKey)
	if op.Timeout == nil {
		op.Timeout = &g.Timeout
	}
	if op.MaxRetries == nil {
		op.MaxRetries = &g.MaxRetries
	}
	if op.Temperature == nil {
		op.Temperature = &g.Temperature
	}
	if op.UseSystemPrompts == nil {
		op.UseSystemPrompts = &g.UseSystemPrompts
	}
	return op
}

// GetQuestionsConfig returns the resolved question tailoring settings
func (c *Config) GetQuestionsConfig() OperationAIConfig { return c.resolve(c.AI.Questions) }

// GetLetterConfig returns the resolved letter generation settings
func (c *Config) GetLetterConfig() OperationAIConfig { return c.resolve(c.AI.Letter) }

// GetAudioConfig returns the resolved audio analysis settings
func (c *Config) GetAudioConfig() OperationAIConfig { return c.resolve(c.AI.Audio) }

// GetOperationConfig returns the resolved configuration of a named operation
func (c *Config) GetOperationConfig(operation string) (OperationAIConfig, error) {
	switch operation {
	case OperationQuestions:
		return c.GetQuestionsConfig(), nil
	case OperationLetter:
		return c.GetLetterConfig(), nil
	case OperationAudio:
		return c.GetAudioConfig(), nil
	default:
		return OperationAIConfig{}, fmt.Errorf("unknown AI operation: %s", operation)
	}
}

func (c *Config) operationConfigs() map[string]*OperationAIConfig {
	return map[string]*OperationAIConfig{
		OperationQuestions: &c.AI.Questions,
		OperationLetter:    &c.AI.Letter,
		OperationAudio:     &c.AI.Audio,
	}
}

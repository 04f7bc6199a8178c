package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrompt(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadPromptsFromFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		AI: AIConfig{
			Letter: OperationAIConfig{
				Prompts: PromptConfig{
					SystemFile: writePrompt(t, dir, "system.letter.md", "Test system prompt for letters"),
					UserFile:   writePrompt(t, dir, "user.letter.md", "Write a letter for {{.ApplicantName}}\n\n"),
				},
			},
		},
	}

	require.NoError(t, cfg.loadPromptsFromFiles())

	letter := GetPromptsForOperation(OperationLetter)
	assert.Equal(t, "Test system prompt for letters", letter.System)
	assert.Equal(t, "Write a letter for {{.ApplicantName}}", letter.User, "content is trimmed")
	assert.Equal(t, LoadedPrompts{}, GetPromptsForOperation(OperationAudio))

	// a reload without files clears what the previous load published
	cfg.AI.Letter.Prompts = PromptConfig{}
	require.NoError(t, cfg.loadPromptsFromFiles())
	assert.Equal(t, LoadedPrompts{}, GetPromptsForOperation(OperationLetter))
}

func TestLoadPromptsFromFiles_EmptyFile(t *testing.T) {
	cfg := &Config{AI: AIConfig{Questions: OperationAIConfig{
		Prompts: PromptConfig{SystemFile: writePrompt(t, t.TempDir(), "empty.md", "  \n")},
	}}}

	err := cfg.loadPromptsFromFiles()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "system questions prompt file")
	assert.Contains(t, err.Error(), "is empty")
}

func TestValidatePromptFiles(t *testing.T) {
	dir := t.TempDir()
	valid := writePrompt(t, dir, "valid.md", "Valid content")

	cfg := &Config{AI: AIConfig{Questions: OperationAIConfig{Prompts: PromptConfig{SystemFile: valid}}}}
	assert.NoError(t, cfg.validatePromptFiles())

	cfg.AI.Questions.Prompts.SystemFile = filepath.Join(dir, "missing-system.md")
	cfg.AI.Audio.Prompts.UserFile = filepath.Join(dir, "missing-user.md")
	err := cfg.validatePromptFiles()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing-system.md")
	assert.Contains(t, err.Error(), "missing-user.md")
}

func TestOperationConfigFallbacks(t *testing.T) {
	retries := 5
	cfg := &Config{
		AI: AIConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			Timeout:     60 * time.Second,
			APIKey:      "global-key",
			MaxRetries:  3,
			Temperature: 0.7,
			Letter: OperationAIConfig{
				Model:      "gemini-2.5-pro",
				MaxRetries: &retries,
			},
		},
	}

	letter := cfg.GetLetterConfig()
	assert.Equal(t, "gemini-2.5-pro", letter.Model)
	assert.Equal(t, 5, *letter.MaxRetries)
	assert.Equal(t, "global-key", letter.APIKey)
	assert.Equal(t, 60*time.Second, *letter.Timeout)

	questions, err := cfg.GetOperationConfig(OperationQuestions)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", questions.Model)

	_, err = cfg.GetOperationConfig("tailor")
	assert.Error(t, err)
}

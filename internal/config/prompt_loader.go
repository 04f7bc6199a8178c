package config

import (
	stderrors "errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// promptFile is one configured prompt file of one operation
type promptFile struct {
	operation string
	kind      string // "system" or "user"
	path      string
}

func (p promptFile) String() string { return p.kind + " " + p.operation + " prompt" }

// promptFiles lists every configured prompt file in operation order
func (c *Config) promptFiles() []promptFile {
	ops := c.operationConfigs()
	var files []promptFile
	for _, name := range sortedOperations(ops) {
		prompts := ops[name].Prompts
		if prompts.SystemFile != "" {
			files = append(files, promptFile{name, "system", prompts.SystemFile})
		}
		if prompts.UserFile != "" {
			files = append(files, promptFile{name, "user", prompts.UserFile})
		}
	}
	return files
}

// validatePromptFiles reports every configured prompt file that does not exist
func (c *Config) validatePromptFiles() error {
	var errs []error
	for _, f := range c.promptFiles() {
		abs, err := filepath.Abs(f.path)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid path for %s: %s", f, f.path))
			continue
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("%s file not found: %s", f, abs))
		}
	}
	return stderrors.Join(errs...)
}

// loadPromptsFromFiles reads every configured prompt file and publishes the
// result for GetPromptsForOperation. Operations without files are reset.
func (c *Config) loadPromptsFromFiles() error {
	loaded := map[string]LoadedPrompts{}
	for name := range c.operationConfigs() {
		loaded[name] = LoadedPrompts{}
	}

	files := c.promptFiles()
	for _, f := range files {
		content, err := readPromptFile(f)
		if err != nil {
			return err
		}
		p := loaded[f.operation]
		if f.kind == "system" {
			p.System = content
		} else {
			p.User = content
		}
		loaded[f.operation] = p
		log.Printf("[CONFIG] Loaded %s from %s (%d characters)", f, f.path, len(content))
	}

	for name, p := range loaded {
		setLoadedPrompts(name, p)
	}
	return nil
}

// readPromptFile returns the trimmed file content; an empty prompt is an error
func readPromptFile(f promptFile) (string, error) {
	abs, err := filepath.Abs(f.path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s file '%s': %w", f, f.path, err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s file '%s': %w", f, abs, err)
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return "", fmt.Errorf("%s file '%s' is empty", f, abs)
	}
	return content, nil
}

func sortedOperations(ops map[string]*OperationAIConfig) []string {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package config

import (
	"sync"
)

var (
	loadedPrompts   = map[string]LoadedPrompts{}
	loadedPromptsMu sync.RWMutex
)

// LoadedPrompts holds the content of an operation's prompts loaded from files
type LoadedPrompts struct {
	System string
	User   string
}

// GetPromptsForOperation returns a copy of the file-loaded prompts for an operation
func GetPromptsForOperation(operation string) LoadedPrompts {
	loadedPromptsMu.RLock()
	defer loadedPromptsMu.RUnlock()
	return loadedPrompts[operation]
}

func setLoadedPrompts(operation string, prompts LoadedPrompts) {
	loadedPromptsMu.Lock()
	defer loadedPromptsMu.Unlock()
	loadedPrompts[operation] = prompts
}

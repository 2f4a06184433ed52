package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates the configured provider. An empty provider name
// disables narratives and returns nil.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "openai":
		return NewOpenAIProvider(config)
	case "anthropic", "claude":
		return NewAnthropicProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// Package llm sends the user's transcribed request to a language model and
// keeps a short conversation history so follow-up questions make sense.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/irdan/vocalAI/internal/logging"
)

// Providers understood by New.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config holds the LLM connection and prompt settings.
type Config struct {
	Provider     string
	URL          string // Ollama host or OpenAI-compatible base URL
	Model        string
	APIKey       string
	Instructions string // system prompt
	Temperature  float64
	MaxTokens    int
	MaxHistory   int // user/assistant pairs kept, 10 when 0
	Timeout      time.Duration
}

// Responder answers one user message in the context of the conversation so far.
type Responder interface {
	Chat(ctx context.Context, message string) (string, error)
}

// New builds the client for cfg.Provider.
func New(cfg Config, logger *logging.Logger) (Responder, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOllama:
		return NewOllamaClient(cfg, logger)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

type exchange struct {
	user      string
	assistant string
}

// history is a bounded list of completed exchanges, oldest first.
type history struct {
	max       int
	exchanges []exchange
}

func (h *history) add(user, assistant string) {
	h.exchanges = append(h.exchanges, exchange{user: user, assistant: assistant})
	if h.max > 0 && len(h.exchanges) > h.max {
		h.exchanges = h.exchanges[len(h.exchanges)-h.max:]
	}
}

func (h *history) clear() {
	h.exchanges = nil
}

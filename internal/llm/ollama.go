package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/irdan/vocalAI/internal/logging"
)

// OllamaClient talks to a local Ollama server through its native chat API.
type OllamaClient struct {
	client *api.Client
	cfg    Config
	logger *logging.Logger

	mu      sync.Mutex
	history history
}

// NewOllamaClient creates a client with a pooled HTTP transport, since every
// turn hits the same local host.
func NewOllamaClient(cfg Config, logger *logging.Logger) (*OllamaClient, error) {
	host, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &OllamaClient{
		client:  api.NewClient(host, httpClient),
		cfg:     cfg,
		logger:  logger.Named("ollama"),
		history: history{max: cfg.MaxHistory},
	}, nil
}

// Chat sends message with the system instructions and history and returns
// the trimmed reply. The exchange is recorded only on success.
func (c *OllamaClient) Chat(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]api.Message, 0, 2*len(c.history.exchanges)+2)
	if c.cfg.Instructions != "" {
		messages = append(messages, api.Message{Role: "system", Content: c.cfg.Instructions})
	}
	for _, ex := range c.history.exchanges {
		messages = append(messages,
			api.Message{Role: "user", Content: ex.user},
			api.Message{Role: "assistant", Content: ex.assistant},
		)
	}
	messages = append(messages, api.Message{Role: "user", Content: message})

	options := map[string]any{"temperature": c.cfg.Temperature}
	if c.cfg.MaxTokens > 0 {
		options["num_predict"] = c.cfg.MaxTokens
	}

	stream := false
	start := time.Now()
	var reply strings.Builder
	err := c.client.Chat(ctx, &api.ChatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}

	answer := strings.TrimSpace(reply.String())
	c.history.add(message, answer)
	c.logger.Debugf("Reply from %s in %v", c.cfg.Model, time.Since(start).Round(time.Millisecond))
	return answer, nil
}

// ClearHistory forgets the conversation.
func (c *OllamaClient) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.clear()
}

// HealthCheck verifies the server is reachable.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("cannot reach Ollama at %s: %w", c.cfg.URL, err)
	}
	return nil
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/irdan/vocalAI/internal/logging"
)

// OpenAIClient uses the chat completions API of OpenAI or any compatible
// server (llama.cpp, vLLM, LM Studio) reached through cfg.URL.
type OpenAIClient struct {
	client openai.Client
	cfg    Config
	logger *logging.Logger

	mu      sync.Mutex
	history history
}

// NewOpenAIClient creates the client. An empty URL targets api.openai.com.
func NewOpenAIClient(cfg Config, logger *logging.Logger) (*OpenAIClient, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(1),
	}
	if cfg.URL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.URL, "/")+"/"))
	}

	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		cfg:     cfg,
		logger:  logger.Named("openai"),
		history: history{max: cfg.MaxHistory},
	}, nil
}

// Chat sends message with the system instructions and history.
func (c *OpenAIClient) Chat(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2*len(c.history.exchanges)+2)
	if c.cfg.Instructions != "" {
		messages = append(messages, openai.SystemMessage(c.cfg.Instructions))
	}
	for _, ex := range c.history.exchanges {
		messages = append(messages, openai.UserMessage(ex.user), openai.AssistantMessage(ex.assistant))
	}
	messages = append(messages, openai.UserMessage(message))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.cfg.Model),
		Messages:    messages,
		Temperature: openai.Float(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.cfg.MaxTokens))
	}

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	answer := strings.TrimSpace(completion.Choices[0].Message.Content)
	c.history.add(message, answer)
	c.logger.Debugf("Reply from %s in %v", c.cfg.Model, time.Since(start).Round(time.Millisecond))
	return answer, nil
}

// ClearHistory forgets the conversation.
func (c *OpenAIClient) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.clear()
}

package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/verso-reads/verso-rag/internal/embedding"
)

// DefaultModel is used when no chat model is configured.
const DefaultModel = "gpt-5.2"

// Streamer streams one chat completion, calling onDelta for every text fragment.
type Streamer interface {
	Stream(ctx context.Context, systemPrompt, userPrompt string, onDelta func(string) error) error
}

// StreamerFactory builds a Streamer for an API key.
type StreamerFactory func(apiKey string) (Streamer, error)

// ClientConfig configures Client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewClient creates a chat client.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, embedding.ErrEmptyAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: openai.NewClientWithConfig(clientCfg), model: model, logger: logger}, nil
}

// NewClientFactory returns a factory that builds clients from cfg with the given key.
func NewClientFactory(cfg ClientConfig, logger *zap.Logger) StreamerFactory {
	return func(apiKey string) (Streamer, error) {
		c := cfg
		c.APIKey = apiKey
		return NewClient(c, logger)
	}
}

// Model returns the chat model name.
func (c *Client) Model() string {
	return c.model
}

// Stream sends the prompts and forwards content deltas until the stream ends. An error
// returned by onDelta stops the stream and is returned as is.
func (c *Client) Stream(ctx context.Context, systemPrompt, userPrompt string, onDelta func(string) error) error {
	req := openai.ChatCompletionRequest{
		Model:  c.model,
		Stream: true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	c.logger.Debug("starting chat stream", zap.String("model", c.model), zap.Int("prompt_chars", len(userPrompt)))

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return embedding.TranslateError("chat request", err)
	}
	defer stream.Close()

	deltas := 0
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			c.logger.Debug("chat stream finished", zap.Int("deltas", deltas))
			return nil
		}
		if err != nil {
			return embedding.TranslateError("chat stream", err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			deltas++
			if err := onDelta(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"jindalchat/internal/config"
)

// DefaultModel is the remote model used when none is configured.
const DefaultModel = "gpt-4.1-nano"

// SystemPrompt brands every completion with the assistant's identity.
const SystemPrompt = "You are JINDAL AI, created by Akshit Jindal. " +
	"Always identify yourself as JINDAL AI, never as ChatGPT, GPT, or OpenAI. " +
	"If asked about your creator, mention you were created by Akshit Jindal. " +
	"Keep responses helpful and friendly while maintaining this identity."

// ErrEmptyCompletion reports a response that carried no text.
var ErrEmptyCompletion = errors.New("no response from AI")

// Client performs single-turn chat completions against one remote model.
// It is built once at startup and shared by all in-flight tasks.
type Client struct {
	chatModel model.BaseChatModel
	provider  string
	modelName string
}

// NewClient builds the chat model for the configured provider.
func NewClient(ctx context.Context, cfg config.CompletionConfig) (*Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "openai"
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	if cfg.APIKey == "" {
		return nil, errors.New("completion api key is required")
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   modelName,
			APIKey:  cfg.APIKey,
		})
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	case "gemini":
		clientCfg := &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if cfg.BaseURL != "" {
			clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
		}
		client, cerr := genai.NewClient(ctx, clientCfg)
		if cerr != nil {
			return nil, fmt.Errorf("init gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return &Client{chatModel: chatModel, provider: provider, modelName: modelName}, nil
}

// NewClientWithModel wraps an already constructed chat model.
func NewClientWithModel(chatModel model.BaseChatModel, modelName string) *Client {
	return &Client{chatModel: chatModel, provider: "custom", modelName: modelName}
}

// Model returns the remote model identifier.
func (c *Client) Model() string {
	return c.modelName
}

// Complete sends [system, user] and returns the generated text. No earlier
// conversation turns are included.
func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if c == nil || c.chatModel == nil {
		return "", errors.New("completion client not initialized")
	}
	input := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userMessage),
	}
	resp, err := c.chatModel.Generate(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%s completion (%s): %w", c.provider, c.modelName, err)
	}
	if resp == nil || resp.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Content, nil
}

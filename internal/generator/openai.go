package generator

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"kbchat/internal/domain"
)

// OpenAIConfig configures the OpenAI-compatible chat backend.
type OpenAIConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
}

// OpenAI calls an OpenAI-compatible chat-completions endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates the client, reading the API key from the
// configured environment variable.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	env := cfg.APIKeyEnv
	if env == "" {
		env = "OPENAI_API_KEY"
	}
	key := os.Getenv(env)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", env)
	}
	ccfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		ccfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(ccfg), model: model}, nil
}

// Generate sends the prompt as a single user message. A deadline hit
// is reported as domain.ErrGenerateTimeout.
func (g *OpenAI) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   maxTokens,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", domain.ErrGenerateTimeout
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

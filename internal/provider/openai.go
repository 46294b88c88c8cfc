package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/AliZeynalov/portfolio-chatbot/internal/config"
	"github.com/AliZeynalov/portfolio-chatbot/internal/errs"
	"github.com/AliZeynalov/portfolio-chatbot/internal/models"
)

// OpenAI implements Provider against any OpenAI-compatible API, OpenRouter
// included.
type OpenAI struct {
	client      openai.Client
	temperature float64
}

// NewOpenAI creates a provider from cfg. The SDK's own retries are disabled;
// the orchestrator decides when to retry.
func NewOpenAI(cfg config.ProviderConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, &errs.ConfigError{Fields: []string{"Provider.APIKey"}}
	}
	if cfg.BaseURL == "" {
		return nil, &errs.ConfigError{Fields: []string{"Provider.BaseURL"}}
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHeader("HTTP-Referer", cfg.SiteURLOrDefault()),
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAI{
		client:      openai.NewClient(opts...),
		temperature: cfg.Temperature,
	}, nil
}

// Complete sends one non-streaming chat completion request. A response
// without choices or content is an empty reply, not an error.
func (p *OpenAI) Complete(ctx context.Context, model string, messages []models.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:    toOpenAIMessages(messages),
		Model:       openai.ChatModel(model),
		Temperature: openai.Float(p.temperature),
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(model, err, time.Since(start))
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// classify wraps an SDK error with the upstream status code, 0 when the
// request never got a response.
func classify(model string, err error, elapsed time.Duration) error {
	upstream := &errs.UpstreamError{Model: model, Err: err}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		upstream.StatusCode = apiErr.StatusCode
		upstream.Err = fmt.Errorf("upstream returned %d after %s", apiErr.StatusCode, elapsed.Round(time.Millisecond))
	}
	return upstream
}

func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			result[i] = openai.SystemMessage(msg.Content)
		case models.RoleAssistant:
			result[i] = openai.AssistantMessage(msg.Content)
		default:
			result[i] = openai.UserMessage(msg.Content)
		}
	}

	return result
}

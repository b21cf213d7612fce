package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultTogetherURL is Together AI's OpenAI-compatible endpoint.
const DefaultTogetherURL = "https://api.together.xyz/v1"

// DefaultTogetherModel is the model used by the key check.
const DefaultTogetherModel = "meta-llama/Llama-3.3-70B-Instruct-Turbo"

// TogetherClient talks to Together AI through the go-openai SDK and maps its
// errors onto this package's typed errors.
type TogetherClient struct {
	apiKey string
	client *openai.Client
}

// NewTogetherClient builds a client; an empty baseURL selects DefaultTogetherURL.
func NewTogetherClient(apiKey string, httpTimeout time.Duration, baseURL string) *TogetherClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = DefaultTogetherURL
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: httpTimeout}
	return &TogetherClient{apiKey: apiKey, client: openai.NewClientWithConfig(cfg)}
}

func (c *TogetherClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("TOGETHER_API_KEY is missing")
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	out := &GenerateResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, ch := range resp.Choices {
		out.Choices = append(out.Choices, Choice{Message: Message{Role: ch.Message.Role, Content: ch.Message.Content}})
	}
	return out, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		if code, ok := apiErr.Code.(string); ok {
			e.Code = code
		}
		return classifyAPIError(e, nil)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		e := &APIError{StatusCode: reqErr.HTTPStatusCode}
		if reqErr.Err != nil {
			e.Message = reqErr.Err.Error()
		}
		return classifyAPIError(e, nil)
	}
	return fmt.Errorf("together request: %w", err)
}

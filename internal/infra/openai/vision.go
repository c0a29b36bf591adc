package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"elamath/internal/domain"
	"elamath/internal/infra"
)

const DefaultVisionModel = "meta-llama/llama-4-maverick-17b-128e-instruct"

// VisionClient asks a vision-language chat model about one image.
type VisionClient struct {
	client    *goopenai.Client
	model     string
	maxTokens int
	retry     infra.RetryConfig
}

type VisionOptions struct {
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Retry     infra.RetryConfig
}

func NewVisionClient(apiKey string, opts VisionOptions) *VisionClient {
	if opts.BaseURL == "" {
		opts.BaseURL = GroqBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultVisionModel
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1024
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = opts.BaseURL
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}

	return &VisionClient{
		client:    goopenai.NewClientWithConfig(cfg),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		retry:     opts.Retry,
	}
}

func (c *VisionClient) Analyze(ctx context.Context, prompt string, image domain.EncodedImage) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role: goopenai.ChatMessageRoleUser,
				MultiContent: []goopenai.ChatMessagePart{
					{Type: goopenai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{
							URL:    image.DataURL(),
							Detail: goopenai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}

	var resp goopenai.ChatCompletionResponse
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, req)
		return asStatusError(err)
	})
	if retryErr != nil {
		return "", retryErr
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from vision model")
	}

	return resp.Choices[0].Message.Content, nil
}

// asStatusError maps go-openai API errors onto infra.StatusError so that
// WithRetry can tell transient failures from permanent ones.
func asStatusError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &infra.StatusError{Service: "openai-compatible", Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &infra.StatusError{Service: "openai-compatible", Code: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}

	return err
}

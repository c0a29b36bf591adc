package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"elamath/internal/infra"
)

// SpeechClient renders text to MP3 with the OpenAI speech endpoint.
type SpeechClient struct {
	client *goopenai.Client
	model  goopenai.SpeechModel
	voice  goopenai.SpeechVoice
	retry  infra.RetryConfig
}

type SpeechOptions struct {
	BaseURL string
	Model   string
	Voice   string
	Timeout time.Duration
	Retry   infra.RetryConfig
}

func NewSpeechClient(apiKey string, opts SpeechOptions) *SpeechClient {
	if opts.Model == "" {
		opts.Model = string(goopenai.TTSModel1)
	}
	if opts.Voice == "" {
		opts.Voice = string(goopenai.VoiceAlloy)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}

	return &SpeechClient{
		client: goopenai.NewClientWithConfig(cfg),
		model:  goopenai.SpeechModel(opts.Model),
		voice:  goopenai.SpeechVoice(opts.Voice),
		retry:  opts.Retry,
	}
}

func (c *SpeechClient) Name() string {
	return "openai"
}

func (c *SpeechClient) Speak(ctx context.Context, text string) ([]byte, error) {
	var audio []byte

	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		resp, err := c.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
			Model:          c.model,
			Input:          text,
			Voice:          c.voice,
			ResponseFormat: goopenai.SpeechResponseFormatMp3,
		})
		if err != nil {
			return asStatusError(err)
		}
		defer resp.Close()

		audio, err = io.ReadAll(resp)
		if err != nil {
			return fmt.Errorf("reading speech: %w", err)
		}
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio from openai speech")
	}
	return audio, nil
}

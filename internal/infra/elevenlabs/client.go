package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"elamath/internal/infra"
)

const (
	DefaultVoiceID      = "9BWtsMINqrJLrRacOk9x" // Aria
	DefaultModelID      = "eleven_turbo_v2"
	DefaultOutputFormat = "mp3_22050_32"
)

type Client struct {
	apiKey       string
	httpClient   *http.Client
	baseURL      string
	voiceID      string
	modelID      string
	outputFormat string
	retry        infra.RetryConfig
}

type Options struct {
	VoiceID      string
	ModelID      string
	OutputFormat string
	Timeout      time.Duration
	Retry        infra.RetryConfig
}

func NewClient(apiKey string, opts Options) *Client {
	return NewClientWithURL(apiKey, opts, "https://api.elevenlabs.io/v1")
}

func NewClientWithURL(apiKey string, opts Options, baseURL string) *Client {
	if opts.VoiceID == "" {
		opts.VoiceID = DefaultVoiceID
	}
	if opts.ModelID == "" {
		opts.ModelID = DefaultModelID
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = DefaultOutputFormat
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		baseURL:      baseURL,
		voiceID:      opts.VoiceID,
		modelID:      opts.ModelID,
		outputFormat: opts.OutputFormat,
		retry:        opts.Retry,
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

func (c *Client) Name() string {
	return "elevenlabs"
}

// Speak returns the compressed audio for text.
func (c *Client) Speak(ctx context.Context, text string) ([]byte, error) {
	bodyBytes, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.75,
			SimilarityBoost: 0.7,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint, err := url.Parse(fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, url.PathEscape(c.voiceID)))
	if err != nil {
		return nil, fmt.Errorf("building url: %w", err)
	}
	q := endpoint.Query()
	q.Set("output_format", c.outputFormat)
	endpoint.RawQuery = q.Encode()

	var audio []byte
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("xi-api-key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return &infra.StatusError{Service: "elevenlabs", Code: resp.StatusCode, Body: string(respBody)}
		}

		audio, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading audio: %w", err)
		}
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio from elevenlabs")
	}

	return audio, nil
}

package application

import (
	"context"
	"fmt"
)

type SpeechToText interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// NoopSTT stands in when no transcription credential is configured.
// Every call fails, so the pipeline answers with the transcription placeholder.
type NoopSTT struct{}

func (n *NoopSTT) Transcribe(_ context.Context, _ string) (string, error) {
	return "", fmt.Errorf("speech-to-text not configured: set transcriber.api_key to enable audio transcription")
}

//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"

	"elamath/internal/infra/media"
)

const framesPerBuffer = 1024

// MicrophoneRecorder captures one spoken question from the default input device.
type MicrophoneRecorder struct {
	sampleRate int
	logger     *slog.Logger
}

func NewMicrophoneRecorder(sampleRate int, logger *slog.Logger) *MicrophoneRecorder {
	return &MicrophoneRecorder{
		sampleRate: sampleRate,
		logger:     logger,
	}
}

// Record listens until the speaker pauses or maxDuration elapses and returns
// the capture as a WAV file.
func (m *MicrophoneRecorder) Record(ctx context.Context, maxDuration time.Duration) ([]byte, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	buffer := make([]int16, framesPerBuffer)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), framesPerBuffer, buffer)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Stop()

	m.logger.Info("listening for question", "sample_rate", m.sampleRate, "max_duration", maxDuration)

	u := newUtterance(m.sampleRate, int(maxDuration.Seconds()*float64(m.sampleRate)))
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("reading from stream: %w", err)
		}

		frame := make([]int16, len(buffer))
		copy(frame, buffer)
		if u.add(frame) {
			break
		}
	}

	m.logger.Info("recording finished", "samples", len(u.samples))
	return media.EncodeWAV(u.samples, m.sampleRate)
}

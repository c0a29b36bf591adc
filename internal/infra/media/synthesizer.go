package media

import (
	"context"
	"errors"
	"fmt"
	"os"

	"elamath/internal/domain"
)

// Speaker renders text as compressed (MP3) audio.
type Speaker interface {
	Speak(ctx context.Context, text string) ([]byte, error)
	Name() string
}

type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// Synthesizer writes the speaker's MP3 to paths.Compressed and converts it
// to WAV at paths.Final.
type Synthesizer struct {
	speaker   Speaker
	converter Converter
}

func NewSynthesizer(speaker Speaker, converter Converter) *Synthesizer {
	return &Synthesizer{speaker: speaker, converter: converter}
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string, paths domain.SpeechPaths) error {
	if paths.Compressed == "" || paths.Final == "" {
		return errors.New("speech paths not set")
	}

	audio, err := s.speaker.Speak(ctx, text)
	if err != nil {
		return fmt.Errorf("speaking with %s: %w", s.speaker.Name(), err)
	}

	if err := os.WriteFile(paths.Compressed, audio, 0644); err != nil {
		return fmt.Errorf("writing compressed audio: %w", err)
	}

	if err := s.converter.Convert(ctx, paths.Compressed, paths.Final); err != nil {
		return fmt.Errorf("converting audio: %w", err)
	}

	return nil
}

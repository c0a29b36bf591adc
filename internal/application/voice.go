package application

import (
	"context"

	"elamath/internal/domain"
)

// Synthesizer speaks text into paths.Final, leaving the compressed download
// at paths.Compressed.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, paths domain.SpeechPaths) error
}

// FallbackAudio writes a playable clip when synthesis is unavailable.
type FallbackAudio interface {
	WriteFallback(path string) error
}

package application

import (
	"context"

	"elamath/internal/domain"
)

type ImageEncoder interface {
	Encode(path string) (domain.EncodedImage, error)
}

type ImageAnalyzer interface {
	Analyze(ctx context.Context, prompt string, image domain.EncodedImage) (string, error)
}

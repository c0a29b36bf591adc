package media

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"elamath/internal/domain"
)

const DefaultMaxImageBytes = 8 << 20

// ImageEncoder turns an image file into base64 for model requests.
type ImageEncoder struct {
	maxBytes int64
}

func NewImageEncoder(maxBytes int64) *ImageEncoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ImageEncoder{maxBytes: maxBytes}
}

func (e *ImageEncoder) Encode(path string) (domain.EncodedImage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.EncodedImage{}, fmt.Errorf("reading image: %w", err)
	}
	if info.Size() == 0 {
		return domain.EncodedImage{}, fmt.Errorf("image %s is empty", info.Name())
	}
	if info.Size() > e.maxBytes {
		return domain.EncodedImage{}, fmt.Errorf("image is %d bytes, limit is %d", info.Size(), e.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.EncodedImage{}, fmt.Errorf("reading image: %w", err)
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return domain.EncodedImage{}, fmt.Errorf("not an image: %s", mimeType)
	}

	return domain.EncodedImage{
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

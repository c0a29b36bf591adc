package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg decodes compressed audio into mono PCM WAV.
type FFmpeg struct {
	binary     string
	sampleRate int
}

func NewFFmpeg(binary string, sampleRate int) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if sampleRate == 0 {
		sampleRate = 22050
	}
	return &FFmpeg{binary: binary, sampleRate: sampleRate}
}

func (f *FFmpeg) Available() error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return fmt.Errorf("locating %s: %w", f.binary, err)
	}
	return nil
}

// Convert runs: ffmpeg -y -i src -ac 1 -ar <rate> -f wav dst
func (f *FFmpeg) Convert(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, f.binary,
		"-y", "-loglevel", "error",
		"-i", src,
		"-ac", "1", "-ar", strconv.Itoa(f.sampleRate),
		"-f", "wav",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

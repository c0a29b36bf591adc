package media_test

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"elamath/internal/infra/media"
)

func writePNG(t *testing.T) (string, []byte) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}

	path := filepath.Join(t.TempDir(), "problem.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("writing png: %v", err)
	}
	return path, buf.Bytes()
}

func TestImageEncoder_Encode(t *testing.T) {
	path, raw := writePNG(t)

	encoded, err := media.NewImageEncoder(0).Encode(path)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	if encoded.MIMEType != "image/png" {
		t.Errorf("MIMEType: got %s, want image/png", encoded.MIMEType)
	}
	if encoded.Data != base64.StdEncoding.EncodeToString(raw) {
		t.Error("Data does not round-trip to the file bytes")
	}
	if !strings.HasPrefix(encoded.DataURL(), "data:image/png;base64,") {
		t.Errorf("DataURL: got %s", encoded.DataURL()[:30])
	}
}

func TestImageEncoder_Rejects(t *testing.T) {
	dir := t.TempDir()

	textPath := filepath.Join(dir, "notes.txt")
	os.WriteFile(textPath, []byte("just some text"), 0644)

	emptyPath := filepath.Join(dir, "empty.png")
	os.WriteFile(emptyPath, nil, 0644)

	pngPath, _ := writePNG(t)

	tests := []struct {
		name     string
		path     string
		maxBytes int64
		wantErr  string
	}{
		{name: "not an image", path: textPath, wantErr: "not an image"},
		{name: "empty", path: emptyPath, wantErr: "is empty"},
		{name: "missing", path: filepath.Join(dir, "missing.png"), wantErr: "reading image"},
		{name: "too large", path: pngPath, maxBytes: 8, wantErr: "limit is 8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := media.NewImageEncoder(tt.maxBytes).Encode(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error: got %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	audioExts = []string{".wav", ".mp3", ".m4a", ".webm", ".ogg", ".flac"}
	imageExts = []string{".png", ".jpg", ".jpeg", ".webp", ".gif"}
)

// doneMarker is inserted before the extension of files already answered.
const doneMarker = ".done"

// Submission is an audio question dropped into a watched directory, with the
// image sharing its base name if there is one.
type Submission struct {
	AudioPath string
	ImagePath string
}

// DirSource hands out questions placed in a directory, oldest name first.
// Each audio file is handed out at most once per process, even if MarkDone
// fails to rename it.
type DirSource struct {
	dir      string
	interval time.Duration

	mu        sync.Mutex
	processed map[string]bool
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{
		dir:       dir,
		interval:  500 * time.Millisecond,
		processed: make(map[string]bool),
	}
}

func (d *DirSource) Start(_ context.Context) error {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("creating watch dir: %w", err)
	}
	return nil
}

// Next blocks until a new question appears.
func (d *DirSource) Next(ctx context.Context) (Submission, error) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		sub, ok, err := d.checkForNewFile()
		if err != nil {
			return Submission{}, err
		}
		if ok {
			return sub, nil
		}

		select {
		case <-ctx.Done():
			return Submission{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// MarkDone renames the submission's files so they are not picked up again.
func (d *DirSource) MarkDone(sub Submission) error {
	for _, path := range []string{sub.AudioPath, sub.ImagePath} {
		if path == "" {
			continue
		}
		if err := os.Rename(path, donePath(path)); err != nil {
			return fmt.Errorf("marking %s done: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func (d *DirSource) checkForNewFile() (Submission, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return Submission{}, false, fmt.Errorf("reading dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if !hasExt(audioExts, ext) || strings.HasSuffix(stem, doneMarker) {
			continue
		}

		audioPath := filepath.Join(d.dir, name)
		if d.processed[audioPath] {
			continue
		}

		sub := Submission{AudioPath: audioPath}
		for _, imgExt := range imageExts {
			candidate := filepath.Join(d.dir, stem+imgExt)
			if _, err := os.Stat(candidate); err == nil {
				sub.ImagePath = candidate
				break
			}
		}
		d.processed[audioPath] = true
		return sub, true, nil
	}

	return Submission{}, false, nil
}

func donePath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + doneMarker + ext
}

func hasExt(exts []string, ext string) bool {
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

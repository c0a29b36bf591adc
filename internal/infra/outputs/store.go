package outputs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"elamath/internal/domain"
)

var ErrUnknownQuestion = errors.New("unknown question")

// allowed upload extensions; anything else is stored without one.
var uploadExts = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".webm": true, ".ogg": true, ".flac": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// Store gives every question its own directory, so concurrent requests never
// share an upload or an answer file.
type Store struct {
	root   string
	ttl    time.Duration
	logger *slog.Logger
}

func NewStore(root string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &Store{root: root, ttl: ttl, logger: logger}, nil
}

// NewQuestion allocates an ID and directory and returns a Question with its
// speech paths set.
func (s *Store) NewQuestion() (domain.Question, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.root, id)
	if err := os.Mkdir(dir, 0755); err != nil {
		return domain.Question{}, fmt.Errorf("creating question dir: %w", err)
	}
	return domain.Question{ID: id, Speech: domain.SpeechPathsIn(dir)}, nil
}

// SaveUpload writes data as <name>.<ext> inside the question directory.
func (s *Store) SaveUpload(id, name, originalName string, data []byte) (string, error) {
	dir, err := s.dir(id)
	if err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if !uploadExts[ext] {
		ext = ""
	}

	path := filepath.Join(dir, name+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return path, nil
}

// AudioPath returns the final answer audio of a question.
func (s *Store) AudioPath(id string) (string, error) {
	dir, err := s.dir(id)
	if err != nil {
		return "", err
	}
	path := domain.SpeechPathsIn(dir).Final
	if _, err := os.Stat(path); err != nil {
		return "", ErrUnknownQuestion
	}
	return path, nil
}

func (s *Store) dir(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrUnknownQuestion
	}
	dir := filepath.Join(s.root, id)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return "", ErrUnknownQuestion
	}
	return dir, nil
}

// Sweep removes question directories last modified before now-ttl.
func (s *Store) Sweep(now time.Time) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("reading output dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < s.ttl {
			continue
		}

		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			s.logger.Warn("removing expired question", "question_id", entry.Name(), "error", err)
			continue
		}
		removed++
	}

	return removed, nil
}

// StartPeriodicSweep sweeps in the background until ctx is done. A
// non-positive interval disables it.
func (s *Store) StartPeriodicSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Warn("periodic sweep disabled", "interval", interval)
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				removed, err := s.Sweep(now)
				if err != nil {
					s.logger.Error("periodic sweep failed", "error", err)
					continue
				}
				if removed > 0 {
					s.logger.Info("swept expired answers", "removed", removed)
				}
			}
		}
	}()
}

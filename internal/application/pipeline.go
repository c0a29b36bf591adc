package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"elamath/internal/domain"
)

// ProgressFunc receives monotonically increasing completion fractions.
// It is informational only; a nil ProgressFunc is allowed.
type ProgressFunc func(fraction float64, desc string)

type Pipeline struct {
	stt      SpeechToText
	encoder  ImageEncoder
	analyzer ImageAnalyzer
	voice    Synthesizer
	fallback FallbackAudio
	observer StageObserver
	logger   *slog.Logger
}

func NewPipeline(
	stt SpeechToText,
	encoder ImageEncoder,
	analyzer ImageAnalyzer,
	voice Synthesizer,
	fallback FallbackAudio,
	observer StageObserver,
	logger *slog.Logger,
) *Pipeline {
	if observer == nil {
		observer = &NoopObserver{}
	}
	return &Pipeline{
		stt:      stt,
		encoder:  encoder,
		analyzer: analyzer,
		voice:    voice,
		fallback: fallback,
		observer: observer,
		logger:   logger,
	}
}

// Handle runs transcription, image analysis and speech synthesis in order.
// Upstream failures degrade to placeholders; an error is returned only when
// not even the fallback audio could be written.
func (p *Pipeline) Handle(ctx context.Context, q domain.Question, progress ProgressFunc) (*domain.Answered, error) {
	if progress == nil {
		progress = func(float64, string) {}
	}
	if q.Speech.Final == "" {
		return nil, errors.New("question has no output path for speech")
	}

	logger := p.logger.With("question_id", q.ID)
	result := &domain.Answered{QuestionID: q.ID}

	progress(0.1, "Transcribing audio...")
	transcript, degraded := p.transcribe(ctx, logger, q.AudioPath)
	result.Transcript = transcript
	if degraded {
		result.Degraded = append(result.Degraded, domain.StageTranscription)
	}

	progress(0.5, "Analyzing image...")
	if q.HasImage() {
		answer, degraded := p.analyze(ctx, logger, q.ImagePath, transcript)
		result.Answer = answer
		if degraded {
			result.Degraded = append(result.Degraded, domain.StageAnalysis)
		}
	} else {
		logger.Info("no image supplied, skipping analysis")
		result.Answer = PlaceholderNoImage
	}

	progress(0.8, "Generating voice response...")
	if err := p.speak(ctx, logger, result.Answer, q.Speech); err != nil {
		if fbErr := p.fallback.WriteFallback(q.Speech.Final); fbErr != nil {
			return nil, fmt.Errorf("writing fallback audio after %v: %w", err, fbErr)
		}
		result.Degraded = append(result.Degraded, domain.StageSynthesis)
	}
	result.AudioPath = q.Speech.Final

	progress(1.0, "Done!")
	logger.Info("question answered", "degraded", result.Degraded)

	return result, nil
}

func (p *Pipeline) transcribe(ctx context.Context, logger *slog.Logger, audioPath string) (string, bool) {
	start := time.Now()
	text, err := p.stt.Transcribe(ctx, audioPath)

	switch {
	case err != nil:
		logger.Warn("transcription failed", "error", err)
		p.observer.ObserveStage(domain.StageTranscription, time.Since(start), true)
		return PlaceholderTranscriptionFailed, true
	case strings.TrimSpace(text) == "":
		logger.Warn("transcription was empty")
		p.observer.ObserveStage(domain.StageTranscription, time.Since(start), true)
		return PlaceholderNoQuestion, true
	}

	text = strings.TrimSpace(text)
	logger.Info("transcribed", "text", text)
	p.observer.ObserveStage(domain.StageTranscription, time.Since(start), false)
	return text, false
}

func (p *Pipeline) analyze(ctx context.Context, logger *slog.Logger, imagePath, transcript string) (string, bool) {
	start := time.Now()
	answer, err := p.askAboutImage(ctx, imagePath, transcript)
	if err != nil {
		logger.Warn("image analysis failed", "error", err)
		p.observer.ObserveStage(domain.StageAnalysis, time.Since(start), true)
		return analysisFailed(err), true
	}

	logger.Info("image analyzed", "answer_chars", len(answer))
	p.observer.ObserveStage(domain.StageAnalysis, time.Since(start), false)
	return answer, false
}

func (p *Pipeline) askAboutImage(ctx context.Context, imagePath, transcript string) (string, error) {
	image, err := p.encoder.Encode(imagePath)
	if err != nil {
		return "", fmt.Errorf("encoding image: %w", err)
	}

	answer, err := p.analyzer.Analyze(ctx, BuildPrompt(transcript), image)
	if err != nil {
		return "", err
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", errors.New("empty answer from model")
	}
	return answer, nil
}

func (p *Pipeline) speak(ctx context.Context, logger *slog.Logger, text string, paths domain.SpeechPaths) error {
	start := time.Now()
	if err := p.voice.Synthesize(ctx, text, paths); err != nil {
		logger.Error("speech synthesis failed, using fallback audio", "error", err)
		p.observer.ObserveStage(domain.StageSynthesis, time.Since(start), true)
		return err
	}

	logger.Info("speech synthesized", "path", paths.Final)
	p.observer.ObserveStage(domain.StageSynthesis, time.Since(start), false)
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"elamath/config"
	"elamath/internal/application"
	"elamath/internal/domain"
	"elamath/internal/infra"
	"elamath/internal/infra/anthropic"
	"elamath/internal/infra/audio"
	"elamath/internal/infra/elevenlabs"
	"elamath/internal/infra/gemini"
	"elamath/internal/infra/media"
	"elamath/internal/infra/openai"
	"elamath/internal/infra/outputs"
	"elamath/internal/infra/web"
	"elamath/internal/metrics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	audioPath := flag.String("audio", "", "answer a single recorded question and exit")
	imagePath := flag.String("image", "", "image of the math problem (with -audio or -mic)")
	micDuration := flag.Duration("mic", 0, "record a question from the microphone for at most this long and exit")
	watchDir := flag.String("watch", "", "answer questions dropped into this directory")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("loading .env", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	retry := infra.RetryConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: config.Duration(cfg.Retry.InitialDelay),
		MaxDelay:     config.Duration(cfg.Retry.MaxDelay),
		Multiplier:   2.0,
	}

	ffmpeg := media.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.SampleRate)
	if err := ffmpeg.Available(); err != nil {
		logger.Warn("ffmpeg not found, answers will fall back to silent audio", "error", err)
	}

	var (
		observer application.StageObserver
		m        *metrics.Metrics
	)
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
		observer = m
	}

	pipeline := application.NewPipeline(
		createTranscriber(cfg.Transcriber, retry, logger),
		media.NewImageEncoder(cfg.Media.MaxImageBytes),
		createAnalyzer(cfg.Analyzer, retry, logger),
		media.NewSynthesizer(createSpeaker(cfg.Synthesizer, retry, logger), ffmpeg),
		media.NewSilenceWriter(cfg.Media.SampleRate, time.Second),
		observer,
		logger,
	)

	store, err := outputs.NewStore(cfg.Output.Dir, config.Duration(cfg.Output.TTL), logger)
	if err != nil {
		logger.Error("creating output store", "error", err)
		os.Exit(1)
	}

	switch {
	case *audioPath != "" || *micDuration > 0:
		err = runOnce(ctx, pipeline, store, *audioPath, *imagePath, *micDuration, cfg.Media.SampleRate, logger)
	case *watchDir != "":
		err = runWatch(ctx, pipeline, store, *watchDir, logger)
	default:
		err = serve(ctx, pipeline, store, cfg, m, logger)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("elamath error", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, pipeline *application.Pipeline, store *outputs.Store, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) error {
	opts := web.Options{
		Addr:           cfg.Server.Addr,
		AuthToken:      cfg.Server.AuthToken,
		RateLimit:      cfg.Server.RateLimit,
		TrustProxy:     cfg.Server.TrustProxyHeaders,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		MetricsPath:    cfg.Metrics.Path,
	}
	if m != nil {
		opts.Observer = m
		opts.MetricsHandler = m.Handler()
	}

	store.StartPeriodicSweep(ctx, config.Duration(cfg.Output.SweepInterval))

	server := web.NewServer(pipeline, store, opts, logger)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	logger.Info("starting elamath",
		"addr", cfg.Server.Addr,
		"analyzer", cfg.Analyzer.Provider,
		"synthesizer", cfg.Synthesizer.Provider,
	)

	<-ctx.Done()
	return server.Stop()
}

func runOnce(ctx context.Context, pipeline *application.Pipeline, store *outputs.Store, audioPath, imagePath string, micDuration time.Duration, sampleRate int, logger *slog.Logger) error {
	q, err := store.NewQuestion()
	if err != nil {
		return err
	}

	if micDuration > 0 {
		recorder := audio.NewMicrophoneRecorder(sampleRate, logger)
		data, err := recorder.Record(ctx, micDuration)
		if err != nil {
			return fmt.Errorf("recording question: %w", err)
		}
		if q.AudioPath, err = store.SaveUpload(q.ID, "question", "question.wav", data); err != nil {
			return err
		}
	} else {
		q.AudioPath = audioPath
	}
	q.ImagePath = imagePath

	return answer(ctx, pipeline, q, logger)
}

func runWatch(ctx context.Context, pipeline *application.Pipeline, store *outputs.Store, dir string, logger *slog.Logger) error {
	source := audio.NewDirSource(dir)
	if err := source.Start(ctx); err != nil {
		return err
	}

	logger.Info("watching for questions", "dir", dir)

	for {
		sub, err := source.Next(ctx)
		if err != nil {
			return err
		}

		q, err := store.NewQuestion()
		if err != nil {
			return err
		}
		q.AudioPath = sub.AudioPath
		q.ImagePath = sub.ImagePath

		if err := answer(ctx, pipeline, q, logger); err != nil {
			return err
		}
		if err := source.MarkDone(sub); err != nil {
			logger.Warn("marking question done", "error", err)
		}
	}
}

func answer(ctx context.Context, pipeline *application.Pipeline, q domain.Question, logger *slog.Logger) error {
	progress := func(fraction float64, desc string) {
		logger.Debug("progress", "question_id", q.ID, "fraction", fraction, "step", desc)
	}

	answered, err := pipeline.Handle(ctx, q, progress)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Printf("Transcription: %s\nAnswer: %s\nAudio: %s\n", answered.Transcript, answered.Answer, answered.AudioPath)
	return nil
}

func createTranscriber(cfg config.TranscriberConfig, retry infra.RetryConfig, logger *slog.Logger) application.SpeechToText {
	if cfg.APIKey == "" {
		logger.Warn("transcriber.api_key not set, every question will use the transcription placeholder")
		return &application.NoopSTT{}
	}
	return openai.NewWhisperClient(cfg.APIKey, openai.WhisperOptions{
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		Language: cfg.Language,
		Timeout:  config.Duration(cfg.Timeout),
		Retry:    retry,
	})
}

func createAnalyzer(cfg config.AnalyzerConfig, retry infra.RetryConfig, logger *slog.Logger) application.ImageAnalyzer {
	if cfg.APIKey == "" {
		logger.Warn("analyzer.api_key not set, image analysis will fail", "provider", cfg.Provider)
	}

	switch cfg.Provider {
	case "gemini":
		opts := gemini.Options{
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   config.Duration(cfg.Timeout),
			Retry:     retry,
		}
		if cfg.BaseURL != "" {
			return gemini.NewClientWithURL(cfg.APIKey, opts, cfg.BaseURL)
		}
		return gemini.NewClient(cfg.APIKey, opts)
	case "anthropic":
		opts := anthropic.Options{
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   config.Duration(cfg.Timeout),
			Retry:     retry,
		}
		if cfg.BaseURL != "" {
			return anthropic.NewClaudeClientWithURL(cfg.APIKey, opts, cfg.BaseURL)
		}
		return anthropic.NewClaudeClient(cfg.APIKey, opts)
	case "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return openai.NewVisionClient(cfg.APIKey, openai.VisionOptions{
			BaseURL:   baseURL,
			Model:     model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   config.Duration(cfg.Timeout),
			Retry:     retry,
		})
	default:
		return openai.NewVisionClient(cfg.APIKey, openai.VisionOptions{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   config.Duration(cfg.Timeout),
			Retry:     retry,
		})
	}
}

func createSpeaker(cfg config.SynthesizerConfig, retry infra.RetryConfig, logger *slog.Logger) media.Speaker {
	if cfg.APIKey == "" {
		logger.Warn("synthesizer.api_key not set, answers will fall back to silent audio", "provider", cfg.Provider)
	}

	switch cfg.Provider {
	case "openai":
		return openai.NewSpeechClient(cfg.APIKey, openai.SpeechOptions{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Voice:   cfg.Voice,
			Timeout: config.Duration(cfg.Timeout),
			Retry:   retry,
		})
	default:
		opts := elevenlabs.Options{
			VoiceID:      cfg.Voice,
			ModelID:      cfg.Model,
			OutputFormat: cfg.OutputFormat,
			Timeout:      config.Duration(cfg.Timeout),
			Retry:        retry,
		}
		if cfg.BaseURL != "" {
			return elevenlabs.NewClientWithURL(cfg.APIKey, opts, cfg.BaseURL)
		}
		return elevenlabs.NewClient(cfg.APIKey, opts)
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

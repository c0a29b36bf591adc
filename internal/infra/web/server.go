package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"elamath/internal/application"
	"elamath/internal/domain"
	"elamath/internal/infra/outputs"
)

// Asker answers one question end to end.
type Asker interface {
	Handle(ctx context.Context, q domain.Question, progress application.ProgressFunc) (*domain.Answered, error)
}

// QuestionStore allocates per-question directories and serves their answers.
type QuestionStore interface {
	NewQuestion() (domain.Question, error)
	SaveUpload(id, name, originalName string, data []byte) (string, error)
	AudioPath(id string) (string, error)
}

type HTTPObserver interface {
	ObserveHTTP(route string, status int, elapsed time.Duration)
}

type Options struct {
	Addr           string
	AuthToken      string
	RateLimit      int // requests per minute per client, 0 disables
	TrustProxy     bool
	MaxUploadBytes int64
	Observer       HTTPObserver
	MetricsHandler http.Handler
	MetricsPath    string
}

type Server struct {
	addr        string
	asker       Asker
	store       QuestionStore
	observer    HTTPObserver
	logger      *slog.Logger
	server      *http.Server
	mux         *http.ServeMux
	rateLimiter *RateLimiter
	authToken   string
	maxUpload   int64

	mu      sync.Mutex
	running bool
}

func NewServer(asker Asker, store QuestionStore, opts Options, logger *slog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}

	s := &Server{
		addr:        opts.Addr,
		asker:       asker,
		store:       store,
		observer:    opts.Observer,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(opts.RateLimit, time.Minute, opts.TrustProxy),
		authToken:   opts.AuthToken,
		maxUpload:   opts.MaxUploadBytes,
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /api/ask", s.instrument("ask", s.rateLimiter.Middleware(s.authorize(s.handleAsk))))
	s.mux.HandleFunc("GET /api/ask/ws", s.instrument("ask_ws", s.rateLimiter.Middleware(s.authorize(s.handleAskWS))))
	// question IDs are random, so answers are served without the token
	s.mux.HandleFunc("GET /api/audio/{id}", s.instrument("audio", s.handleAudio))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, opts.MetricsHandler)
	}

	return s
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
		// a full answer waits on three upstream calls
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("HTTP server starting", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := s.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	s.running = false
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

type askResponse struct {
	ID         string         `json:"id"`
	Transcript string         `json:"transcript"`
	Answer     string         `json:"answer"`
	AudioURL   string         `json:"audio_url"`
	Degraded   []domain.Stage `json:"degraded"`
}

func newAskResponse(a *domain.Answered) askResponse {
	degraded := a.Degraded
	if degraded == nil {
		degraded = []domain.Stage{}
	}
	return askResponse{
		ID:         a.QuestionID,
		Transcript: a.Transcript,
		Answer:     a.Answer,
		AudioURL:   "/api/audio/" + a.QuestionID,
		Degraded:   degraded,
	}
}

type upload struct {
	name string
	data []byte
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		s.logger.Warn("parsing upload", "error", err)
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}

	audio, err := formFile(r, "audio")
	if err != nil || audio == nil {
		http.Error(w, "missing audio", http.StatusBadRequest)
		return
	}
	image, err := formFile(r, "image")
	if err != nil {
		http.Error(w, "invalid image", http.StatusBadRequest)
		return
	}

	q, err := s.prepare(*audio, image)
	if err != nil {
		s.logger.Error("storing upload", "error", err)
		http.Error(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	answered, err := s.asker.Handle(r.Context(), q, nil)
	if err != nil {
		s.logger.Error("answering question", "question_id", q.ID, "error", err)
		http.Error(w, "failed to answer question", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newAskResponse(answered))
}

// formFile returns nil without error when the field is absent.
func formFile(r *http.Request, field string) (*upload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &upload{name: header.Filename, data: data}, nil
}

func (s *Server) prepare(audio upload, image *upload) (domain.Question, error) {
	q, err := s.store.NewQuestion()
	if err != nil {
		return domain.Question{}, err
	}

	q.AudioPath, err = s.store.SaveUpload(q.ID, "question", audio.name, audio.data)
	if err != nil {
		return domain.Question{}, err
	}

	if image != nil {
		q.ImagePath, err = s.store.SaveUpload(q.ID, "image", image.name, image.data)
		if err != nil {
			return domain.Question{}, err
		}
	}

	s.logger.Info("question received",
		"question_id", q.ID,
		"audio_bytes", len(audio.data),
		"has_image", q.HasImage(),
	)
	return q, nil
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	path, err := s.store.AudioPath(r.PathValue("id"))
	if errors.Is(err, outputs.ErrUnknownQuestion) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("locating answer audio", "error", err)
		http.Error(w, "failed to locate audio", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	status := "ok"
	statusCode := http.StatusOK

	if !running {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]any{"status": status, "running": running})
}

func (s *Server) authorize(next http.HandlerFunc) http.HandlerFunc {
	if s.authToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			s.logger.Warn("unauthorized request", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	if s.observer == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.observer.ObserveHTTP(route, rec.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over an instrumented connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	r.wroteHeader = true
	return h.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"elamath/internal/application"
	"elamath/internal/domain"
	"elamath/internal/infra/outputs"
	"elamath/internal/infra/web"
)

type fakeAsker struct {
	mu    sync.Mutex
	calls int
	last  domain.Question
	err   error
}

func (f *fakeAsker) Handle(_ context.Context, q domain.Question, progress application.ProgressFunc) (*domain.Answered, error) {
	f.mu.Lock()
	f.calls++
	f.last = q
	f.mu.Unlock()

	if progress != nil {
		for _, p := range []float64{0.1, 0.5, 0.8, 1.0} {
			progress(p, "working")
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	if err := os.WriteFile(q.Speech.Final, []byte("RIFF fake wav"), 0644); err != nil {
		return nil, err
	}
	answered := &domain.Answered{
		QuestionID: q.ID,
		Transcript: "what is two plus two",
		Answer:     "Two plus two is four.",
		AudioPath:  q.Speech.Final,
	}
	if !q.HasImage() {
		answered.Answer = application.PlaceholderNoImage
	}
	return answered, nil
}

func (f *fakeAsker) snapshot() (int, domain.Question) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.last
}

type fakeObserver struct {
	mu     sync.Mutex
	routes map[string]int
}

func (f *fakeObserver) ObserveHTTP(route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routes == nil {
		f.routes = make(map[string]int)
	}
	f.routes[route] = status
}

func newTestServer(t *testing.T, asker web.Asker, opts web.Options) *web.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := outputs.NewStore(t.TempDir(), time.Hour, logger)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return web.NewServer(asker, store, opts, logger)
}

func multipartRequest(t *testing.T, target string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, name := range files {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		part.Write([]byte("content of " + name))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type askBody struct {
	ID         string   `json:"id"`
	Transcript string   `json:"transcript"`
	Answer     string   `json:"answer"`
	AudioURL   string   `json:"audio_url"`
	Degraded   []string `json:"degraded"`
}

func TestServer_AskWithImage(t *testing.T) {
	asker := &fakeAsker{}
	handler := newTestServer(t, asker, web.Options{}).Handler()

	req := multipartRequest(t, "/api/ask", map[string]string{
		"audio": "question.wav",
		"image": "problem.png",
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code: got %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var body askBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Answer != "Two plus two is four." {
		t.Errorf("answer: got %q", body.Answer)
	}
	if body.AudioURL != "/api/audio/"+body.ID {
		t.Errorf("audio url: got %q", body.AudioURL)
	}
	if body.Degraded == nil {
		t.Error("degraded should be an empty list, not null")
	}

	calls, q := asker.snapshot()
	if calls != 1 {
		t.Fatalf("asker calls: got %d, want 1", calls)
	}
	if !strings.HasSuffix(q.AudioPath, "question.wav") {
		t.Errorf("audio path: got %q", q.AudioPath)
	}
	if !strings.HasSuffix(q.ImagePath, "image.png") {
		t.Errorf("image path: got %q", q.ImagePath)
	}

	// the answer audio is served back
	audioRec := httptest.NewRecorder()
	handler.ServeHTTP(audioRec, httptest.NewRequest(http.MethodGet, body.AudioURL, nil))
	if audioRec.Code != http.StatusOK {
		t.Fatalf("audio status: got %d, want %d", audioRec.Code, http.StatusOK)
	}
	if got := audioRec.Header().Get("Content-Type"); got != "audio/wav" {
		t.Errorf("audio content type: got %q", got)
	}
}

func TestServer_AskWithoutImage(t *testing.T) {
	asker := &fakeAsker{}
	handler := newTestServer(t, asker, web.Options{}).Handler()

	req := multipartRequest(t, "/api/ask", map[string]string{"audio": "question.webm"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code: got %d, want %d", rec.Code, http.StatusOK)
	}

	var body askBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Answer != application.PlaceholderNoImage {
		t.Errorf("answer: got %q, want %q", body.Answer, application.PlaceholderNoImage)
	}

	if _, q := asker.snapshot(); q.HasImage() {
		t.Errorf("question should have no image, got %q", q.ImagePath)
	}
}

func TestServer_AskMissingAudio(t *testing.T) {
	asker := &fakeAsker{}
	handler := newTestServer(t, asker, web.Options{}).Handler()

	req := multipartRequest(t, "/api/ask", map[string]string{"image": "problem.png"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status code: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if calls, _ := asker.snapshot(); calls != 0 {
		t.Errorf("asker should not be called, got %d calls", calls)
	}
}

func TestServer_AskNotMultipart(t *testing.T) {
	handler := newTestServer(t, &fakeAsker{}, web.Options{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader("raw bytes"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status code: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestServer_AskUploadTooLarge(t *testing.T) {
	handler := newTestServer(t, &fakeAsker{}, web.Options{MaxUploadBytes: 64}).Handler()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("audio", "question.wav")
	part.Write(bytes.Repeat([]byte("a"), 4096))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/ask", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status code: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestServer_AskPipelineError(t *testing.T) {
	asker := &fakeAsker{err: errors.New("disk full")}
	handler := newTestServer(t, asker, web.Options{}).Handler()

	req := multipartRequest(t, "/api/ask", map[string]string{"audio": "question.wav"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status code: got %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestServer_AuthToken(t *testing.T) {
	authToken := "test-secret-token-123"
	handler := newTestServer(t, &fakeAsker{}, web.Options{AuthToken: authToken}).Handler()

	tests := []struct {
		name       string
		token      string
		method     string
		wantStatus int
	}{
		{"valid token in header", authToken, "header", http.StatusOK},
		{"valid token in query", authToken, "query", http.StatusOK},
		{"invalid token", "wrong-token", "header", http.StatusUnauthorized},
		{"missing token", "", "header", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/ask"
			if tt.method == "query" {
				target += "?token=" + tt.token
			}
			req := multipartRequest(t, target, map[string]string{"audio": "question.wav"})
			if tt.method == "header" && tt.token != "" {
				req.Header.Set("X-Auth-Token", tt.token)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status code: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestServer_RateLimit(t *testing.T) {
	handler := newTestServer(t, &fakeAsker{}, web.Options{RateLimit: 2}).Handler()

	var codes []int
	for i := 0; i < 3; i++ {
		req := multipartRequest(t, "/api/ask", map[string]string{"audio": "question.wav"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: got %d, want %d", i, codes[i], want[i])
		}
	}
}

func TestServer_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	handler := newTestServer(t, &fakeAsker{}, web.Options{RateLimit: 1}).Handler()

	var codes []int
	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := multipartRequest(t, "/api/ask", map[string]string{"audio": "question.wav"})
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[1] != http.StatusTooManyRequests {
		t.Errorf("rotating X-Forwarded-For bypassed the limiter: got %v", codes)
	}
}

func TestServer_RateLimitTrustedProxy(t *testing.T) {
	handler := newTestServer(t, &fakeAsker{}, web.Options{RateLimit: 1, TrustProxy: true}).Handler()

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := multipartRequest(t, "/api/ask", map[string]string{"audio": "question.wav"})
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("client %s: got %d, want %d", ip, rec.Code, http.StatusOK)
		}
	}
}

func TestServer_AudioUnknownQuestion(t *testing.T) {
	handler := newTestServer(t, &fakeAsker{}, web.Options{}).Handler()

	for _, id := range []string{"not-a-uuid", "1b4e28ba-2fa1-11d2-883f-0016d3cca427"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audio/"+id, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status code: got %d, want %d", id, rec.Code, http.StatusNotFound)
		}
	}
}

func TestServer_Index(t *testing.T) {
	handler := newTestServer(t, &fakeAsker{}, web.Options{MaxUploadBytes: 8 << 20}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code: got %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "Uploads up to 8 MB") {
		t.Error("index page should render the upload limit")
	}
}

func TestServer_Health(t *testing.T) {
	server := newTestServer(t, &fakeAsker{}, web.Options{Addr: "127.0.0.1:0"})
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("before start: got %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("starting server: %v", err)
	}
	defer server.Stop()

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("after start: got %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestServer_MetricsAndObserver(t *testing.T) {
	observer := &fakeObserver{}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "elamath_questions_answered_total 1\n")
	})
	handler := newTestServer(t, &fakeAsker{}, web.Options{
		Observer:       observer,
		MetricsHandler: metricsHandler,
	}).Handler()

	req := multipartRequest(t, "/api/ask", map[string]string{"audio": "question.wav"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "elamath_questions_answered_total") {
		t.Errorf("metrics body: got %q", rec.Body.String())
	}

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if observer.routes["ask"] != http.StatusOK {
		t.Errorf("observed ask status: got %d, want %d", observer.routes["ask"], http.StatusOK)
	}
}

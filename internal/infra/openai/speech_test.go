package openai_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"elamath/internal/infra/openai"
)

func TestSpeechClient_Speak(t *testing.T) {
	fakeMP3 := []byte("ID3\x03fake mp3 frames")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req["input"] != "Two x." || req["voice"] != "alloy" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(fakeMP3)
	}))
	defer server.Close()

	client := openai.NewSpeechClient("test-key", openai.SpeechOptions{BaseURL: server.URL})

	audio, err := client.Speak(context.Background(), "Two x.")
	if err != nil {
		t.Fatalf("Speak error: %v", err)
	}

	if !bytes.Equal(audio, fakeMP3) {
		t.Errorf("audio: got %q, want %q", audio, fakeMP3)
	}
}

package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/resonance/api/internal/config"
)

func TestGroqChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"model":"chat-model"`) {
			t.Errorf("request body = %s", body)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	c := NewGroqClient(&config.GroqConfig{APIKey: "key", BaseURL: srv.URL, Model: "chat-model"})
	got, err := c.ChatCompletion(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != "hello" {
		t.Errorf("content = %q", got)
	}
}

func TestGroqChatCompletionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	c := NewGroqClient(&config.GroqConfig{APIKey: "key", BaseURL: srv.URL})
	if _, err := c.ChatCompletion(context.Background(), "sys", "user"); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestGroqTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		if r.FormValue("model") != "whisper" {
			t.Errorf("model = %q", r.FormValue("model"))
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		w.Write([]byte(`{"text":" hello there ","language":"en","duration":12.5}`))
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "speech.wav")
	os.WriteFile(audio, []byte("RIFF"), 0o644)

	c := NewGroqClient(&config.GroqConfig{APIKey: "key", BaseURL: srv.URL, TranscribeModel: "whisper"})
	tr, err := c.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if tr.Text != " hello there " || tr.Language != "en" {
		t.Errorf("transcript = %+v", tr)
	}
	if tr.Duration == nil || *tr.Duration != 12.5 {
		t.Errorf("duration = %v", tr.Duration)
	}
}

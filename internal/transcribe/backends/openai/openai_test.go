package openai

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voiceloop/voiceloop/internal/transcribe"
)

func TestWhisperTranscribeRequest(t *testing.T) {
	var gotAuth, gotModel, gotLanguage string
	var gotFile []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		gotFile, _ = io.ReadAll(file)
		file.Close()
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " hello world "})
	}))
	defer srv.Close()

	backend, err := transcribe.NewBackend("openai", map[string]string{
		"openai_api_key":  "sk-test",
		"openai_base_url": srv.URL,
		"language":        "en",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer backend.Close()

	pcm := make([]byte, 3200)
	text, err := backend.Transcribe(t.Context(), pcm)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != " hello world " {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want default whisper-1", gotModel)
	}
	if gotLanguage != "en" {
		t.Errorf("language = %q", gotLanguage)
	}
	if len(gotFile) != 44+len(pcm) || !strings.HasPrefix(string(gotFile), "RIFF") {
		t.Errorf("uploaded file is not WAV-wrapped PCM: %d bytes", len(gotFile))
	}
}

func TestWhisperRequiresAPIKey(t *testing.T) {
	if _, err := transcribe.NewBackend("openai", map[string]string{}); err == nil {
		t.Fatal("missing API key did not error")
	}
}

func TestWhisperErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	backend, err := transcribe.NewBackend("openai", map[string]string{
		"openai_api_key":  "sk-test",
		"openai_base_url": srv.URL,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := backend.Transcribe(t.Context(), make([]byte, 3200)); err == nil {
		t.Fatal("HTTP 429 did not surface as error")
	}
}

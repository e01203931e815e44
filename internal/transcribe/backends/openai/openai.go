package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"

	"github.com/voiceloop/voiceloop/internal/audio"
	"github.com/voiceloop/voiceloop/internal/transcribe"
	"github.com/voiceloop/voiceloop/internal/transcribe/backends/restutil"
)

const captureSampleRate = 16000

func init() {
	transcribe.RegisterBackend("openai", func(config map[string]string) (transcribe.Transcriber, error) {
		apiKey := config["openai_api_key"]
		if apiKey == "" {
			apiKey = config["api_key"]
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key required (set openai_api_key in config)")
		}
		baseURL := config["openai_base_url"]
		if baseURL == "" {
			baseURL = config["base_url"]
		}
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := config["model"]
		if model == "" {
			model = "whisper-1"
		}
		return &Whisper{
			apiKey:   apiKey,
			baseURL:  baseURL,
			model:    model,
			language: config["language"],
		}, nil
	})
}

// Whisper transcribes clips through the OpenAI-compatible transcription
// API. An empty language lets the API auto-detect.
type Whisper struct {
	apiKey   string
	baseURL  string
	model    string
	language string
}

func (w *Whisper) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	// The API requires a container format, so wrap the raw PCM as WAV.
	wav := audio.WAVBytes(pcm, captureSampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("openai transcribe: create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("openai transcribe: write form file: %w", err)
	}
	_ = writer.WriteField("model", w.model)
	_ = writer.WriteField("response_format", "json")
	if w.language != "" {
		_ = writer.WriteField("language", w.language)
	}
	writer.Close()

	headers := map[string]string{
		"Authorization": "Bearer " + w.apiKey,
		"Content-Type":  writer.FormDataContentType(),
	}

	respBody, err := restutil.DoRaw(ctx, "POST", w.baseURL+"/audio/transcriptions", headers, &body)
	if err != nil {
		return "", fmt.Errorf("openai transcribe: %w", err)
	}
	defer respBody.Close()

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return "", fmt.Errorf("openai transcribe decode: %w", err)
	}
	return resp.Text, nil
}

func (w *Whisper) Close() error {
	return nil
}

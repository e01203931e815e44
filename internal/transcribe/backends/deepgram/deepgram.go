package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/voiceloop/voiceloop/internal/transcribe"
	"github.com/voiceloop/voiceloop/internal/transcribe/backends/restutil"
)

func init() {
	transcribe.RegisterBackend("deepgram", func(config map[string]string) (transcribe.Transcriber, error) {
		apiKey := config["deepgram_api_key"]
		if apiKey == "" {
			apiKey = config["api_key"]
		}
		if apiKey == "" {
			return nil, fmt.Errorf("deepgram API key required (set deepgram_api_key in config)")
		}
		baseURL := config["deepgram_base_url"]
		if baseURL == "" {
			baseURL = "https://api.deepgram.com"
		}
		model := config["model"]
		if model == "" {
			model = "nova-2"
		}
		return &Deepgram{
			apiKey:   apiKey,
			baseURL:  baseURL,
			model:    model,
			language: config["language"],
		}, nil
	})
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float32 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Deepgram transcribes clips through the Deepgram pre-recorded REST API,
// sending the raw 16kHz mono PCM directly.
type Deepgram struct {
	apiKey   string
	baseURL  string
	model    string
	language string
}

func (d *Deepgram) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	params := url.Values{}
	params.Set("model", d.model)
	if d.language != "" {
		params.Set("language", d.language)
	}
	apiURL := d.baseURL + "/v1/listen?" + params.Encode()

	headers := map[string]string{
		"Authorization": "Token " + d.apiKey,
		"Content-Type":  "audio/l16;rate=16000;channels=1",
	}

	body, err := restutil.DoRaw(ctx, "POST", apiURL, headers, bytes.NewReader(pcm))
	if err != nil {
		return "", fmt.Errorf("deepgram transcribe: %w", err)
	}
	defer body.Close()

	var resp listenResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("deepgram transcribe decode: %w", err)
	}

	if len(resp.Results.Channels) > 0 && len(resp.Results.Channels[0].Alternatives) > 0 {
		return resp.Results.Channels[0].Alternatives[0].Transcript, nil
	}
	return "", nil
}

func (d *Deepgram) Close() error {
	return nil
}

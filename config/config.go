package config

import (
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pitabwire/frame/config"
)

// VoiceloopConfig holds configuration for the voiceloop gateway service.
type VoiceloopConfig struct {
	config.ConfigurationDefault

	// Gateway / WebRTC
	STUNServers  string `envDefault:"stun:stun.l.google.com:19302" env:"STUN_SERVERS"`
	TURNServers  string `envDefault:""                             env:"TURN_SERVERS"`
	TURNUsername string `envDefault:""                             env:"TURN_USERNAME"`
	TURNPassword string `envDefault:""                             env:"TURN_PASSWORD"`

	// Voice activity detection
	UserThreshold        float64 `envDefault:"0.01" env:"VAD_USER_THRESHOLD"`
	CounterpartThreshold float64 `envDefault:"0.02" env:"VAD_COUNTERPART_THRESHOLD"`
	HangoverMs           int     `envDefault:"1000" env:"VAD_HANGOVER_MS"`
	AdaptiveThreshold    bool    `envDefault:"false" env:"VAD_ADAPTIVE"`
	AdaptiveMargin       float64 `envDefault:"0.015" env:"VAD_ADAPTIVE_MARGIN"`
	AdaptiveFloor        float64 `envDefault:"0.008" env:"VAD_ADAPTIVE_FLOOR"`
	LevelIntervalMs      int     `envDefault:"16"   env:"LEVEL_SAMPLE_INTERVAL_MS"`

	// Recording
	ChunkIntervalMs int `envDefault:"1000" env:"RECORD_CHUNK_INTERVAL_MS"`
	MinClipBytes    int `envDefault:"2000" env:"RECORD_MIN_CLIP_BYTES"`
	UnmuteDelayMs   int `envDefault:"500"  env:"UNMUTE_DELAY_MS"`

	// Transcription
	TranscribeBackend  string `envDefault:"openai" env:"TRANSCRIBE_BACKEND"`
	TranscribeLanguage string `envDefault:""       env:"TRANSCRIBE_LANGUAGE"`
	TranscribeModel    string `envDefault:""       env:"TRANSCRIBE_MODEL"`
	ChunkTimeoutSec    int    `envDefault:"10"     env:"TRANSCRIBE_CHUNK_TIMEOUT_SEC"`
	OpenAIAPIKey       string `envDefault:""       env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `envDefault:"https://api.openai.com/v1" env:"OPENAI_BASE_URL"`
	DeepgramAPIKey     string `envDefault:""       env:"DEEPGRAM_API_KEY"`
	DeepgramBaseURL    string `envDefault:"https://api.deepgram.com" env:"DEEPGRAM_BASE_URL"`

	// Transcription circuit breaker
	BreakerFailThreshold   int `envDefault:"3"  env:"TRANSCRIBE_CB_FAILURE_THRESHOLD"`
	BreakerResetTimeoutSec int `envDefault:"30" env:"TRANSCRIBE_CB_RESET_TIMEOUT_SEC"`

	// Tuning profiles
	ProfileDir     string `envDefault:"./profiles" env:"PROFILE_DIR"`
	DefaultProfile string `envDefault:"default"    env:"DEFAULT_PROFILE"`

	// Worker pool
	WorkerPoolCount    int `envDefault:"4"   env:"WORKER_POOL_COUNT"`
	WorkerPoolCapacity int `envDefault:"100" env:"WORKER_POOL_CAPACITY"`
}

// TranscribeConfigMap builds the service-level backend config map.
func (c *VoiceloopConfig) TranscribeConfigMap() map[string]string {
	return map[string]string{
		"openai_api_key":    c.OpenAIAPIKey,
		"openai_base_url":   c.OpenAIBaseURL,
		"deepgram_api_key":  c.DeepgramAPIKey,
		"deepgram_base_url": c.DeepgramBaseURL,
		"language":          c.TranscribeLanguage,
		"model":             c.TranscribeModel,
	}
}

// Hangover returns the VAD hangover window as a duration.
func (c *VoiceloopConfig) Hangover() time.Duration {
	return time.Duration(c.HangoverMs) * time.Millisecond
}

// ChunkInterval returns the recording timeslice as a duration.
func (c *VoiceloopConfig) ChunkInterval() time.Duration {
	return time.Duration(c.ChunkIntervalMs) * time.Millisecond
}

// UnmuteDelay returns the anti-echo unmute delay as a duration.
func (c *VoiceloopConfig) UnmuteDelay() time.Duration {
	return time.Duration(c.UnmuteDelayMs) * time.Millisecond
}

// WebRTCConfig builds a webrtc.Configuration from the STUN/TURN settings.
func (c *VoiceloopConfig) WebRTCConfig() webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if c.STUNServers != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: strings.Split(c.STUNServers, ","),
		})
	}
	if c.TURNServers != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:           strings.Split(c.TURNServers, ","),
			Username:       c.TURNUsername,
			Credential:     c.TURNPassword,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return webrtc.Configuration{ICEServers: iceServers}
}

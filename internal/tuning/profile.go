package tuning

import (
	"fmt"
	"time"
)

// Profile is one named set of conversation tuning values. Profiles let
// operators ship per-environment presets (quiet office, noisy cafe,
// speakerphone) without a redeploy.
type Profile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Detection thresholds on the normalized [0,1] level scale.
	UserThreshold        float64 `yaml:"user_threshold"`
	CounterpartThreshold float64 `yaml:"counterpart_threshold"`

	HangoverMs    int `yaml:"hangover_ms"`
	UnmuteDelayMs int `yaml:"unmute_delay_ms"`

	ChunkIntervalMs int `yaml:"chunk_interval_ms"`
	MinClipBytes    int `yaml:"min_clip_bytes"`

	Adaptive       bool    `yaml:"adaptive"`
	AdaptiveMargin float64 `yaml:"adaptive_margin,omitempty"`
	AdaptiveFloor  float64 `yaml:"adaptive_floor,omitempty"`
}

// Validate rejects profiles that would make the conversation unusable.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name required")
	}
	if p.UserThreshold <= 0 || p.UserThreshold >= 1 {
		return fmt.Errorf("profile %q: user_threshold %v out of (0,1)", p.Name, p.UserThreshold)
	}
	if p.CounterpartThreshold <= 0 || p.CounterpartThreshold >= 1 {
		return fmt.Errorf("profile %q: counterpart_threshold %v out of (0,1)", p.Name, p.CounterpartThreshold)
	}
	if p.HangoverMs <= 0 {
		return fmt.Errorf("profile %q: hangover_ms must be positive", p.Name)
	}
	if p.UnmuteDelayMs < 0 {
		return fmt.Errorf("profile %q: unmute_delay_ms must not be negative", p.Name)
	}
	if p.ChunkIntervalMs <= 0 {
		return fmt.Errorf("profile %q: chunk_interval_ms must be positive", p.Name)
	}
	if p.MinClipBytes < 0 {
		return fmt.Errorf("profile %q: min_clip_bytes must not be negative", p.Name)
	}
	if p.Adaptive && p.AdaptiveFloor <= 0 {
		return fmt.Errorf("profile %q: adaptive profiles need a positive adaptive_floor", p.Name)
	}
	return nil
}

// Hangover returns the hangover window as a duration.
func (p *Profile) Hangover() time.Duration {
	return time.Duration(p.HangoverMs) * time.Millisecond
}

// UnmuteDelay returns the anti-echo unmute delay as a duration.
func (p *Profile) UnmuteDelay() time.Duration {
	return time.Duration(p.UnmuteDelayMs) * time.Millisecond
}

// ChunkInterval returns the recording timeslice as a duration.
func (p *Profile) ChunkInterval() time.Duration {
	return time.Duration(p.ChunkIntervalMs) * time.Millisecond
}

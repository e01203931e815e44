package vad

import (
	"time"
)

// Kind distinguishes speaking edges.
type Kind int

const (
	Start Kind = iota
	Stop
)

func (k Kind) String() string {
	if k == Start {
		return "start"
	}
	return "stop"
}

// Edge is a discrete speaking transition for one source. Edges for a given
// source strictly alternate start/stop.
type Edge struct {
	Source string
	Kind   Kind
	At     time.Time
}

// Config holds detection parameters for one source.
type Config struct {
	// Threshold is the fixed activity threshold on the normalized level.
	Threshold float64
	// Hangover is the continuous silence required before a stop edge.
	// Start edges fire immediately on an upward crossing.
	Hangover time.Duration

	// Adaptive switches to a dynamic threshold: a trailing moving average
	// of recent levels plus Margin, clamped to no less than Floor.
	Adaptive       bool
	AdaptiveWindow int
	Margin         float64
	Floor          float64
}

// DefaultConfig returns the tuning used for the user's microphone.
func DefaultConfig() Config {
	return Config{
		Threshold:      0.01,
		Hangover:       time.Second,
		AdaptiveWindow: 50,
		Margin:         0.015,
		Floor:          0.008,
	}
}

// Detector turns a continuous level signal into debounced speaking edges.
// It is deterministic: callers feed (level, now) pairs via Observe, which
// makes the hangover logic directly testable with simulated clocks.
type Detector struct {
	source string
	cfg    Config

	speaking   bool
	belowSince time.Time

	// trailing window for the adaptive threshold
	window    []float64
	windowSum float64
	windowIdx int
	windowLen int
}

// NewDetector creates a detector for the given source.
func NewDetector(source string, cfg Config) *Detector {
	if cfg.Hangover <= 0 {
		cfg.Hangover = time.Second
	}
	if cfg.AdaptiveWindow <= 0 {
		cfg.AdaptiveWindow = 50
	}
	return &Detector{
		source: source,
		cfg:    cfg,
		window: make([]float64, cfg.AdaptiveWindow),
	}
}

// Observe feeds one level sample and returns a speaking edge when a
// debounced transition occurs, nil otherwise.
//
// Transitions: silent -> speaking immediately on an upward threshold
// crossing; speaking -> silent only after the hangover window elapses with
// the level continuously below threshold. Any sample back above threshold
// during the hangover resets it.
func (d *Detector) Observe(level float64, now time.Time) *Edge {
	threshold := d.threshold()
	d.push(level)

	if level > threshold {
		d.belowSince = time.Time{}
		if !d.speaking {
			d.speaking = true
			return &Edge{Source: d.source, Kind: Start, At: now}
		}
		return nil
	}

	if !d.speaking {
		return nil
	}

	if d.belowSince.IsZero() {
		d.belowSince = now
		return nil
	}
	if now.Sub(d.belowSince) >= d.cfg.Hangover {
		d.speaking = false
		d.belowSince = time.Time{}
		return &Edge{Source: d.source, Kind: Stop, At: now}
	}
	return nil
}

// Speaking reports the current debounced state.
func (d *Detector) Speaking() bool { return d.speaking }

// Source returns the source this detector watches.
func (d *Detector) Source() string { return d.source }

// Reset clears all detector state.
func (d *Detector) Reset() {
	d.speaking = false
	d.belowSince = time.Time{}
	d.window = make([]float64, d.cfg.AdaptiveWindow)
	d.windowSum = 0
	d.windowIdx = 0
	d.windowLen = 0
}

func (d *Detector) threshold() float64 {
	if !d.cfg.Adaptive || d.windowLen == 0 {
		return d.cfg.Threshold
	}
	avg := d.windowSum / float64(d.windowLen)
	t := avg + d.cfg.Margin
	if t < d.cfg.Floor {
		t = d.cfg.Floor
	}
	return t
}

func (d *Detector) push(level float64) {
	if d.windowLen == len(d.window) {
		d.windowSum -= d.window[d.windowIdx]
	} else {
		d.windowLen++
	}
	d.window[d.windowIdx] = level
	d.windowSum += level
	d.windowIdx = (d.windowIdx + 1) % len(d.window)
}

package audio

import (
	"sync"
	"sync/atomic"
)

// TapFunc receives a copy-safe view of one PCM frame (16-bit mono S16LE).
// Taps must not retain the slice past the call.
type TapFunc func(pcm []byte)

// Stream is a live PCM audio source. A capture layer pushes decoded frames
// in with Write; observers attach taps to see them. Disabling a stream
// (mute) drops frames at the source without releasing the capture,
// mirroring a disabled-but-live media track.
type Stream struct {
	id         string
	sampleRate int

	mu   sync.RWMutex
	taps map[string]TapFunc

	enabled atomic.Bool
	closed  atomic.Bool

	closeOnce sync.Once
	onClose   func()
}

// NewStream creates an enabled stream. onClose, if non-nil, runs exactly
// once when the stream is closed so the capture side can release its source.
func NewStream(id string, sampleRate int, onClose func()) *Stream {
	s := &Stream{
		id:         id,
		sampleRate: sampleRate,
		taps:       make(map[string]TapFunc),
		onClose:    onClose,
	}
	s.enabled.Store(true)
	return s
}

// ID returns the stream identifier.
func (s *Stream) ID() string { return s.id }

// SampleRate returns the PCM sample rate in Hz.
func (s *Stream) SampleRate() int { return s.sampleRate }

// Write dispatches one PCM frame to all taps. Frames written while the
// stream is disabled or closed are dropped.
func (s *Stream) Write(pcm []byte) {
	if s.closed.Load() || !s.enabled.Load() || len(pcm) == 0 {
		return
	}

	s.mu.RLock()
	taps := make([]TapFunc, 0, len(s.taps))
	for _, tap := range s.taps {
		taps = append(taps, tap)
	}
	s.mu.RUnlock()

	for _, tap := range taps {
		tap(pcm)
	}
}

// AddTap registers a frame observer under the given id.
func (s *Stream) AddTap(id string, fn TapFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taps[id] = fn
}

// RemoveTap removes a previously registered tap.
func (s *Stream) RemoveTap(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.taps, id)
}

// SetEnabled mutes or unmutes the stream. The capture source stays live.
func (s *Stream) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Enabled reports whether the stream is currently unmuted.
func (s *Stream) Enabled() bool { return s.enabled.Load() }

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool { return s.closed.Load() }

// Close tears the stream down. Safe to call multiple times; the close hook
// runs exactly once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.mu.Lock()
		s.taps = make(map[string]TapFunc)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
	})
}

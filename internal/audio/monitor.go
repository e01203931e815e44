package audio

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pitabwire/frame/workerpool"
)

// LevelListener is called on every sampling tick with the current
// normalized energy level.
type LevelListener func(level float64)

// LevelMonitor samples a stream's energy on a fixed cadence and reports a
// normalized [0,1] level. It is a pure sampling primitive; thresholding
// belongs to the VAD layer. A stream that produces no frames reports 0.
type LevelMonitor struct {
	stream   *Stream
	interval time.Duration

	mu        sync.RWMutex
	listeners map[string]LevelListener

	levelBits atomic.Uint64
	fresh     atomic.Bool // frame seen since last tick

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	pool     workerpool.WorkerPool
}

// NewLevelMonitor creates a monitor over the given stream.
func NewLevelMonitor(stream *Stream, interval time.Duration, pool workerpool.WorkerPool) *LevelMonitor {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &LevelMonitor{
		stream:    stream,
		interval:  interval,
		listeners: make(map[string]LevelListener),
		pool:      pool,
	}
}

// Start begins sampling. The monitor taps the stream and runs a ticker
// loop until Stop is called or the context is cancelled.
func (m *LevelMonitor) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	tapID := "level-monitor-" + m.stream.ID()
	m.stream.AddTap(tapID, func(pcm []byte) {
		m.levelBits.Store(math.Float64bits(RMSLevel(pcm)))
		m.fresh.Store(true)
	})

	fn := func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		defer m.stream.RemoveTap(tapID)
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				// No frames since the last tick means silence (or a
				// source with no audio track); report 0 rather than a
				// stale level.
				if !m.fresh.Swap(false) {
					m.levelBits.Store(0)
				}
				m.report(m.Level())
			}
		}
	}
	if m.pool != nil {
		_ = m.pool.Submit(m.ctx, fn)
	} else {
		go fn()
	}
}

// Level returns the most recently sampled level.
func (m *LevelMonitor) Level() float64 {
	return math.Float64frombits(m.levelBits.Load())
}

// AddListener registers a callback invoked on each sampling tick.
func (m *LevelMonitor) AddListener(id string, fn LevelListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[id] = fn
}

// RemoveListener removes a previously registered listener.
func (m *LevelMonitor) RemoveListener(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// Stop halts sampling and detaches from the stream. Idempotent.
func (m *LevelMonitor) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
	})
}

func (m *LevelMonitor) report(level float64) {
	m.mu.RLock()
	listeners := make([]LevelListener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(level)
	}
}

// RMSLevel computes the root-mean-square energy of 16-bit signed S16LE PCM,
// normalized to [0,1].
func RMSLevel(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	numSamples := len(pcm) / 2
	var sumSquares float64

	for i := 0; i < numSamples; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		sumSquares += float64(sample) * float64(sample)
	}

	return math.Sqrt(sumSquares/float64(numSamples)) / 32768.0
}

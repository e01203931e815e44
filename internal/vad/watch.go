package vad

import (
	"sync"
	"time"

	"github.com/voiceloop/voiceloop/internal/audio"
)

// EdgeFunc receives debounced speaking edges.
type EdgeFunc func(Edge)

// Watch attaches a detector to a level monitor and forwards edges to fn.
// The returned function detaches; safe to call multiple times.
//
// Monitor listeners are invoked from the monitor's single sampling
// goroutine, but a mutex guards the detector against a concurrent Reset.
func Watch(m *audio.LevelMonitor, d *Detector, fn EdgeFunc) func() {
	var mu sync.Mutex
	id := "vad-" + d.Source()

	m.AddListener(id, func(level float64) {
		mu.Lock()
		edge := d.Observe(level, time.Now())
		mu.Unlock()
		if edge != nil {
			fn(*edge)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() { m.RemoveListener(id) })
	}
}

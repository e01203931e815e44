package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

// pcmFrame builds a constant-amplitude S16LE frame of n samples.
func pcmFrame(amplitude int16, n int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func TestRMSLevel(t *testing.T) {
	if got := RMSLevel(nil); got != 0 {
		t.Errorf("RMSLevel(nil) = %v, want 0", got)
	}
	if got := RMSLevel(pcmFrame(0, 320)); got != 0 {
		t.Errorf("silent frame level = %v, want 0", got)
	}

	// Full-scale constant signal normalizes to ~1.
	got := RMSLevel(pcmFrame(32767, 320))
	if math.Abs(got-1.0) > 0.001 {
		t.Errorf("full-scale level = %v, want ~1.0", got)
	}

	// Half-scale constant signal normalizes to ~0.5.
	got = RMSLevel(pcmFrame(16384, 320))
	if math.Abs(got-0.5) > 0.001 {
		t.Errorf("half-scale level = %v, want ~0.5", got)
	}
}

func TestLevelMonitorReportsAndDecays(t *testing.T) {
	stream := NewStream("mic", 16000, nil)
	mon := NewLevelMonitor(stream, 5*time.Millisecond, nil)

	levels := make(chan float64, 64)
	mon.AddListener("t", func(level float64) {
		select {
		case levels <- level:
		default:
		}
	})

	mon.Start(t.Context())
	defer mon.Stop()

	// Feed loud frames for a while.
	deadline := time.After(200 * time.Millisecond)
	var sawLoud bool
feed:
	for !sawLoud {
		select {
		case <-deadline:
			break feed
		case lvl := <-levels:
			if lvl > 0.4 {
				sawLoud = true
			}
		default:
			stream.Write(pcmFrame(16384, 320))
			time.Sleep(time.Millisecond)
		}
	}
	if !sawLoud {
		t.Fatal("monitor never reported an elevated level")
	}

	// Stop feeding; level must decay to 0 once frames stop arriving.
	deadline = time.After(200 * time.Millisecond)
	for {
		select {
		case <-deadline:
			t.Fatal("level never decayed to 0 after frames stopped")
		case lvl := <-levels:
			if lvl == 0 {
				return
			}
		}
	}
}

func TestLevelMonitorStopIdempotent(t *testing.T) {
	stream := NewStream("mic", 16000, nil)
	mon := NewLevelMonitor(stream, 5*time.Millisecond, nil)
	mon.Start(t.Context())

	mon.Stop()
	mon.Stop() // must not panic
}

func TestStreamMuteDropsFrames(t *testing.T) {
	stream := NewStream("mic", 16000, nil)

	var frames int
	stream.AddTap("t", func([]byte) { frames++ })

	stream.Write(pcmFrame(100, 320))
	stream.SetEnabled(false)
	stream.Write(pcmFrame(100, 320))
	stream.Write(pcmFrame(100, 320))
	stream.SetEnabled(true)
	stream.Write(pcmFrame(100, 320))

	if frames != 2 {
		t.Errorf("taps saw %d frames, want 2 (muted frames dropped)", frames)
	}
}

func TestStreamCloseRunsHookOnce(t *testing.T) {
	var closes int
	stream := NewStream("mic", 16000, func() { closes++ })

	stream.Close()
	stream.Close()

	if closes != 1 {
		t.Errorf("close hook ran %d times, want 1", closes)
	}
	if !stream.Closed() {
		t.Error("stream not marked closed")
	}
}

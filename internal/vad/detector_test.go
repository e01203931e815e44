package vad

import (
	"testing"
	"time"
)

func cfg() Config {
	return Config{Threshold: 0.02, Hangover: time.Second}
}

// feed runs a sequence of (level, offsetMs) samples through the detector
// and collects the emitted edges.
func feed(t *testing.T, d *Detector, samples []struct {
	level float64
	ms    int
}) []Edge {
	t.Helper()
	base := time.Unix(0, 0)
	var edges []Edge
	for _, s := range samples {
		if e := d.Observe(s.level, base.Add(time.Duration(s.ms)*time.Millisecond)); e != nil {
			edges = append(edges, *e)
		}
	}
	return edges
}

func TestStartFiresImmediately(t *testing.T) {
	d := NewDetector("user", cfg())
	base := time.Unix(0, 0)

	if e := d.Observe(0.01, base); e != nil {
		t.Fatalf("edge below threshold: %+v", e)
	}
	e := d.Observe(0.05, base.Add(16*time.Millisecond))
	if e == nil || e.Kind != Start {
		t.Fatalf("expected immediate start edge, got %+v", e)
	}
	if !d.Speaking() {
		t.Error("detector not speaking after start edge")
	}
}

func TestStopRequiresFullHangover(t *testing.T) {
	d := NewDetector("user", cfg())
	edges := feed(t, d, []struct {
		level float64
		ms    int
	}{
		{0.05, 0},    // start
		{0.05, 100},  //
		{0.005, 200}, // silence begins
		{0.005, 700}, // 500ms of silence, inside hangover
		{0.005, 1100},
		{0.005, 1250}, // 1050ms of continuous silence, stop fires
	})

	if len(edges) != 2 {
		t.Fatalf("edges = %d, want 2: %+v", len(edges), edges)
	}
	if edges[0].Kind != Start || edges[1].Kind != Stop {
		t.Errorf("edge kinds = %v, %v; want start, stop", edges[0].Kind, edges[1].Kind)
	}
}

func TestHangoverResetsOnSpeechResume(t *testing.T) {
	d := NewDetector("user", cfg())
	edges := feed(t, d, []struct {
		level float64
		ms    int
	}{
		{0.05, 0},     // start
		{0.005, 100},  // brief pause
		{0.005, 900},  // 800ms silence, still inside hangover
		{0.05, 950},   // speech resumes, hangover resets
		{0.005, 1000}, // silence again
		{0.005, 1900}, // 900ms, still inside the new hangover
		{0.005, 2000}, // 1000ms, stop fires
	})

	if len(edges) != 2 {
		t.Fatalf("edges = %d, want 2 (mid-utterance pause must not split): %+v", len(edges), edges)
	}
	if edges[1].Kind != Stop {
		t.Errorf("second edge = %v, want stop", edges[1].Kind)
	}
}

func TestEdgesStrictlyAlternate(t *testing.T) {
	d := NewDetector("user", cfg())

	// Noisy sequence oscillating around the threshold with long runs.
	samples := make([]struct {
		level float64
		ms    int
	}, 0, 400)
	for i := 0; i < 400; i++ {
		level := 0.005
		// Bursts of speech at irregular stretches.
		if (i/37)%2 == 0 && i%3 != 0 {
			level = 0.08
		}
		samples = append(samples, struct {
			level float64
			ms    int
		}{level, i * 50})
	}

	edges := feed(t, d, samples)
	if len(edges) == 0 {
		t.Fatal("no edges emitted")
	}
	for i := 1; i < len(edges); i++ {
		if edges[i].Kind == edges[i-1].Kind {
			t.Fatalf("consecutive %v edges at %d", edges[i].Kind, i)
		}
	}
	if edges[0].Kind != Start {
		t.Errorf("first edge = %v, want start", edges[0].Kind)
	}
}

func TestScenarioSingleUtterance(t *testing.T) {
	// User speaks: level rises above 0.02, held 1200ms, then silence for
	// longer than the hangover window. Exactly one start and one stop.
	d := NewDetector("user", cfg())

	samples := make([]struct {
		level float64
		ms    int
	}, 0, 200)
	for ms := 0; ms <= 1200; ms += 50 {
		samples = append(samples, struct {
			level float64
			ms    int
		}{0.05, ms})
	}
	for ms := 1250; ms <= 2600; ms += 50 {
		samples = append(samples, struct {
			level float64
			ms    int
		}{0.005, ms})
	}

	edges := feed(t, d, samples)
	if len(edges) != 2 {
		t.Fatalf("edges = %d, want exactly 2: %+v", len(edges), edges)
	}
	if edges[0].Kind != Start || edges[1].Kind != Stop {
		t.Errorf("unexpected edge kinds: %+v", edges)
	}
}

func TestAdaptiveThresholdTracksAmbientNoise(t *testing.T) {
	d := NewDetector("user", Config{
		Threshold:      0.01,
		Hangover:       time.Second,
		Adaptive:       true,
		AdaptiveWindow: 10,
		Margin:         0.02,
		Floor:          0.008,
	})
	base := time.Unix(0, 0)

	// Steady ambient hum at 0.03. The very first samples may trigger a
	// start against the cold threshold, but once the moving average warms
	// up the dynamic threshold rises to ~0.05 and the hum reads as
	// silence, so the detector settles back to silent and stays there.
	var edges []Edge
	for i := 0; i < 200; i++ {
		if e := d.Observe(0.03, base.Add(time.Duration(i*16)*time.Millisecond)); e != nil {
			edges = append(edges, *e)
		}
	}
	if d.Speaking() {
		t.Fatal("detector still speaking on steady ambient noise")
	}
	if len(edges) > 2 {
		t.Fatalf("ambient noise produced %d edges, want at most start+stop: %+v", len(edges), edges)
	}

	// A genuinely loud sample still triggers over the adapted threshold.
	e := d.Observe(0.2, base.Add(10*time.Second))
	if e == nil || e.Kind != Start {
		t.Fatalf("loud sample did not trigger start over adapted threshold: %+v", e)
	}
}

func TestAdaptiveThresholdClampsToFloor(t *testing.T) {
	d := NewDetector("user", Config{
		Threshold:      0.01,
		Hangover:       time.Second,
		Adaptive:       true,
		AdaptiveWindow: 5,
		Margin:         0.001,
		Floor:          0.01,
	})
	base := time.Unix(0, 0)

	// Dead silence drives the moving average to ~0; the floor must still
	// require a minimum absolute energy.
	for i := 0; i < 20; i++ {
		d.Observe(0.0, base.Add(time.Duration(i*16)*time.Millisecond))
	}
	if e := d.Observe(0.005, base.Add(time.Second)); e != nil {
		t.Fatalf("sub-floor level triggered an edge: %+v", e)
	}
	if e := d.Observe(0.05, base.Add(2*time.Second)); e == nil {
		t.Fatal("above-floor level did not trigger")
	}
}

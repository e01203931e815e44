package turn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"

	"github.com/voiceloop/voiceloop/internal/audio"
	"github.com/voiceloop/voiceloop/internal/record"
	"github.com/voiceloop/voiceloop/internal/transcribe"
	"github.com/voiceloop/voiceloop/internal/vad"
	"github.com/voiceloop/voiceloop/pkg/events"
)

// Source names for the two conversation sides.
const (
	SourceUser        = "user"
	SourceCounterpart = "counterpart"
)

// State is who currently owns the floor.
type State int

const (
	Idle State = iota
	UserSpeaking
	CounterpartSpeaking
)

func (s State) String() string {
	switch s {
	case UserSpeaking:
		return "user_speaking"
	case CounterpartSpeaking:
		return "counterpart_speaking"
	default:
		return "idle"
	}
}

// Config holds coordinator tuning.
type Config struct {
	// UnmuteDelay is how long after the counterpart stops before the
	// user microphone is re-enabled. The gap absorbs playback echo tails
	// that would otherwise trigger the user detector.
	UnmuteDelay time.Duration
}

// DefaultConfig waits 500ms before unmuting.
func DefaultConfig() Config {
	return Config{UnmuteDelay: 500 * time.Millisecond}
}

// Coordinator arbitrates the half-duplex conversation. It consumes voice
// activity edges from both detectors and drives recording, muting and
// transcription so that exactly one side ever records at a time, with
// the counterpart taking precedence over the user microphone.
type Coordinator struct {
	cfg         Config
	userStream  *audio.Stream
	cpStream    *audio.Stream
	userRec     *record.Controller
	cpRec       *record.Controller
	pipeline    *transcribe.Pipeline
	publisher   *events.Publisher
	pool        workerpool.WorkerPool

	mu          sync.Mutex
	state       State
	cpSpeaking  bool
	unmuteTimer *time.Timer
	closed      bool
}

// NewCoordinator wires the two streams and their recording controllers
// together. The controllers must share one SessionLock; the user
// controller carries the single-shot clip sink, the counterpart side is
// transcribed chunk-by-chunk while it speaks.
func NewCoordinator(
	userStream, cpStream *audio.Stream,
	userRec, cpRec *record.Controller,
	pipeline *transcribe.Pipeline,
	publisher *events.Publisher,
	cfg Config,
	pool workerpool.WorkerPool,
) *Coordinator {
	if cfg.UnmuteDelay <= 0 {
		cfg.UnmuteDelay = 500 * time.Millisecond
	}
	return &Coordinator{
		cfg:        cfg,
		userStream: userStream,
		cpStream:   cpStream,
		userRec:    userRec,
		cpRec:      cpRec,
		pipeline:   pipeline,
		publisher:  publisher,
		pool:       pool,
	}
}

// HandleEdge is the single entry point for voice activity transitions.
// Wire it to both detectors via vad.Watch.
func (c *Coordinator) HandleEdge(ctx context.Context, e vad.Edge) {
	switch {
	case e.Source == SourceCounterpart && e.Kind == vad.Start:
		c.counterpartStarted(ctx)
	case e.Source == SourceCounterpart && e.Kind == vad.Stop:
		c.counterpartStopped(ctx)
	case e.Source == SourceUser && e.Kind == vad.Start:
		c.userStarted(ctx)
	case e.Source == SourceUser && e.Kind == vad.Stop:
		c.userStopped(ctx)
	}
}

// State reports who holds the floor.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears the coordinator down: any pending unmute fires immediately
// and active sessions are finalized.
func (c *Coordinator) Close(ctx context.Context) {
	c.mu.Lock()
	c.closed = true
	if c.unmuteTimer != nil {
		c.unmuteTimer.Stop()
		c.unmuteTimer = nil
	}
	c.state = Idle
	c.cpSpeaking = false
	c.mu.Unlock()

	c.userRec.Stop(ctx)
	c.cpRec.Stop(ctx)
	c.userStream.SetEnabled(true)
}

// counterpartStarted mutes the user microphone and opens a counterpart
// recording session. The mute happens before the lock attempt so echo is
// suppressed even when the user still holds the floor.
func (c *Coordinator) counterpartStarted(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.unmuteTimer != nil {
		c.unmuteTimer.Stop()
		c.unmuteTimer = nil
	}
	// The counterpart owns the floor from its start edge until its stop
	// edge, whether or not a recording session can be opened for it. The
	// flag outlives a failed lock grab so a user start arriving after the
	// user's own stop, but before the counterpart's stop, is still dropped.
	c.cpSpeaking = true
	c.userStream.SetEnabled(false)
	c.mu.Unlock()

	sess, err := c.cpRec.Start(ctx, c.cpStream)
	if err != nil {
		slog.InfoContext(ctx, "coordinator: counterpart turn dropped",
			slog.String("reason", err.Error()))
		c.emit(ctx, events.TurnDropped, "", events.TurnDroppedData{
			Role: SourceCounterpart, Reason: "recording session active",
		})
		return
	}

	c.mu.Lock()
	c.state = CounterpartSpeaking
	c.mu.Unlock()

	c.emit(ctx, events.SpeakingStarted, sess.ID, events.SpeakingData{Role: SourceCounterpart})

	// Live draft: transcribe timeslice chunks as they land. The stream
	// ends when the session stops and the final message is inserted then.
	chunks := sess.Chunks()
	fn := func() {
		if _, err := c.pipeline.TranscribeStream(context.WithoutCancel(ctx), sess.ID, SourceCounterpart, chunks); err != nil {
			slog.ErrorContext(ctx, "coordinator: counterpart stream transcription failed",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()))
		}
	}
	if c.pool != nil {
		if err := c.pool.Submit(ctx, fn); err != nil {
			go fn()
		}
	} else {
		go fn()
	}
}

// counterpartStopped finalizes the counterpart session and schedules the
// delayed unmute of the user microphone.
func (c *Coordinator) counterpartStopped(ctx context.Context) {
	c.mu.Lock()
	c.cpSpeaking = false
	if c.state == CounterpartSpeaking {
		c.state = Idle
	}
	c.mu.Unlock()

	sessID, active := c.cpRec.ActiveSession()
	c.cpRec.Stop(ctx)
	if active {
		c.emit(ctx, events.SpeakingStopped, sessID, events.SpeakingData{Role: SourceCounterpart})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.userStream.SetEnabled(true)
		return
	}
	if c.unmuteTimer != nil {
		c.unmuteTimer.Stop()
	}
	c.unmuteTimer = time.AfterFunc(c.cfg.UnmuteDelay, func() {
		c.userStream.SetEnabled(true)
		slog.Info("coordinator: user microphone unmuted",
			slog.Duration("delay", c.cfg.UnmuteDelay))
	})
}

// userStarted opens a user recording session unless the counterpart
// holds the floor, in which case the turn is dropped.
func (c *Coordinator) userStarted(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cpSpeaking {
		c.mu.Unlock()
		slog.InfoContext(ctx, "coordinator: user turn dropped, counterpart speaking")
		c.emit(ctx, events.TurnDropped, "", events.TurnDroppedData{
			Role: SourceUser, Reason: "counterpart speaking",
		})
		return
	}
	c.mu.Unlock()

	sess, err := c.userRec.Start(ctx, c.userStream)
	if err != nil {
		slog.InfoContext(ctx, "coordinator: user turn dropped",
			slog.String("reason", err.Error()))
		c.emit(ctx, events.TurnDropped, "", events.TurnDroppedData{
			Role: SourceUser, Reason: "recording session active",
		})
		return
	}

	c.mu.Lock()
	c.state = UserSpeaking
	c.mu.Unlock()

	c.emit(ctx, events.SpeakingStarted, sess.ID, events.SpeakingData{Role: SourceUser})
}

// userStopped finalizes the user session. The controller's clip sink
// carries the audio on to single-shot transcription.
func (c *Coordinator) userStopped(ctx context.Context) {
	c.mu.Lock()
	if c.state == UserSpeaking {
		c.state = Idle
	}
	c.mu.Unlock()

	sessID, active := c.userRec.ActiveSession()
	c.userRec.Stop(ctx)
	if active {
		c.emit(ctx, events.SpeakingStopped, sessID, events.SpeakingData{Role: SourceUser})
	}
}

func (c *Coordinator) emit(ctx context.Context, t events.EventType, sessionID string, data any) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Emit(ctx, t, sessionID, data); err != nil {
		slog.WarnContext(ctx, "coordinator: event emit failed",
			slog.String("event_type", string(t)),
			slog.String("error", err.Error()))
	}
}

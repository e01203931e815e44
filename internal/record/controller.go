package record

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"
	"github.com/rs/xid"

	"github.com/voiceloop/voiceloop/internal/audio"
)

// ErrLockHeld is returned when a start attempt loses to an active session
// elsewhere. It is a soft error: the turn is dropped and logged, nothing
// is surfaced to the user.
var ErrLockHeld = errors.New("recording session already active")

// State is the lifecycle state of a session.
type State int

const (
	Idle State = iota
	Recording
	Finalizing
)

// Clip is one finalized recording: the contiguous PCM of a whole turn.
type Clip struct {
	SessionID  string
	Source     string
	PCM        []byte
	SampleRate int
	Duration   time.Duration
}

// ClipFunc consumes a finalized clip, typically handing it to the
// transcription pipeline.
type ClipFunc func(ctx context.Context, clip Clip)

// Session accumulates timeslice chunks for one turn. Its ID doubles as the
// generation token: results carrying a stale session ID are ignored
// downstream.
type Session struct {
	ID        string
	Source    string
	StartedAt time.Time

	bufMu  sync.Mutex
	buf    []byte
	chunks [][]byte

	chunkCh  chan []byte
	sendMu   sync.Mutex
	chClosed bool
	cancel   context.CancelFunc
	tapID    string
	stream   *audio.Stream
}

// Chunks exposes the live timeslice sequence for streaming transcription.
// The channel is closed when the session stops.
func (s *Session) Chunks() <-chan []byte { return s.chunkCh }

// Config holds controller tuning.
type Config struct {
	// ChunkInterval is the timeslice cadence for chunk emission.
	ChunkInterval time.Duration
	// MinClipBytes guards against transcribing near-silent noise bursts.
	MinClipBytes int
	SampleRate   int
}

// DefaultConfig mirrors the browser recorder's 1s timeslice and 2000-byte
// minimum clip.
func DefaultConfig() Config {
	return Config{
		ChunkInterval: time.Second,
		MinClipBytes:  2000,
		SampleRate:    16000,
	}
}

// Controller owns at most one recording session for one source. All
// controllers share a SessionLock; acquiring it is the only way a session
// enters the recording state.
type Controller struct {
	source string
	lock   *SessionLock
	cfg    Config
	onClip ClipFunc
	pool   workerpool.WorkerPool

	mu      sync.Mutex
	session *Session
}

// NewController creates a controller for one source. All controllers in a
// system must share the same lock instance.
func NewController(source string, lock *SessionLock, cfg Config, onClip ClipFunc, pool workerpool.WorkerPool) *Controller {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = time.Second
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Controller{
		source: source,
		lock:   lock,
		cfg:    cfg,
		onClip: onClip,
		pool:   pool,
	}
}

// Start opens a new session recording from the stream. Returns ErrLockHeld
// without side effects if any session is active anywhere in the system.
func (c *Controller) Start(ctx context.Context, stream *audio.Stream) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil, ErrLockHeld
	}
	if !c.lock.TryAcquire() {
		slog.InfoContext(ctx, "recorder: start dropped, session active elsewhere",
			slog.String("source", c.source))
		return nil, ErrLockHeld
	}

	sessCtx, cancel := context.WithCancel(ctx)
	sess := &Session{
		ID:        xid.New().String(),
		Source:    c.source,
		StartedAt: time.Now(),
		chunkCh:   make(chan []byte, 32),
		cancel:    cancel,
		stream:    stream,
	}
	sess.tapID = "recorder-" + sess.ID

	stream.AddTap(sess.tapID, func(pcm []byte) {
		sess.bufMu.Lock()
		sess.buf = append(sess.buf, pcm...)
		sess.bufMu.Unlock()
	})

	fn := func() {
		ticker := time.NewTicker(c.cfg.ChunkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sessCtx.Done():
				return
			case <-ticker.C:
				c.flush(sess)
			}
		}
	}
	if c.pool != nil {
		_ = c.pool.Submit(sessCtx, fn)
	} else {
		go fn()
	}

	c.session = sess
	slog.InfoContext(ctx, "recorder: session started",
		slog.String("source", c.source), slog.String("session_id", sess.ID))
	return sess, nil
}

// Stop finalizes the active session: the chunk sequence becomes one
// contiguous clip, the lock is released, and the clip is handed to the
// sink. Calling Stop with no active session is a no-op that does not touch
// the lock.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.mu.Unlock()

	if sess == nil {
		return
	}
	// Release must happen even if clip handling below misbehaves.
	defer c.lock.Release()

	sess.stream.RemoveTap(sess.tapID)
	sess.cancel()
	c.flush(sess)

	sess.sendMu.Lock()
	sess.chClosed = true
	close(sess.chunkCh)
	sess.sendMu.Unlock()

	sess.bufMu.Lock()
	var total int
	for _, chunk := range sess.chunks {
		total += len(chunk)
	}
	pcm := make([]byte, 0, total)
	for _, chunk := range sess.chunks {
		pcm = append(pcm, chunk...)
	}
	sess.bufMu.Unlock()

	if len(pcm) < c.cfg.MinClipBytes {
		slog.InfoContext(ctx, "recorder: clip below minimum size, discarded",
			slog.String("source", c.source),
			slog.String("session_id", sess.ID),
			slog.Int("bytes", len(pcm)))
		return
	}

	clip := Clip{
		SessionID:  sess.ID,
		Source:     sess.Source,
		PCM:        pcm,
		SampleRate: c.cfg.SampleRate,
		Duration:   time.Duration(len(pcm)/2) * time.Second / time.Duration(c.cfg.SampleRate),
	}
	slog.InfoContext(ctx, "recorder: session finalized",
		slog.String("source", c.source),
		slog.String("session_id", sess.ID),
		slog.Int("bytes", len(pcm)))

	if c.onClip == nil {
		return
	}
	fn := func() { c.onClip(ctx, clip) }
	if c.pool != nil {
		if err := c.pool.Submit(ctx, fn); err != nil {
			go fn()
		}
	} else {
		go fn()
	}
}

// Recording reports whether this controller has an active session.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// ActiveSession returns the current session ID, if any.
func (c *Controller) ActiveSession() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return "", false
	}
	return c.session.ID, true
}

// flush moves the accumulating buffer into the chunk sequence and offers
// it to the streaming channel. Streaming consumers that fall behind lose
// chunks from the live view only; the final clip always contains them.
func (c *Controller) flush(sess *Session) {
	sess.bufMu.Lock()
	if len(sess.buf) == 0 {
		sess.bufMu.Unlock()
		return
	}
	chunk := sess.buf
	sess.buf = nil
	sess.chunks = append(sess.chunks, chunk)
	sess.bufMu.Unlock()

	sess.sendMu.Lock()
	defer sess.sendMu.Unlock()
	if sess.chClosed {
		return
	}
	select {
	case sess.chunkCh <- chunk:
	default:
		slog.Warn("recorder: streaming consumer behind, chunk dropped from live view",
			slog.String("session_id", sess.ID))
	}
}

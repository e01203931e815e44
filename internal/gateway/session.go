package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"

	"github.com/voiceloop/voiceloop/config"
	"github.com/voiceloop/voiceloop/internal/audio"
	"github.com/voiceloop/voiceloop/internal/chat"
	"github.com/voiceloop/voiceloop/internal/record"
	"github.com/voiceloop/voiceloop/internal/transcribe"
	"github.com/voiceloop/voiceloop/internal/tuning"
	"github.com/voiceloop/voiceloop/internal/turn"
	"github.com/voiceloop/voiceloop/internal/vad"
	"github.com/voiceloop/voiceloop/pkg/events"
)

const captureSampleRate = 16000

// Deps carries everything a session needs from the service.
type Deps struct {
	Cfg         *config.VoiceloopConfig
	Profiles    *tuning.Loader // optional; overrides the env tuning
	ProfileName string
	Board       *chat.Board
	Publisher   *events.Publisher
	Pool        workerpool.WorkerPool
}

// settings is the resolved tuning for one session: the active profile
// when one is loaded, the env config otherwise.
type settings struct {
	userThreshold        float64
	counterpartThreshold float64
	hangover             time.Duration
	unmuteDelay          time.Duration
	chunkInterval        time.Duration
	minClipBytes         int
	levelInterval        time.Duration
	adaptive             bool
	adaptiveMargin       float64
	adaptiveFloor        float64
}

func resolveSettings(cfg *config.VoiceloopConfig, p *tuning.Profile) settings {
	s := settings{
		userThreshold:        cfg.UserThreshold,
		counterpartThreshold: cfg.CounterpartThreshold,
		hangover:             cfg.Hangover(),
		unmuteDelay:          cfg.UnmuteDelay(),
		chunkInterval:        cfg.ChunkInterval(),
		minClipBytes:         cfg.MinClipBytes,
		levelInterval:        time.Duration(cfg.LevelIntervalMs) * time.Millisecond,
		adaptive:             cfg.AdaptiveThreshold,
		adaptiveMargin:       cfg.AdaptiveMargin,
		adaptiveFloor:        cfg.AdaptiveFloor,
	}
	if p == nil {
		return s
	}
	s.userThreshold = p.UserThreshold
	s.counterpartThreshold = p.CounterpartThreshold
	s.hangover = p.Hangover()
	s.unmuteDelay = p.UnmuteDelay()
	s.chunkInterval = p.ChunkInterval()
	s.minClipBytes = p.MinClipBytes
	s.adaptive = p.Adaptive
	if p.AdaptiveMargin > 0 {
		s.adaptiveMargin = p.AdaptiveMargin
	}
	if p.AdaptiveFloor > 0 {
		s.adaptiveFloor = p.AdaptiveFloor
	}
	return s
}

// Session is one browser conversation: a WebRTC peer feeding two audio
// streams, the detection and recording machinery around them, and the
// transcription pipeline behind it all.
type Session struct {
	ID string

	peer       *Peer
	userStream *audio.Stream
	cpStream   *audio.Stream
	userMon    *audio.LevelMonitor
	cpMon      *audio.LevelMonitor
	coord      *turn.Coordinator
	pipeline   *transcribe.Pipeline

	publisher *events.Publisher
	unwatch   []func()
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Coordinator exposes the turn arbiter, mainly for state reporting.
func (s *Session) Coordinator() *turn.Coordinator { return s.coord }

// Peer exposes the WebRTC side for signaling.
func (s *Session) Peer() *Peer { return s.peer }

// Levels reports the current user and counterpart energy levels.
func (s *Session) Levels() (user, counterpart float64) {
	return s.userMon.Level(), s.cpMon.Level()
}

// Close tears the whole session down in dependency order.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		for _, fn := range s.unwatch {
			fn()
		}
		s.coord.Close(ctx)
		s.userMon.Stop()
		s.cpMon.Stop()
		s.peer.Close()
		s.userStream.Close()
		s.cpStream.Close()
		if err := s.pipeline.Close(); err != nil {
			slog.WarnContext(ctx, "session: pipeline close failed",
				slog.String("error", err.Error()))
		}
		s.cancel()

		if s.publisher != nil {
			_ = s.publisher.Emit(ctx, events.SessionClosed, s.ID,
				events.SessionData{PeerID: s.ID})
		}
		slog.InfoContext(ctx, "session: closed", slog.String("session_id", s.ID))
	})
}

// discard releases a session that failed assembly before it had a peer.
// Mirrors Close minus the peer and monitors, which do not exist or have
// not started at that point.
func (s *Session) discard(ctx context.Context) {
	for _, fn := range s.unwatch {
		fn()
	}
	s.coord.Close(ctx)
	s.userStream.Close()
	s.cpStream.Close()
	if err := s.pipeline.Close(); err != nil {
		slog.WarnContext(ctx, "session: pipeline close failed",
			slog.String("error", err.Error()))
	}
	s.cancel()
}

// Manager tracks live sessions.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Open assembles a full session for one peer.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	deps := m.deps
	var profile *tuning.Profile
	if deps.Profiles != nil {
		if p, ok := deps.Profiles.Get(deps.ProfileName); ok {
			profile = p
		}
	}
	s := resolveSettings(deps.Cfg, profile)

	backend, err := transcribe.NewBackend(deps.Cfg.TranscribeBackend, deps.Cfg.TranscribeConfigMap())
	if err != nil {
		return nil, fmt.Errorf("create transcription backend: %w", err)
	}

	pcfg := transcribe.DefaultPipelineConfig()
	pcfg.ChunkTimeout = time.Duration(deps.Cfg.ChunkTimeoutSec) * time.Second
	pcfg.Breaker = transcribe.BreakerConfig{
		FailureThreshold: deps.Cfg.BreakerFailThreshold,
		ResetTimeout:     time.Duration(deps.Cfg.BreakerResetTimeoutSec) * time.Second,
	}
	pipeline := transcribe.NewPipeline(backend, deps.Board, pcfg)

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	userStream := audio.NewStream(id+"-user", captureSampleRate, nil)
	cpStream := audio.NewStream(id+"-counterpart", captureSampleRate, nil)

	userMon := audio.NewLevelMonitor(userStream, s.levelInterval, deps.Pool)
	cpMon := audio.NewLevelMonitor(cpStream, s.levelInterval, deps.Pool)

	lock := record.NewSessionLock()
	recCfg := record.Config{
		ChunkInterval: s.chunkInterval,
		MinClipBytes:  s.minClipBytes,
		SampleRate:    captureSampleRate,
	}
	userRec := record.NewController(turn.SourceUser, lock, recCfg,
		func(ctx context.Context, clip record.Clip) {
			_, _ = pipeline.TranscribeClip(ctx, clip, turn.SourceUser)
		}, deps.Pool)
	cpRec := record.NewController(turn.SourceCounterpart, lock, recCfg, nil, deps.Pool)

	coord := turn.NewCoordinator(userStream, cpStream, userRec, cpRec,
		pipeline, deps.Publisher, turn.Config{UnmuteDelay: s.unmuteDelay}, deps.Pool)

	userDet := vad.NewDetector(turn.SourceUser, vad.Config{
		Threshold:      s.userThreshold,
		Hangover:       s.hangover,
		Adaptive:       s.adaptive,
		AdaptiveWindow: vad.DefaultConfig().AdaptiveWindow,
		Margin:         s.adaptiveMargin,
		Floor:          s.adaptiveFloor,
	})
	cpDet := vad.NewDetector(turn.SourceCounterpart, vad.Config{
		Threshold:      s.counterpartThreshold,
		Hangover:       s.hangover,
		Adaptive:       s.adaptive,
		AdaptiveWindow: vad.DefaultConfig().AdaptiveWindow,
		Margin:         s.adaptiveMargin,
		Floor:          s.adaptiveFloor,
	})

	edgeFn := func(e vad.Edge) { coord.HandleEdge(sessCtx, e) }
	unwatchUser := vad.Watch(userMon, userDet, edgeFn)
	unwatchCP := vad.Watch(cpMon, cpDet, edgeFn)

	sess := &Session{
		ID:         id,
		userStream: userStream,
		cpStream:   cpStream,
		userMon:    userMon,
		cpMon:      cpMon,
		coord:      coord,
		pipeline:   pipeline,
		publisher:  deps.Publisher,
		unwatch:    []func(){unwatchUser, unwatchCP},
		cancel:     cancel,
	}

	peer, err := NewPeer(sessCtx, id, deps.Cfg.WebRTCConfig(), userStream, cpStream, deps.Pool)
	if err != nil {
		sess.discard(ctx)
		return nil, err
	}
	sess.peer = peer

	userMon.Start(sessCtx)
	cpMon.Start(sessCtx)

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	if deps.Publisher != nil {
		_ = deps.Publisher.Emit(ctx, events.SessionOpened, id, events.SessionData{PeerID: id})
	}
	slog.InfoContext(ctx, "session: opened",
		slog.String("session_id", id),
		slog.String("backend", deps.Cfg.TranscribeBackend))
	return sess, nil
}

// Get returns a live session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Close tears down one session.
func (m *Manager) Close(ctx context.Context, id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		sess.Close(ctx)
	}
}

// CloseAll tears down every live session.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Close(ctx)
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

package transcribe

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/voiceloop/voiceloop/internal/record"
)

// ErrBreakerOpen is returned when the circuit breaker is rejecting
// transcription attempts.
var ErrBreakerOpen = errors.New("transcription breaker open")

// PipelineConfig holds pipeline tuning.
type PipelineConfig struct {
	// ChunkTimeout bounds each backend request. Streaming chunks that
	// exceed it are skipped rather than stalling the draft.
	ChunkTimeout time.Duration
	Breaker      BreakerConfig
}

// DefaultPipelineConfig uses a 10s per-request timeout.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ChunkTimeout: 10 * time.Second,
		Breaker:      DefaultBreakerConfig(),
	}
}

// Pipeline drives one transcription backend and feeds results into a
// message sink. It supports two modes: a single-shot call over a whole
// finalized clip, and a streaming mode that transcribes timeslice chunks
// as they arrive, maintaining a live draft.
type Pipeline struct {
	backend Transcriber
	sink    MessageSink
	breaker *Breaker
	cfg     PipelineConfig
}

// NewPipeline wires a backend to a sink.
func NewPipeline(backend Transcriber, sink MessageSink, cfg PipelineConfig) *Pipeline {
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = 10 * time.Second
	}
	return &Pipeline{
		backend: backend,
		sink:    sink,
		breaker: NewBreaker(cfg.Breaker),
		cfg:     cfg,
	}
}

// TranscribeClip runs one finalized clip through the backend and inserts
// the result as a message attributed to role. Empty transcriptions are
// discarded silently; a turn of throat-clearing produces no message.
func (p *Pipeline) TranscribeClip(ctx context.Context, clip record.Clip, role string) (string, error) {
	if !p.breaker.Allow() {
		slog.WarnContext(ctx, "pipeline: breaker open, clip skipped",
			slog.String("session_id", clip.SessionID))
		return "", ErrBreakerOpen
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.ChunkTimeout)
	text, err := p.backend.Transcribe(reqCtx, clip.PCM)
	cancel()
	if err != nil {
		p.breaker.Failure()
		slog.ErrorContext(ctx, "pipeline: clip transcription failed",
			slog.String("session_id", clip.SessionID),
			slog.String("error", err.Error()))
		return "", err
	}
	p.breaker.Success()

	text = strings.TrimSpace(text)
	if text == "" {
		slog.InfoContext(ctx, "pipeline: empty transcription discarded",
			slog.String("session_id", clip.SessionID))
		return "", nil
	}

	if err := p.sink.InsertMessage(ctx, clip.SessionID, role, text); err != nil {
		slog.ErrorContext(ctx, "pipeline: insert message failed",
			slog.String("session_id", clip.SessionID),
			slog.String("error", err.Error()))
		return text, err
	}
	return text, nil
}

// TranscribeStream consumes timeslice chunks sequentially until the
// channel closes, updating the draft after each successful chunk. Failed
// chunks are skipped; the draft is the join of whatever succeeded. When
// the stream ends the draft is cleared and, if any text accumulated, the
// final message is inserted.
func (p *Pipeline) TranscribeStream(ctx context.Context, sessionID, role string, chunks <-chan []byte) (string, error) {
	var parts []string

	for {
		select {
		case <-ctx.Done():
			return p.finishStream(context.WithoutCancel(ctx), sessionID, role, parts)
		case chunk, ok := <-chunks:
			if !ok {
				return p.finishStream(ctx, sessionID, role, parts)
			}
			if !p.breaker.Allow() {
				continue
			}

			reqCtx, cancel := context.WithTimeout(ctx, p.cfg.ChunkTimeout)
			text, err := p.backend.Transcribe(reqCtx, chunk)
			cancel()
			if err != nil {
				p.breaker.Failure()
				slog.WarnContext(ctx, "pipeline: chunk transcription failed, skipped",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()))
				continue
			}
			p.breaker.Success()

			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			parts = append(parts, text)
			if err := p.sink.UpdateDraft(ctx, sessionID, role, strings.Join(parts, " ")); err != nil {
				slog.WarnContext(ctx, "pipeline: draft update failed",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()))
			}
		}
	}
}

func (p *Pipeline) finishStream(ctx context.Context, sessionID, role string, parts []string) (string, error) {
	if err := p.sink.ClearDraft(ctx, sessionID, role); err != nil {
		slog.WarnContext(ctx, "pipeline: draft clear failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}

	final := strings.TrimSpace(strings.Join(parts, " "))
	if final == "" {
		slog.InfoContext(ctx, "pipeline: stream produced no text",
			slog.String("session_id", sessionID))
		return "", nil
	}
	if err := p.sink.InsertMessage(ctx, sessionID, role, final); err != nil {
		slog.ErrorContext(ctx, "pipeline: insert message failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return final, err
	}
	return final, nil
}

// BreakerState exposes the breaker disposition for health reporting.
func (p *Pipeline) BreakerState() BreakerState {
	return p.breaker.State()
}

// Close releases the backend.
func (p *Pipeline) Close() error {
	return p.backend.Close()
}

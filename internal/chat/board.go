package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rs/xid"

	"github.com/voiceloop/voiceloop/pkg/events"
)

// Draft is the live, still-changing transcription of a turn in progress.
type Draft struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// Board is the conversation surface: it receives pipeline output, keeps
// the in-flight drafts in memory, persists finalized messages and
// publishes the corresponding events. It implements
// transcribe.MessageSink.
type Board struct {
	repo      *Repository
	publisher *events.Publisher

	mu     sync.RWMutex
	drafts map[string]Draft
}

// NewBoard creates a board. A nil repository keeps messages in the event
// stream only, which is how tests and queue-less deployments run.
func NewBoard(repo *Repository, publisher *events.Publisher) *Board {
	return &Board{
		repo:      repo,
		publisher: publisher,
		drafts:    make(map[string]Draft),
	}
}

// InsertMessage finalizes one turn: the message is persisted and a
// message.final event carries it to every listener.
func (b *Board) InsertMessage(ctx context.Context, sessionID, role, text string) error {
	m := &Message{
		SessionID: sessionID,
		Role:      role,
		Content:   text,
	}
	m.ID = xid.New().String()

	if b.repo != nil {
		if err := b.repo.Insert(ctx, m); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "board: message finalized",
		slog.String("session_id", sessionID),
		slog.String("role", role),
		slog.String("message_id", m.ID))

	b.emit(ctx, events.MessageFinal, sessionID, events.MessageFinalData{
		MessageID: m.ID,
		Role:      role,
		Content:   text,
	})
	return nil
}

// UpdateDraft replaces the live draft for a session.
func (b *Board) UpdateDraft(ctx context.Context, sessionID, role, text string) error {
	b.mu.Lock()
	b.drafts[sessionID] = Draft{SessionID: sessionID, Role: role, Content: text}
	b.mu.Unlock()

	b.emit(ctx, events.DraftUpdated, sessionID, events.DraftData{Role: role, Content: text})
	return nil
}

// ClearDraft removes the live draft for a session.
func (b *Board) ClearDraft(ctx context.Context, sessionID, role string) error {
	b.mu.Lock()
	_, had := b.drafts[sessionID]
	delete(b.drafts, sessionID)
	b.mu.Unlock()

	if had {
		b.emit(ctx, events.DraftCleared, sessionID, events.DraftClearedData{Role: role})
	}
	return nil
}

// Draft returns the live draft for a session, if any.
func (b *Board) Draft(sessionID string) (Draft, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.drafts[sessionID]
	return d, ok
}

// Drafts returns all live drafts.
func (b *Board) Drafts() []Draft {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Draft, 0, len(b.drafts))
	for _, d := range b.drafts {
		out = append(out, d)
	}
	return out
}

func (b *Board) emit(ctx context.Context, t events.EventType, sessionID string, data any) {
	if b.publisher == nil {
		return
	}
	if err := b.publisher.Emit(ctx, t, sessionID, data); err != nil {
		slog.WarnContext(ctx, "board: event emit failed",
			slog.String("event_type", string(t)),
			slog.String("error", err.Error()))
	}
}

package transcribe

import (
	"context"
)

// Transcriber converts one clip of 16kHz mono S16LE PCM to text. A single
// instance is reused across turns; Close releases any backend resources.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
	Close() error
}

// MessageSink receives pipeline output: live draft text while a turn is
// still being spoken, and the final message once it ends.
type MessageSink interface {
	InsertMessage(ctx context.Context, sessionID, role, text string) error
	UpdateDraft(ctx context.Context, sessionID, role, text string) error
	ClearDraft(ctx context.Context, sessionID, role string) error
}

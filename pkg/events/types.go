package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	SpeakingStarted EventType = "speaking.started"
	SpeakingStopped EventType = "speaking.stopped"
	TurnDropped     EventType = "turn.dropped"
	DraftUpdated    EventType = "draft.updated"
	DraftCleared    EventType = "draft.cleared"
	MessageFinal    EventType = "message.final"
	SessionOpened   EventType = "session.opened"
	SessionClosed   EventType = "session.closed"
	SystemError     EventType = "error"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SpeakingData is the payload for speaking.started and speaking.stopped events.
type SpeakingData struct {
	Role  string  `json:"role"` // "user" or "counterpart"
	Level float64 `json:"level,omitempty"`
}

// TurnDroppedData is the payload for turn.dropped events.
type TurnDroppedData struct {
	Role   string `json:"role"`
	Reason string `json:"reason"`
}

// DraftData is the payload for draft.updated events.
type DraftData struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DraftClearedData is the payload for draft.cleared events.
type DraftClearedData struct {
	Role string `json:"role"`
}

// MessageFinalData is the payload for message.final events.
type MessageFinalData struct {
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// SessionData is the payload for session.opened and session.closed events.
type SessionData struct {
	PeerID string `json:"peer_id"`
	Reason string `json:"reason,omitempty"`
}

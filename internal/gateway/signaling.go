package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/voiceloop/voiceloop/internal/chat"
	"github.com/voiceloop/voiceloop/pkg/events"
)

// clientMessage is one signaling frame from the browser.
type clientMessage struct {
	Type      string          `json:"type"` // offer, ice, bye
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// serverMessage is one signaling or event frame to the browser.
type serverMessage struct {
	Type      string           `json:"type"` // ready, answer, event, error
	SessionID string           `json:"session_id,omitempty"`
	SDP       string           `json:"sdp,omitempty"`
	Event     *events.Envelope `json:"event,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Handler serves the browser-facing surface: WebSocket signaling plus a
// small JSON API for health and message history.
type Handler struct {
	Manager   *Manager
	Publisher *events.Publisher
	Board     *chat.Board
	Repo      *chat.Repository // nil when running without a datastore

	upgrader websocket.Upgrader
}

// NewHandler creates the gateway HTTP handler.
func NewHandler(manager *Manager, publisher *events.Publisher, board *chat.Board, repo *chat.Repository) *Handler {
	return &Handler{
		Manager:   manager,
		Publisher: publisher,
		Board:     board,
		Repo:      repo,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Routes builds the gateway mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/healthz", h.serveHealth)
	mux.HandleFunc("/v1/messages", h.serveMessages)
	mux.HandleFunc("/v1/drafts", h.serveDrafts)
	return mux
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()
	id := xid.New().String()

	sess, err := h.Manager.Open(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "gateway: session open failed",
			slog.String("error", err.Error()))
		_ = conn.WriteJSON(serverMessage{Type: "error", Error: err.Error()})
		return
	}
	defer h.Manager.Close(context.WithoutCancel(ctx), id)

	// Serialize writes; the event pump and the signaling loop share the
	// socket.
	var writeMu sync.Mutex
	writeJSON := func(msg serverMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(msg)
	}

	if err := writeJSON(serverMessage{Type: "ready", SessionID: id}); err != nil {
		return
	}

	// Event pump: forward the bus to this socket.
	if h.Publisher != nil {
		eventCh, cancelSub := h.Publisher.Subscribe(128)
		defer cancelSub()
		pumpDone := make(chan struct{})
		defer close(pumpDone)
		go func() {
			for {
				select {
				case <-pumpDone:
					return
				case env, ok := <-eventCh:
					if !ok {
						return
					}
					if err := writeJSON(serverMessage{Type: "event", Event: &env}); err != nil {
						return
					}
				}
			}
		}()
	}

	peer := sess.Peer()
	peer.OnClose(func() {
		writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "peer closed"),
			time.Now().Add(time.Second))
		writeMu.Unlock()
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "offer":
			answer, err := peer.HandleOffer(msg.SDP)
			if err != nil {
				slog.WarnContext(ctx, "gateway: offer failed",
					slog.String("session_id", id),
					slog.String("error", err.Error()))
				_ = writeJSON(serverMessage{Type: "error", Error: "offer rejected"})
				continue
			}
			if err := writeJSON(serverMessage{Type: "answer", SDP: answer}); err != nil {
				return
			}
		case "ice":
			if err := peer.AddICECandidate(string(msg.Candidate)); err != nil {
				slog.WarnContext(ctx, "gateway: ICE candidate rejected",
					slog.String("session_id", id),
					slog.String("error", err.Error()))
			}
		case "bye":
			return
		default:
			_ = writeJSON(serverMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *Handler) serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSONBody(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.Manager.Count(),
	})
}

func (h *Handler) serveMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Repo == nil {
		writeJSONBody(w, http.StatusOK, []chat.Message{})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	var messages []chat.Message
	var err error
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		messages, err = h.Repo.ListBySession(r.Context(), sessionID, limit)
	} else {
		messages, err = h.Repo.ListRecent(r.Context(), limit)
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "gateway: list messages failed",
			slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSONBody(w, http.StatusOK, messages)
}

func (h *Handler) serveDrafts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSONBody(w, http.StatusOK, h.Board.Drafts())
}

func writeJSONBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

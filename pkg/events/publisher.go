package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/queue"
	"github.com/rs/xid"
)

// Publisher fans typed envelopes out on two paths: the frame queue, for
// other service instances, and in-process listener channels, for the
// WebSocket event pumps of this instance.
type Publisher struct {
	queue    queue.Manager // nil when running without a broker
	source   string
	queueRef string

	mu     sync.Mutex
	nextID int
	subs   map[int]chan Envelope
}

// NewPublisher creates a publisher stamping envelopes with the given
// source. A nil queue manager is allowed; envelopes then reach local
// listeners only.
func NewPublisher(q queue.Manager, source, queueRef string) *Publisher {
	return &Publisher{
		queue:    q,
		source:   source,
		queueRef: queueRef,
		subs:     make(map[int]chan Envelope),
	}
}

// Emit builds an envelope for the payload and delivers it everywhere.
// Local listeners always see the envelope even when the queue publish
// fails.
func (p *Publisher) Emit(ctx context.Context, t EventType, sessionID string, data any) error {
	env, err := p.envelope(t, sessionID, data)
	if err != nil {
		return err
	}

	p.deliver(env)

	if p.queue == nil {
		return nil
	}
	return p.queue.Publish(ctx, p.queueRef, env)
}

func (p *Publisher) envelope(t EventType, sessionID string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", t, err)
	}
	return Envelope{
		ID:        xid.New().String(),
		Type:      t,
		Source:    p.source,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// deliver offers the envelope to every listener without blocking. A
// listener that cannot keep up loses events rather than stalling Emit.
func (p *Publisher) deliver(env Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- env:
		default:
			slog.Warn("events: listener buffer full, envelope dropped",
				slog.Int("listener", id),
				slog.String("event_type", string(env.Type)))
		}
	}
}

// Subscribe attaches a buffered listener channel. The returned cancel
// function detaches the listener and closes the channel; it is safe to
// call more than once.
func (p *Publisher) Subscribe(buf int) (<-chan Envelope, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan Envelope, buf)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

package chat

import (
	"context"
	"encoding/json"

	"github.com/pitabwire/util"

	"github.com/voiceloop/voiceloop/pkg/events"
)

// Subscriber implements queue.SubscribeWorker to mirror finalized
// messages published by other instances into the local store. Envelopes
// originating from this instance are skipped; the board already
// persisted them.
type Subscriber struct {
	Repo *Repository
	Self string
}

// Handle is called by frame's pub/sub for each event message.
func (s *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("chat subscriber: unmarshal envelope")
		return err
	}

	if env.Type != events.MessageFinal || env.Source == s.Self {
		return nil
	}

	var data events.MessageFinalData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		util.Log(ctx).WithError(err).Error("chat subscriber: unmarshal message payload")
		return err
	}

	m := &Message{
		SessionID: env.SessionID,
		Role:      data.Role,
		Content:   data.Content,
	}
	m.ID = data.MessageID

	if err := s.Repo.Insert(ctx, m); err != nil {
		util.Log(ctx).WithError(err).Error("chat subscriber: persist message")
		return err
	}
	return nil
}

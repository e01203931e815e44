package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPublisherLocalFanOut(t *testing.T) {
	pub := NewPublisher(nil, "test", "events")

	ch, cancel := pub.Subscribe(4)
	defer cancel()

	err := pub.Emit(t.Context(), MessageFinal, "s1", MessageFinalData{
		MessageID: "m1",
		Role:      "user",
		Content:   "hello there",
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case env := <-ch:
		if env.Type != MessageFinal {
			t.Errorf("type = %q, want %q", env.Type, MessageFinal)
		}
		if env.SessionID != "s1" {
			t.Errorf("session = %q, want s1", env.SessionID)
		}
		if env.ID == "" {
			t.Error("envelope ID is empty")
		}
		var data MessageFinalData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
		if data.Content != "hello there" {
			t.Errorf("content = %q", data.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("no envelope received")
	}
}

func TestPublisherFullBufferDoesNotBlock(t *testing.T) {
	pub := NewPublisher(nil, "test", "events")

	// Buffer of 1, never drained.
	_, cancel := pub.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_ = pub.Emit(t.Context(), DraftUpdated, "s1", DraftData{Role: "user", Content: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full listener buffer")
	}
}

func TestPublisherCancelClosesChannel(t *testing.T) {
	pub := NewPublisher(nil, "test", "events")

	ch, cancel := pub.Subscribe(1)
	cancel()
	cancel() // second call must be a no-op

	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
}

func TestPublisherCanceledListenerStopsReceiving(t *testing.T) {
	pub := NewPublisher(nil, "test", "events")

	ch, cancel := pub.Subscribe(4)
	cancel()

	if err := pub.Emit(t.Context(), SpeakingStarted, "s1", SpeakingData{Role: "user"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if env, ok := <-ch; ok {
		t.Errorf("canceled listener received %v", env.Type)
	}
}

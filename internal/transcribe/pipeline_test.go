package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voiceloop/voiceloop/internal/record"
)

// scriptedBackend returns canned results per call, in order.
type scriptedBackend struct {
	mu      sync.Mutex
	results []scriptedResult
	calls   int
}

type scriptedResult struct {
	text string
	err  error
}

func (b *scriptedBackend) Transcribe(_ context.Context, _ []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.calls >= len(b.results) {
		return "", errors.New("unexpected call")
	}
	r := b.results[b.calls]
	b.calls++
	return r.text, r.err
}

func (b *scriptedBackend) Close() error { return nil }

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type memorySink struct {
	mu       sync.Mutex
	messages []string
	drafts   []string
	cleared  int
}

func (s *memorySink) InsertMessage(_ context.Context, sessionID, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, fmt.Sprintf("%s/%s: %s", sessionID, role, text))
	return nil
}

func (s *memorySink) UpdateDraft(_ context.Context, _, _, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, text)
	return nil
}

func (s *memorySink) ClearDraft(_ context.Context, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	return nil
}

func testPipeline(backend Transcriber, sink MessageSink) *Pipeline {
	cfg := DefaultPipelineConfig()
	cfg.ChunkTimeout = time.Second
	return NewPipeline(backend, sink, cfg)
}

func TestTranscribeClipInsertsMessage(t *testing.T) {
	backend := &scriptedBackend{results: []scriptedResult{{text: "  hello there "}}}
	sink := &memorySink{}
	p := testPipeline(backend, sink)

	clip := record.Clip{SessionID: "s1", Source: "user", PCM: make([]byte, 4000), SampleRate: 16000}
	text, err := p.TranscribeClip(t.Context(), clip, "user")
	if err != nil {
		t.Fatalf("TranscribeClip: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q, want trimmed %q", text, "hello there")
	}
	if len(sink.messages) != 1 || sink.messages[0] != "s1/user: hello there" {
		t.Errorf("messages = %v", sink.messages)
	}
}

func TestTranscribeClipEmptyResultDiscarded(t *testing.T) {
	backend := &scriptedBackend{results: []scriptedResult{{text: "   "}}}
	sink := &memorySink{}
	p := testPipeline(backend, sink)

	clip := record.Clip{SessionID: "s1", PCM: make([]byte, 4000)}
	text, err := p.TranscribeClip(t.Context(), clip, "user")
	if err != nil {
		t.Fatalf("TranscribeClip: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
	if len(sink.messages) != 0 {
		t.Errorf("empty transcription inserted a message: %v", sink.messages)
	}
}

func TestStreamSkipsFailedChunkAndKeepsRest(t *testing.T) {
	backend := &scriptedBackend{results: []scriptedResult{
		{text: "one"},
		{err: errors.New("backend down")},
		{text: "three"},
	}}
	sink := &memorySink{}
	p := testPipeline(backend, sink)

	chunks := make(chan []byte, 3)
	for i := 0; i < 3; i++ {
		chunks <- make([]byte, 2000)
	}
	close(chunks)

	final, err := p.TranscribeStream(t.Context(), "s1", "counterpart", chunks)
	if err != nil {
		t.Fatalf("TranscribeStream: %v", err)
	}
	if final != "one three" {
		t.Errorf("final = %q, want %q", final, "one three")
	}
	wantDrafts := []string{"one", "one three"}
	if len(sink.drafts) != len(wantDrafts) {
		t.Fatalf("drafts = %v, want %v", sink.drafts, wantDrafts)
	}
	for i, d := range wantDrafts {
		if sink.drafts[i] != d {
			t.Errorf("draft[%d] = %q, want %q", i, sink.drafts[i], d)
		}
	}
	if sink.cleared != 1 {
		t.Errorf("cleared = %d, want 1", sink.cleared)
	}
	if len(sink.messages) != 1 || sink.messages[0] != "s1/counterpart: one three" {
		t.Errorf("messages = %v", sink.messages)
	}
}

func TestStreamWithNoTextInsertsNothing(t *testing.T) {
	backend := &scriptedBackend{results: []scriptedResult{{text: ""}, {text: "  "}}}
	sink := &memorySink{}
	p := testPipeline(backend, sink)

	chunks := make(chan []byte, 2)
	chunks <- make([]byte, 2000)
	chunks <- make([]byte, 2000)
	close(chunks)

	final, err := p.TranscribeStream(t.Context(), "s1", "user", chunks)
	if err != nil {
		t.Fatalf("TranscribeStream: %v", err)
	}
	if final != "" {
		t.Errorf("final = %q, want empty", final)
	}
	if len(sink.messages) != 0 {
		t.Errorf("messages = %v, want none", sink.messages)
	}
	if sink.cleared != 1 {
		t.Errorf("draft not cleared on stream end")
	}
}

func TestClipSkippedWhileBreakerOpen(t *testing.T) {
	failures := []scriptedResult{
		{err: errors.New("down")},
		{err: errors.New("down")},
		{err: errors.New("down")},
	}
	backend := &scriptedBackend{results: failures}
	sink := &memorySink{}
	cfg := DefaultPipelineConfig()
	cfg.ChunkTimeout = time.Second
	cfg.Breaker = BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute}
	p := NewPipeline(backend, sink, cfg)

	clip := record.Clip{SessionID: "s1", PCM: make([]byte, 4000)}
	for i := 0; i < 3; i++ {
		if _, err := p.TranscribeClip(t.Context(), clip, "user"); err == nil {
			t.Fatalf("call %d succeeded, want failure", i)
		}
	}
	if p.BreakerState() != BreakerOpen {
		t.Fatalf("breaker state = %v, want open", p.BreakerState())
	}

	// The open breaker must short-circuit without reaching the backend.
	if _, err := p.TranscribeClip(t.Context(), clip, "user"); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if backend.callCount() != 3 {
		t.Errorf("backend called %d times, want 3", backend.callCount())
	}
}

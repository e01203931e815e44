package transcribe

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type nullBackend struct{}

func (nullBackend) Transcribe(_ context.Context, _ []byte) (string, error) { return "", nil }
func (nullBackend) Close() error                                           { return nil }

func TestNewBackendUsesRegisteredFactory(t *testing.T) {
	var gotConfig map[string]string
	RegisterBackend("reg-capture", func(config map[string]string) (Transcriber, error) {
		gotConfig = config
		return nullBackend{}, nil
	})

	b, err := NewBackend("reg-capture", map[string]string{"model": "m1"})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer b.Close()
	if gotConfig["model"] != "m1" {
		t.Errorf("factory config = %v", gotConfig)
	}
}

func TestNewBackendUnknownNameListsRegistered(t *testing.T) {
	RegisterBackend("reg-known", func(map[string]string) (Transcriber, error) {
		return nullBackend{}, nil
	})

	_, err := NewBackend("reg-missing", nil)
	if err == nil {
		t.Fatal("unknown backend accepted")
	}
	if !strings.Contains(err.Error(), "reg-known") {
		t.Errorf("error %q does not name the registered backends", err)
	}
}

func TestBackendFactoryErrorPropagates(t *testing.T) {
	boom := errors.New("bad config")
	RegisterBackend("reg-failing", func(map[string]string) (Transcriber, error) {
		return nil, boom
	})
	if _, err := NewBackend("reg-failing", nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want factory error", err)
	}
}

func TestRegisterBackendTwicePanics(t *testing.T) {
	RegisterBackend("reg-dup", func(map[string]string) (Transcriber, error) {
		return nullBackend{}, nil
	})
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate registration did not panic")
		}
	}()
	RegisterBackend("reg-dup", func(map[string]string) (Transcriber, error) {
		return nullBackend{}, nil
	})
}

package transcribe

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// BackendFactory builds a Transcriber from the service configuration map.
type BackendFactory func(config map[string]string) (Transcriber, error)

var (
	backendMu sync.RWMutex
	backends  = make(map[string]BackendFactory)
)

// RegisterBackend makes a transcription backend selectable by name.
// Backend packages call this from init, so a blank import is enough to
// enable one. Registering a name twice panics; that is a wiring bug,
// not a runtime condition.
func RegisterBackend(name string, factory BackendFactory) {
	backendMu.Lock()
	defer backendMu.Unlock()
	if _, dup := backends[name]; dup {
		panic("transcribe: backend " + name + " registered twice")
	}
	backends[name] = factory
}

// NewBackend instantiates the named backend.
func NewBackend(name string, config map[string]string) (Transcriber, error) {
	backendMu.RLock()
	factory, ok := backends[name]
	backendMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no transcription backend %q (registered: %s)",
			name, strings.Join(BackendNames(), ", "))
	}
	return factory(config)
}

// BackendNames lists the registered backends in sorted order.
func BackendNames() []string {
	backendMu.RLock()
	defer backendMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

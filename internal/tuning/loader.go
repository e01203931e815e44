package tuning

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader loads and optionally hot-reloads tuning profiles from YAML
// files in one directory, one profile per file.
type Loader struct {
	dir string

	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewLoader creates a profile loader for the given directory.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:      dir,
		profiles: make(map[string]*Profile),
	}
}

// LoadAll loads all .yaml and .yml files from the configured directory.
// A single invalid file fails the whole load so a bad edit never
// half-applies.
func (l *Loader) LoadAll() (map[string]*Profile, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read profile dir %q: %w", l.dir, err)
	}

	result := make(map[string]*Profile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		p, err := l.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		result[p.Name] = p
	}

	l.mu.Lock()
	l.profiles = result
	l.mu.Unlock()

	return result, nil
}

// Get returns a loaded profile by name.
func (l *Loader) Get(name string) (*Profile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[name]
	return p, ok
}

// All returns all loaded profiles.
func (l *Loader) All() map[string]*Profile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make(map[string]*Profile, len(l.profiles))
	for k, v := range l.profiles {
		result[k] = v
	}
	return result
}

func (l *Loader) loadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if p.Name == "" {
		base := filepath.Base(path)
		p.Name = base[:len(base)-len(filepath.Ext(base))]
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// WatchAndReload watches the profile directory and reloads on change.
// This blocks until the done channel is closed. A reload that fails
// keeps the previous profiles in place.
func (l *Loader) WatchAndReload(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				ext := filepath.Ext(event.Name)
				if ext == ".yaml" || ext == ".yml" {
					if _, err := l.LoadAll(); err != nil {
						slog.Warn("tuning: reload failed, keeping previous profiles",
							slog.String("error", err.Error()))
					} else {
						slog.Info("tuning: profiles reloaded",
							slog.String("trigger", event.Name))
					}
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// Package fixtures serves the static example payloads used by fixture-backed tools.
//
// Defaults are embedded in the binary. A directory may override any of them with
// <task>.yaml; every payload is validated against the task schema before use.
package fixtures

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/starford/dastan/internal/apperr"
	"github.com/starford/dastan/internal/checksum"
	"github.com/starford/dastan/internal/llm"
	"github.com/starford/dastan/internal/prompt"
)

//go:embed data/*.yaml
var defaults embed.FS

// Store holds one validated payload per task.
type Store struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	base     map[prompt.Task]json.RawMessage
	data     map[prompt.Task]json.RawMessage
	checksum map[prompt.Task]string
}

// New loads the embedded defaults and, when dir is non-empty, the overrides in dir.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		dir:      dir,
		logger:   logger,
		base:     make(map[prompt.Task]json.RawMessage, len(prompt.Tasks)),
		data:     make(map[prompt.Task]json.RawMessage, len(prompt.Tasks)),
		checksum: make(map[prompt.Task]string),
	}
	for _, task := range prompt.Tasks {
		raw, err := defaults.ReadFile("data/" + string(task) + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("fixtures: embedded %s: %w", task, err)
		}
		payload, err := parse(task, raw)
		if err != nil {
			return nil, fmt.Errorf("fixtures: embedded %s: %w", task, err)
		}
		s.base[task] = payload
		s.data[task] = payload
	}
	if dir != "" {
		if _, err := s.Reload(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dir returns the override directory, or "" when there is none.
func (s *Store) Dir() string { return s.dir }

// Get returns the payload for task.
func (s *Store) Get(task prompt.Task) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.data[task]
	if !ok {
		return nil, fmt.Errorf("fixtures: %s: %w", task, apperr.ErrNotFound)
	}
	return payload, nil
}

// Reload re-reads the override directory and returns the tasks whose payload changed.
// An override that fails to parse or validate is skipped and the previous payload kept.
// A removed override falls back to the embedded default.
func (s *Store) Reload() ([]prompt.Task, error) {
	if s.dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("fixtures: create dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []prompt.Task
	for _, task := range prompt.Tasks {
		path := filepath.Join(s.dir, string(task)+".yaml")
		raw, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			if _, had := s.checksum[task]; had {
				delete(s.checksum, task)
				s.data[task] = s.base[task]
				changed = append(changed, task)
				s.logger.Info("fixtures: override removed", slog.String("task", string(task)))
			}
			continue
		}
		if err != nil {
			s.logger.Warn("fixtures: read failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}

		sum := checksum.Sum(raw)
		if s.checksum[task] == sum {
			continue
		}
		payload, err := parse(task, raw)
		if err != nil {
			s.logger.Warn("fixtures: override rejected",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		s.checksum[task] = sum
		s.data[task] = payload
		changed = append(changed, task)
		s.logger.Info("fixtures: override loaded", slog.String("task", string(task)))
	}
	return changed, nil
}

// parse converts a YAML document to JSON and validates it like model output.
func parse(task prompt.Task, raw []byte) (json.RawMessage, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}
	d, ok := task.Schema()
	if !ok {
		return nil, fmt.Errorf("no schema for task %q", task)
	}
	return llm.Decode(string(b), d)
}

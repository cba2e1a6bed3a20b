// Package tools keeps tool definitions in a JSON file and derives the
// structured-output schema and grammar used for tool calling.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"lmserv/internal/common/fsutil"
)

var (
	ErrNameRequired = errors.New("tool name is required")
	ErrExists       = errors.New("tool already exists")
	ErrNotFound     = errors.New("tool not found")
)

// Tool is one callable function the model may choose.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type fileFormat struct {
	Tools []Tool `json:"tools"`
}

// Store is a file-backed tool collection. Every mutation rewrites the file.
type Store struct {
	path string

	mu    sync.RWMutex
	tools []Tool
}

// Load reads path. A missing file yields an empty store that will be created
// on the first mutation.
func Load(path string) (*Store, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: p}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tools: %w", err)
	}
	var f fileFormat
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse tools %s: %w", p, err)
	}
	seen := make(map[string]struct{}, len(f.Tools))
	for _, t := range f.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tools %s: %w", p, ErrNameRequired)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("tools %s: %w: %s", p, ErrExists, t.Name)
		}
		seen[t.Name] = struct{}{}
		if err := ValidateParameters(t.Parameters); err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
	}
	s.tools = f.Tools
	return s, nil
}

func (s *Store) Path() string { return s.path }

// All returns every tool in file order.
func (s *Store) All() []Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Tool(nil), s.tools...)
}

func (s *Store) Get(name string) (Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(name); i >= 0 {
		return s.tools[i], true
	}
	return Tool{}, false
}

// Add appends t and persists the store.
func (s *Store) Add(t Tool) (Tool, error) {
	if t.Name == "" {
		return Tool{}, ErrNameRequired
	}
	if err := ValidateParameters(t.Parameters); err != nil {
		return Tool{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(t.Name) >= 0 {
		return Tool{}, fmt.Errorf("%w: %s", ErrExists, t.Name)
	}
	s.tools = append(s.tools, t)
	if err := s.saveLocked(); err != nil {
		s.tools = s.tools[:len(s.tools)-1]
		return Tool{}, err
	}
	return t, nil
}

// Update replaces the tool called name. The stored name always stays name.
func (s *Store) Update(name string, t Tool) (Tool, error) {
	if err := ValidateParameters(t.Parameters); err != nil {
		return Tool{}, err
	}
	t.Name = name
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(name)
	if i < 0 {
		return Tool{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	prev := s.tools[i]
	s.tools[i] = t
	if err := s.saveLocked(); err != nil {
		s.tools[i] = prev
		return Tool{}, err
	}
	return t, nil
}

// Delete removes the named tool. It reports false when there was none.
func (s *Store) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(name)
	if i < 0 {
		return false, nil
	}
	prev := s.tools
	s.tools = append(append([]Tool(nil), s.tools[:i]...), s.tools[i+1:]...)
	if err := s.saveLocked(); err != nil {
		s.tools = prev
		return false, err
	}
	return true, nil
}

func (s *Store) index(name string) int {
	for i, t := range s.tools {
		if t.Name == name {
			return i
		}
	}
	return -1
}

func (s *Store) saveLocked() error {
	f := fileFormat{Tools: s.tools}
	if f.Tools == nil {
		f.Tools = []Tool{}
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tools: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("save tools: %w", err)
	}
	return nil
}

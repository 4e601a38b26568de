// Package registry is the file-backed persona store. Each experiment owns
// one agents.json; the store path is explicit configuration, never process
// state.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentsim/society/internal/sim"
)

// Store reads and writes one agents.json file. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns every persona in the store. A missing file is an empty
// store, not an error.
func (s *Store) Load() ([]*sim.AgentPersona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]*sim.AgentPersona, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var items []*sim.AgentPersona
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse %s: expected a persona array: %w", s.path, err)
	}
	return items, nil
}

// Save replaces the store contents atomically enough for our use: write to
// a temp file in the same directory, then rename.
func (s *Store) Save(items []*sim.AgentPersona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(items)
}

func (s *Store) save(items []*sim.AgentPersona) error {
	if items == nil {
		items = []*sim.AgentPersona{}
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".agents-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// FindByName returns the first persona with the given display name.
func (s *Store) FindByName(name string) (*sim.AgentPersona, error) {
	items, err := s.Load()
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.Name == name {
			return it, nil
		}
	}
	return nil, nil
}

// Add appends a persona without deduplication.
func (s *Store) Add(p *sim.AgentPersona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load()
	if err != nil {
		return err
	}
	return s.save(append(items, p))
}

// Upsert replaces the persona with the same name, or appends it.
func (s *Store) Upsert(p *sim.AgentPersona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load()
	if err != nil {
		return err
	}
	for i, it := range items {
		if it.Name == p.Name {
			items[i] = p
			return s.save(items)
		}
	}
	return s.save(append(items, p))
}

// Remove deletes every persona with the given name and reports whether
// anything was removed.
func (s *Store) Remove(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load()
	if err != nil {
		return false, err
	}
	kept := items[:0]
	for _, it := range items {
		if it.Name != name {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) {
		return false, nil
	}
	return true, s.save(kept)
}

// Package journal provides the simulation's append-only JSONL logs: one
// file per agent (keyed by name) plus a shared encounter log. Paths are
// held by the Journal value and threaded through constructors; there is no
// process-wide mutable state.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config names the two log roots. ForExperiment derives both from one base
// directory.
type Config struct {
	AgentDir string
	EventDir string
}

// ForExperiment places agent and event logs under an experiment directory.
func ForExperiment(base string) Config {
	return Config{
		AgentDir: filepath.Join(base, "logs", "agents"),
		EventDir: filepath.Join(base, "logs", "events"),
	}
}

// Journal appends records to per-agent and event logs. Safe for concurrent
// use.
type Journal struct {
	cfg Config
	mu  sync.Mutex
}

// New creates a journal over the given roots.
func New(cfg Config) *Journal {
	return &Journal{cfg: cfg}
}

func safeName(name string) string {
	var b strings.Builder
	for _, c := range name {
		if c == '_' || c == '-' || c == '.' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "agent"
	}
	return b.String()
}

func appendLine(path string, record any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal log record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append log record: %w", err)
	}
	return nil
}

// AgentPath returns the log file path for one agent.
func (j *Journal) AgentPath(name string) string {
	return filepath.Join(j.cfg.AgentDir, safeName(name)+".jsonl")
}

// AppendAgent appends one record to an agent's log.
func (j *Journal) AppendAgent(name string, record any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return appendLine(j.AgentPath(name), record)
}

// InitAgent writes the initial record for an agent only if its log does not
// exist yet.
func (j *Journal) InitAgent(name string, record any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	path := j.AgentPath(name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return appendLine(path, record)
}

// AppendEvent appends one record to the shared encounter log.
func (j *Journal) AppendEvent(record any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return appendLine(filepath.Join(j.cfg.EventDir, "encounters.jsonl"), record)
}

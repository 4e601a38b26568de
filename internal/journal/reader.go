package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Reader loads records back out of the JSONL logs.
type Reader struct {
	cfg Config
}

func NewReader(cfg Config) *Reader {
	return &Reader{cfg: cfg}
}

func readRecords(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			// Torn writes at the tail are ignored rather than failing
			// the whole read.
			continue
		}
		records = append(records, record)
	}
	return records, scanner.Err()
}

// AgentTail returns up to limit of the newest records of one agent's log.
func (r *Reader) AgentTail(name string, limit int) ([]map[string]any, error) {
	records, err := readRecords(filepath.Join(r.cfg.AgentDir, safeName(name)+".jsonl"))
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// LatestPerAgent returns the newest record of every agent log, sorted by
// file name for stable output.
func (r *Reader) LatestPerAgent() ([]map[string]any, error) {
	entries, err := os.ReadDir(r.cfg.AgentDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []map[string]any
	for _, name := range names {
		records, err := readRecords(filepath.Join(r.cfg.AgentDir, name))
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			continue
		}
		last := records[len(records)-1]
		last["agent_file"] = name
		out = append(out, last)
	}
	return out, nil
}

// Events returns the shared encounter log.
func (r *Reader) Events() ([]map[string]any, error) {
	return readRecords(filepath.Join(r.cfg.EventDir, "encounters.jsonl"))
}

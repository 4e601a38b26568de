// Package experiment manages experiment directories: environment spec,
// population constraints, generated personas, the declared relation graph
// and per-experiment logs.
package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentsim/society/internal/agents"
	"github.com/agentsim/society/internal/journal"
	"github.com/agentsim/society/internal/persona"
	"github.com/agentsim/society/internal/registry"
	"github.com/agentsim/society/internal/relation"
	"github.com/agentsim/society/internal/sim"
)

// Meta is the root descriptor of one experiment directory.
type Meta struct {
	Name              string    `json:"name"`
	Slug              string    `json:"slug"`
	RelationInfluence float64   `json:"relation_influence"`
	Count             int       `json:"count"`
	CreatedAt         time.Time `json:"created_at"`
	Paths             Paths     `json:"paths"`
}

type Paths struct {
	Agents    string `json:"agents"`
	Env       string `json:"env"`
	Relations string `json:"relations"`
	LogsBase  string `json:"logs_base"`
}

// Manager creates and loads experiments under a root directory.
type Manager struct {
	root string
	gen  *persona.Generator
	chat persona.Chatter
	rng  *rand.Rand
}

func NewManager(root string, chat persona.Chatter) *Manager {
	return &Manager{
		root: root,
		gen:  persona.NewGenerator(chat),
		chat: chat,
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (m *Manager) Root() string {
	return m.root
}

// Slugify keeps only alphanumerics, '_' and '-'. An empty result falls
// back to a random slug so every experiment gets a directory.
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "exp_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	return b.String()
}

const envSystemPrompt = "You are a world builder. " +
	"Given a brief hint, produce a consistent, simulation-ready environment."

const envUserTemplate = `Build a simulation-ready environment from this hint:
[Hint]
%s

Return strict JSON:
{
  "title": "environment title",
  "prompt": "detailed description: spatial layout, resources, event hooks, time scale, hazards and constraints",
  "rules": ["rule 1", "rule 2", "... (may be empty)"]
}`

// GenerateEnv expands a short free-text hint into a full environment spec.
func (m *Manager) GenerateEnv(ctx context.Context, hint string) (*sim.EnvSpec, error) {
	data, err := m.chat.ChatJSON(ctx, envSystemPrompt,
		[]agents.Message{{Role: "user", Content: fmt.Sprintf(envUserTemplate, hint)}},
		0.4, 700)
	if err != nil {
		return nil, fmt.Errorf("generate environment: %w", err)
	}
	env := &sim.EnvSpec{Title: "Generated Environment"}
	if v, ok := data["title"].(string); ok && v != "" {
		env.Title = v
	}
	if v, ok := data["prompt"].(string); ok {
		env.Prompt = v
	}
	if items, ok := data["rules"].([]any); ok {
		for _, it := range items {
			if s, ok := it.(string); ok {
				env.Rules = append(env.Rules, s)
			}
		}
	}
	return env, nil
}

const constraintsSystemPrompt = "You design realistic population constraints for simulations."

const constraintsUserTemplate = `[Environment Title] %s
[Environment Description] %s
[Environment Rules]
%s

Produce population-building constraints as strict JSON:
{
  "gender_ratio": {"Male": 0.49, "Female": 0.49, "Non-binary/Other": 0.02},
  "age_buckets": {"14-18": 0.05, "19-25": 0.2, "26-40": 0.35, "41-60": 0.25, "61-75": 0.15},
  "role_mix": {"occupation": share, ...},
  "locations": ["6-12 locations drawn from the environment"],
  "relation_density": 0.08
}
Adjust every distribution to fit the environment. Return ONLY the JSON object.`

// GenerateConstraints asks the model for population constraints that fit
// the environment.
func (m *Manager) GenerateConstraints(ctx context.Context, env *sim.EnvSpec) (*persona.Constraints, error) {
	rules := "(none)"
	if len(env.Rules) > 0 {
		rules = "- " + strings.Join(env.Rules, "\n- ")
	}
	data, err := m.chat.ChatJSON(ctx, constraintsSystemPrompt,
		[]agents.Message{{Role: "user", Content: fmt.Sprintf(constraintsUserTemplate, env.Title, env.Prompt, rules)}},
		0.3, 800)
	if err != nil {
		return nil, fmt.Errorf("generate constraints: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var c persona.Constraints
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse constraints: %w", err)
	}
	if c.RelationDensity <= 0 {
		c.RelationDensity = 0.08
	}
	return &c, nil
}

// Create builds a full experiment directory and returns its metadata. A
// nil constraints argument asks the model to design them.
func (m *Manager) Create(ctx context.Context, name, envHint string, count int, relationInfluence float64, constraints *persona.Constraints) (*Meta, error) {
	slug := Slugify(name)
	expDir := filepath.Join(m.root, slug)
	if _, err := os.Stat(filepath.Join(expDir, "meta.json")); err == nil {
		return nil, fmt.Errorf("experiment %q already exists", slug)
	}
	if err := os.MkdirAll(expDir, 0o755); err != nil {
		return nil, err
	}

	env, err := m.GenerateEnv(ctx, envHint)
	if err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(expDir, "env.json"), env); err != nil {
		return nil, err
	}

	if constraints == nil {
		constraints, err = m.GenerateConstraints(ctx, env)
		if err != nil {
			return nil, err
		}
	}
	if err := writeJSON(filepath.Join(expDir, "constraints.json"), constraints); err != nil {
		return nil, err
	}

	hintRaw, _ := json.Marshal(constraints)
	personas, err := m.gen.GenerateForEnvironment(ctx, count, env,
		"Build the population under these constraints: "+string(hintRaw), constraints)
	if err != nil {
		return nil, err
	}

	relations := m.buildRelations(personas, constraints)
	for _, p := range personas {
		p.Relations = relations[p.ID]
	}
	if err := writeJSON(filepath.Join(expDir, "relations.json"), relations); err != nil {
		return nil, err
	}

	store := registry.NewStore(filepath.Join(expDir, "agents.json"))
	if err := store.Save(personas); err != nil {
		return nil, err
	}

	meta := &Meta{
		Name:              name,
		Slug:              slug,
		RelationInfluence: relationInfluence,
		Count:             len(personas),
		CreatedAt:         time.Now().UTC(),
		Paths: Paths{
			Agents:    store.Path(),
			Env:       filepath.Join(expDir, "env.json"),
			Relations: filepath.Join(expDir, "relations.json"),
			LogsBase:  filepath.Join(expDir, "logs"),
		},
	}
	if err := writeJSON(filepath.Join(expDir, "meta.json"), meta); err != nil {
		return nil, err
	}

	j := journal.New(journal.ForExperiment(expDir))
	for _, p := range personas {
		if err := j.InitAgent(p.Name, map[string]any{"type": "init", "agent": p}); err != nil {
			return nil, fmt.Errorf("init log for %s: %w", p.Name, err)
		}
	}
	return meta, nil
}

// buildRelations wires a declared graph from population structure: shared
// occupation or location raises the edge probability over the base
// density; edge type and strength follow the member pair.
func (m *Manager) buildRelations(personas []*sim.AgentPersona, constraints *persona.Constraints) map[string]map[string]relation.Declared {
	density := 0.08
	if constraints != nil && constraints.RelationDensity > 0 {
		density = constraints.RelationDensity
	}

	graph := make(map[string]map[string]relation.Declared, len(personas))
	for _, p := range personas {
		graph[p.ID] = make(map[string]relation.Declared)
	}

	for i := 0; i < len(personas); i++ {
		for k := i + 1; k < len(personas); k++ {
			u, v := personas[i], personas[k]
			p := density
			if u.Occupation != "" && u.Occupation == v.Occupation {
				p += 0.15
			}
			if locationOf(u) != "" && locationOf(u) == locationOf(v) {
				p += 0.10
			}
			if abs(u.Age-v.Age) <= 2 {
				p += 0.05
			}
			if m.rng.Float64() >= p {
				continue
			}
			rec := relation.Declared{Type: m.relationType(u, v)}
			rec.Strength = m.strengthFor(rec.Type)
			graph[u.ID][v.ID] = rec
			graph[v.ID][u.ID] = rec
		}
	}
	return graph
}

func (m *Manager) relationType(u, v *sim.AgentPersona) string {
	ou, ov := strings.ToLower(u.Occupation), strings.ToLower(v.Occupation)
	if strings.Contains(ou, "patient") && strings.Contains(ov, "caregiver") ||
		strings.Contains(ov, "patient") && strings.Contains(ou, "caregiver") {
		return "family"
	}
	if u.Occupation != "" && u.Occupation == v.Occupation {
		return "coworker"
	}
	if locationOf(u) != "" && locationOf(u) == locationOf(v) {
		return "neighbor"
	}
	return "acquaintance"
}

func (m *Manager) strengthFor(relType string) float64 {
	lo, hi := 0.2, 0.5
	switch relType {
	case "family":
		lo, hi = 0.75, 0.95
	case "friend":
		lo, hi = 0.6, 0.85
	case "coworker":
		lo, hi = 0.55, 0.8
	case "neighbor":
		lo, hi = 0.45, 0.7
	case "acquaintance":
		lo, hi = 0.35, 0.6
	}
	v := lo + m.rng.Float64()*(hi-lo)
	return float64(int(v*100+0.5)) / 100
}

func locationOf(p *sim.AgentPersona) string {
	loc, _ := p.InitialState["location"].(string)
	return loc
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// List returns the metadata of every experiment under the root, newest
// first. Directories without a readable meta.json are skipped.
func (m *Manager) List() ([]*Meta, error) {
	entries, err := os.ReadDir(m.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*Meta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := m.Load(e.Name())
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Load reads one experiment's metadata by slug.
func (m *Manager) Load(slug string) (*Meta, error) {
	raw, err := os.ReadFile(filepath.Join(m.root, slug, "meta.json"))
	if err != nil {
		return nil, fmt.Errorf("experiment %q: %w", slug, err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("experiment %q: malformed meta.json: %w", slug, err)
	}
	return &meta, nil
}

// Dir returns the directory of an experiment by slug.
func (m *Manager) Dir(slug string) string {
	return filepath.Join(m.root, slug)
}

// LoadWorld reads everything a run needs: environment, personas, config
// seeds from metadata.
func (m *Manager) LoadWorld(slug string) (*Meta, *sim.EnvSpec, []*sim.AgentPersona, error) {
	meta, err := m.Load(slug)
	if err != nil {
		return nil, nil, nil, err
	}
	raw, err := os.ReadFile(meta.Paths.Env)
	if err != nil {
		return nil, nil, nil, err
	}
	var env sim.EnvSpec
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, nil, fmt.Errorf("experiment %q: malformed env.json: %w", slug, err)
	}
	personas, err := registry.NewStore(meta.Paths.Agents).Load()
	if err != nil {
		return nil, nil, nil, err
	}
	for _, p := range personas {
		p.Normalize()
	}
	return meta, &env, personas, nil
}

// Delete removes an experiment directory entirely.
func (m *Manager) Delete(slug string) error {
	dir := filepath.Join(m.root, slug)
	if _, err := os.Stat(filepath.Join(dir, "meta.json")); err != nil {
		return fmt.Errorf("experiment %q: %w", slug, err)
	}
	return os.RemoveAll(dir)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

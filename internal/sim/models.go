// Package sim contains the tick scheduler: per-tick private intent fan-out,
// spatial grouping, admission-gated encounter resolution, merge and
// persistence.
package sim

import (
	"fmt"

	"github.com/agentsim/society/internal/relation"
)

// AgentPersona describes one simulated agent. Identity fields are never
// mutated after creation.
type AgentPersona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Gender      string `json:"gender,omitempty"`
	Age         int    `json:"age,omitempty"`
	Occupation  string `json:"occupation,omitempty"`
	IncomeLevel string `json:"income_level,omitempty"`
	Education   string `json:"education,omitempty"`

	InitialState  map[string]any `json:"initial_state,omitempty"`
	InitialMemory []string       `json:"initial_memory,omitempty"`

	// Relations holds the author-declared records, keyed by the other
	// agent's id. Inputs only; never evolved at tick time.
	Relations map[string]relation.Declared `json:"relations,omitempty"`
}

// Normalize drops self-loops and clamps declared strengths into [0, 1].
func (a *AgentPersona) Normalize() {
	delete(a.Relations, a.ID)
	for other, rec := range a.Relations {
		if rec.Type == "" {
			rec.Type = "stranger"
		}
		if rec.Strength < 0 {
			rec.Strength = 0
		}
		if rec.Strength > 1 {
			rec.Strength = 1
		}
		a.Relations[other] = rec
	}
}

// EnvSpec describes the shared world.
type EnvSpec struct {
	Title  string   `json:"title"`
	Prompt string   `json:"prompt"`
	Rules  []string `json:"rules,omitempty"`
}

// Config tunes one simulation run.
type Config struct {
	Steps       int     `json:"steps"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`

	// RelationInfluence (alpha) blends flat fairness against declared
	// trust in speaker admission; 1 means relations fully decide who may
	// speak.
	RelationInfluence float64 `json:"relation_influence"`

	// MaxSpeakers caps the admitted-speaker set per encounter.
	MaxSpeakers int `json:"max_speakers"`
}

// DefaultConfig mirrors the historical defaults.
func DefaultConfig() Config {
	return Config{
		Steps:             5,
		Temperature:       0.7,
		MaxTokens:         512,
		RelationInfluence: 0.8,
		MaxSpeakers:       3,
	}
}

// Validate rejects configurations the scheduler cannot honor.
func (c Config) Validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be > 0")
	}
	if c.RelationInfluence < 0 || c.RelationInfluence > 1 {
		return fmt.Errorf("relation_influence must be in [0,1]")
	}
	return nil
}

// TickOutput is one agent's result for one tick. Entries form an
// append-only per-agent history; the latest entry's location and state seed
// the next tick's context.
type TickOutput struct {
	AgentID  string         `json:"agent_id"`
	Tick     int            `json:"tick"`
	Action   string         `json:"action"`
	Speech   string         `json:"speech"`
	State    map[string]any `json:"state"`
	Thoughts string         `json:"thoughts"`
	Location string         `json:"location"`
	Memory   []string       `json:"memory"`
}

// Clone returns a deep copy whose state map and memory slice are
// independent of the receiver, so merging into the copy never touches the
// original.
func (t *TickOutput) Clone() *TickOutput {
	c := *t
	if t.State != nil {
		c.State = make(map[string]any, len(t.State))
		for k, v := range t.State {
			c.State[k] = v
		}
	}
	c.Memory = append([]string(nil), t.Memory...)
	return &c
}

// History is the accumulated per-agent tick record, keyed by agent id.
type History map[string][]*TickOutput

// Append adds one output to its agent's history.
func (h History) Append(out *TickOutput) {
	h[out.AgentID] = append(h[out.AgentID], out)
}

// Last returns the most recent output for an agent, or nil.
func (h History) Last(agentID string) *TickOutput {
	items := h[agentID]
	if len(items) == 0 {
		return nil
	}
	return items[len(items)-1]
}

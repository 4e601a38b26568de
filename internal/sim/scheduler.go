package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentsim/society/internal/agents"
	"github.com/agentsim/society/internal/journal"
	"github.com/agentsim/society/internal/social"
)

// Generator is the external collaborator producing agent behavior. It owns
// its own retries and JSON repair; the scheduler treats any returned error
// as fatal to the current tick.
type Generator interface {
	ChatJSON(ctx context.Context, system string, messages []agents.Message, temperature float64, maxTokens int) (map[string]any, error)
}

// PairSourceFactory produces the relation view consulted during a tick.
// The default rebuilds the symmetric declared graph fresh at tick start, so
// the view stays read-only for the whole tick.
type PairSourceFactory func([]*AgentPersona) social.PairSource

// DeclaredPairs is the default factory: the merged author-declared graph.
func DeclaredPairs(personas []*AgentPersona) social.PairSource {
	members := make([]social.Member, len(personas))
	for i, p := range personas {
		members[i] = social.Member{ID: p.ID, Relations: p.Relations}
	}
	return social.BuildGraph(members)
}

// Scheduler runs one tick at a time: concurrent private intents, spatial
// grouping, admission-gated encounter resolution, merge, persistence.
// Ticks are strictly sequential; tick t+1 never starts before tick t has
// fully persisted.
type Scheduler struct {
	personas []*AgentPersona
	env      *EnvSpec
	cfg      Config
	gen      Generator
	journal  *journal.Journal
	pairs    PairSourceFactory
}

// NewScheduler wires a scheduler. A nil pairs factory falls back to
// DeclaredPairs.
func NewScheduler(personas []*AgentPersona, env *EnvSpec, cfg Config, gen Generator, j *journal.Journal, pairs PairSourceFactory) *Scheduler {
	if pairs == nil {
		pairs = DeclaredPairs
	}
	return &Scheduler{
		personas: personas,
		env:      env,
		cfg:      cfg,
		gen:      gen,
		journal:  j,
		pairs:    pairs,
	}
}

// Encounter is one resolved location-level event of a tick.
type Encounter struct {
	Tick            int      `json:"tick"`
	Location        string   `json:"location"`
	Participants    []string `json:"participants"`
	AllowedSpeakers []string `json:"allowed_speakers"`
	Notes           string   `json:"notes,omitempty"`
}

// RunTick executes one full tick against history (which must only contain
// ticks before this one) and returns every agent's final output together
// with the resolved encounter events. A generator failure aborts the whole
// tick: nothing is persisted.
func (s *Scheduler) RunTick(ctx context.Context, tick int, history History) ([]*TickOutput, []*Encounter, error) {
	// The relation view is rebuilt at tick start and read-only afterwards.
	pairSrc := s.pairs(s.personas)

	// Stage A: private intents, fully concurrent. No draft is visible to
	// any other agent's request.
	drafts, err := s.fanOutIntents(ctx, tick, history)
	if err != nil {
		return nil, nil, err
	}

	// Stage B: partition drafts by resulting location.
	temp := make(History, len(history))
	for id, items := range history {
		temp[id] = items
	}
	for _, d := range drafts {
		temp.Append(d)
	}
	groups := GroupByLocation(temp)

	// Stage C: resolve each encounter with one generator call, then merge
	// (Stage D) its overrides into copies of the drafts. The drafts
	// themselves stay untouched so Stage E can persist them verbatim.
	final := make(map[string]*TickOutput, len(drafts))
	for _, d := range drafts {
		final[d.AgentID] = d.Clone()
	}

	var encounters []*Encounter
	for _, location := range SortedLocations(groups) {
		participants := groups[location]
		if len(participants) < 2 {
			continue
		}
		enc, err := s.resolveEncounter(ctx, tick, history, location, participants, pairSrc, final)
		if err != nil {
			return nil, nil, err
		}
		encounters = append(encounters, enc)
	}

	// Stage E: persist intents, finals and encounter events.
	if err := s.persistTick(tick, drafts, final, encounters); err != nil {
		return nil, nil, err
	}

	outputs := make([]*TickOutput, len(s.personas))
	for i, p := range s.personas {
		outputs[i] = final[p.ID]
	}
	return outputs, encounters, nil
}

func (s *Scheduler) fanOutIntents(ctx context.Context, tick int, history History) ([]*TickOutput, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	drafts := make([]*TickOutput, len(s.personas))
	errs := make([]error, len(s.personas))

	var wg sync.WaitGroup
	for i, p := range s.personas {
		wg.Add(1)
		go func(i int, p *AgentPersona) {
			defer wg.Done()
			out, err := s.intentFor(ctx, p, tick, history)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			drafts[i] = out
		}(i, p)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("tick %d intent for %s: %w", tick, s.personas[i].ID, err)
		}
	}
	return drafts, nil
}

// intentFor builds one agent's private context — its own memory and last
// known state plus the public portion of co-located agents — and asks the
// generator for a draft.
func (s *Scheduler) intentFor(ctx context.Context, p *AgentPersona, tick int, history History) (*TickOutput, error) {
	lastState := p.InitialState
	lastLocation := defaultLocation
	if loc, ok := p.InitialState["location"].(string); ok && loc != "" {
		lastLocation = loc
	}
	prev := history[p.ID]
	if len(prev) > 0 {
		last := prev[len(prev)-1]
		lastState = last.State
		lastLocation = last.Location
	}

	accMemory := append([]string(nil), p.InitialMemory...)
	for _, it := range prev {
		accMemory = append(accMemory, it.Memory...)
	}

	visible := LocalContext(tick, history, lastLocation)
	prompt := renderAgentPrompt(p, s.env, tick, visible, accMemory, lastState, lastLocation)

	data, err := s.gen.ChatJSON(ctx, agentSystemPrompt,
		[]agents.Message{{Role: "user", Content: prompt}},
		s.cfg.Temperature, s.cfg.MaxTokens)
	if err != nil {
		return nil, err
	}

	out := &TickOutput{
		AgentID:  p.ID,
		Tick:     tick,
		Action:   stringField(data, "action"),
		Speech:   stringField(data, "speech"),
		State:    mapField(data, "state"),
		Thoughts: stringField(data, "thoughts"),
		Location: stringField(data, "location"),
		Memory:   stringsField(data, "memory"),
	}
	if out.Location == "" {
		out.Location = lastLocation
	}
	return out, nil
}

func (s *Scheduler) resolveEncounter(ctx context.Context, tick int, history History, location string, participants []*TickOutput, pairSrc social.PairSource, final map[string]*TickOutput) (*Encounter, error) {
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.AgentID
	}

	baseK := s.cfg.MaxSpeakers
	if baseK <= 0 {
		baseK = 3
	}
	alpha := s.cfg.RelationInfluence
	allowed := social.PickSpeakers(pairSrc, ids, alpha, baseK)
	suggested := social.SuggestedPairs(pairSrc, ids, alpha)
	relSummary := social.Summary(pairSrc, ids)
	localVisible := LocalContext(tick, history, location)

	maxTokens := s.cfg.MaxTokens
	if maxTokens < 900 {
		maxTokens = 900
	}
	prompt := renderEncounterPrompt(s.env, location, localVisible, participants, relSummary, allowed, suggested)
	data, err := s.gen.ChatJSON(ctx, encounterSystemPrompt,
		[]agents.Message{{Role: "user", Content: prompt}},
		s.cfg.Temperature, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("tick %d encounter at %s: %w", tick, location, err)
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = true
	}
	participantSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		participantSet[id] = true
	}

	// Stage D merge: non-empty resolved fields win, state unions with the
	// resolved values on top, memory appends.
	if items, ok := data["agents"].([]any); ok {
		for _, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			aid := stringField(item, "agent_id")
			base, ok := final[aid]
			if !ok || !participantSet[aid] {
				continue
			}
			mergeField(&base.Action, stringField(item, "action"))
			mergeField(&base.Speech, stringField(item, "speech"))
			mergeField(&base.Thoughts, stringField(item, "thoughts"))
			mergeField(&base.Location, stringField(item, "location"))
			if base.State == nil {
				base.State = make(map[string]any)
			}
			for k, v := range mapField(item, "state") {
				base.State[k] = v
			}
			base.Memory = append(base.Memory, stringsField(item, "memory")...)
		}
	}

	// Hard mute. Never depends on generator compliance: every participant
	// outside the admitted set ends the tick with empty speech.
	for _, id := range ids {
		if !allowedSet[id] {
			final[id].Speech = ""
		}
	}

	return &Encounter{
		Tick:            tick,
		Location:        location,
		Participants:    ids,
		AllowedSpeakers: allowed,
		Notes:           stringField(data, "notes"),
	}, nil
}

func (s *Scheduler) persistTick(tick int, drafts []*TickOutput, final map[string]*TickOutput, encounters []*Encounter) error {
	for i, p := range s.personas {
		d := drafts[i]
		if err := s.journal.AppendAgent(p.Name, map[string]any{
			"type": "tick.intent", "tick": tick, "agent_id": d.AgentID,
			"action": d.Action, "speech": d.Speech, "location": d.Location,
			"thoughts": d.Thoughts, "state": d.State, "memory": d.Memory,
		}); err != nil {
			return fmt.Errorf("persist intent for %s: %w", p.ID, err)
		}

		f := final[p.ID]
		if err := s.journal.AppendAgent(p.Name, map[string]any{
			"type": "tick.final", "tick": tick, "agent_id": f.AgentID,
			"action": f.Action, "speech": f.Speech, "location": f.Location,
			"thoughts": f.Thoughts, "state": f.State, "memory": f.Memory,
		}); err != nil {
			return fmt.Errorf("persist final for %s: %w", p.ID, err)
		}
	}

	for _, enc := range encounters {
		if err := s.journal.AppendEvent(map[string]any{
			"type": "encounter", "tick": tick, "location": enc.Location,
			"notes": enc.Notes, "participants": enc.Participants,
		}); err != nil {
			return fmt.Errorf("persist encounter at %s: %w", enc.Location, err)
		}
	}
	return nil
}

func mergeField(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func mapField(data map[string]any, key string) map[string]any {
	if v, ok := data[key].(map[string]any); ok {
		return v
	}
	return nil
}

func stringsField(data map[string]any, key string) []string {
	items, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

package relation

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// RelationDoc is the persisted form of a single directed relation. The
// interaction ring is not persisted beyond its count.
type RelationDoc struct {
	FromAgent            string  `json:"from_agent"`
	ToAgent              string  `json:"to_agent"`
	Intimacy             float64 `json:"intimacy"`
	RelationType         string  `json:"relation_type"`
	Trust                float64 `json:"trust"`
	Respect              float64 `json:"respect"`
	Affection            float64 `json:"affection"`
	Dependency           float64 `json:"dependency"`
	PositiveInteractions int     `json:"positive_interactions"`
	NegativeInteractions int     `json:"negative_interactions"`
	NeutralInteractions  int     `json:"neutral_interactions"`
	LastUpdateTime       float64 `json:"last_update_time"`
	InteractionCount     int     `json:"interaction_count"`
}

// GraphDoc is the persisted form of the whole graph.
type GraphDoc struct {
	Agents    []string                          `json:"agents"`
	Relations map[string]map[string]RelationDoc `json:"relations"`
}

// Export snapshots the graph into its persisted shape.
func (g *Graph) Export() GraphDoc {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := GraphDoc{
		Agents:    append([]string(nil), g.agentIDs...),
		Relations: make(map[string]map[string]RelationDoc, len(g.relations)),
	}
	for from, rels := range g.relations {
		out := make(map[string]RelationDoc, len(rels))
		for to, rel := range rels {
			out[to] = RelationDoc{
				FromAgent:            rel.FromAgent,
				ToAgent:              rel.ToAgent,
				Intimacy:             rel.Intimacy,
				RelationType:         rel.RelationType,
				Trust:                rel.Trust,
				Respect:              rel.Respect,
				Affection:            rel.Affection,
				Dependency:           rel.Dependency,
				PositiveInteractions: rel.PositiveInteractions,
				NegativeInteractions: rel.NegativeInteractions,
				NeutralInteractions:  rel.NeutralInteractions,
				LastUpdateTime:       rel.LastUpdateTime,
				InteractionCount:     len(rel.History),
			}
		}
		doc.Relations[from] = out
	}
	return doc
}

// Import replaces the graph contents from a persisted snapshot.
func (g *Graph) Import(doc GraphDoc) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.relations = make(map[string]map[string]*DirectedRelation)
	g.neighborOrder = make(map[string][]string)
	g.agentIDs = nil

	for _, id := range doc.Agents {
		g.addAgentLocked(id)
	}

	// Walk relations in agent-list order so neighborOrder (and with it the
	// statistics tie-break) is identical on every load of the same snapshot.
	// Endpoints missing from the agent list come last, sorted.
	order := append([]string(nil), doc.Agents...)
	listed := make(map[string]bool, len(order))
	for _, id := range order {
		listed[id] = true
	}
	var extras []string
	for from, rels := range doc.Relations {
		if !listed[from] {
			listed[from] = true
			extras = append(extras, from)
		}
		for to := range rels {
			if !listed[to] {
				listed[to] = true
				extras = append(extras, to)
			}
		}
	}
	sort.Strings(extras)
	order = append(order, extras...)

	for _, from := range order {
		rels, ok := doc.Relations[from]
		if !ok {
			continue
		}
		g.addAgentLocked(from)
		for _, to := range order {
			rd, ok := rels[to]
			if !ok {
				continue
			}
			rel := NewDirectedRelation(from, to, rd.Intimacy, rd.RelationType)
			rel.Trust = rd.Trust
			rel.Respect = rd.Respect
			rel.Affection = rd.Affection
			rel.Dependency = rd.Dependency
			rel.PositiveInteractions = rd.PositiveInteractions
			rel.NegativeInteractions = rd.NegativeInteractions
			rel.NeutralInteractions = rd.NeutralInteractions
			if rd.LastUpdateTime != 0 {
				rel.LastUpdateTime = rd.LastUpdateTime
			}
			g.relations[from][to] = rel
			g.neighborOrder[from] = append(g.neighborOrder[from], to)
		}
	}
}

// SaveFile writes the graph snapshot as indented JSON.
func (g *Graph) SaveFile(path string) error {
	data, err := json.MarshalIndent(g.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal relation graph: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write relation graph: %w", err)
	}
	return nil
}

// LoadFile reads a graph snapshot from disk. Malformed input is a data
// error, fatal at load time.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read relation graph: %w", err)
	}
	var doc GraphDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse relation graph %s: %w", path, err)
	}
	g := NewGraph()
	g.Import(doc)
	return g, nil
}

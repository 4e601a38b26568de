package relation

import (
	"math"
	"sort"
	"sync"
)

// Graph holds every agent's outgoing directed relations. Presence of A→B
// implies nothing about B→A. Reads on missing agents or pairs resolve to
// neutral defaults, never errors; the only hard failure in this package is
// malformed persisted input on import.
type Graph struct {
	mu sync.RWMutex
	// relations[from][to]
	relations map[string]map[string]*DirectedRelation
	agentIDs  []string
	// neighborOrder preserves relation insertion order per agent so that
	// statistics tie-breaks are stable.
	neighborOrder map[string][]string
}

// NewGraph creates an empty relation graph.
func NewGraph() *Graph {
	return &Graph{
		relations:     make(map[string]map[string]*DirectedRelation),
		neighborOrder: make(map[string][]string),
	}
}

// AddAgent registers an agent id. Registration is idempotent.
func (g *Graph) AddAgent(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addAgentLocked(id)
}

func (g *Graph) addAgentLocked(id string) {
	if _, ok := g.relations[id]; ok {
		return
	}
	g.relations[id] = make(map[string]*DirectedRelation)
	g.agentIDs = append(g.agentIDs, id)
}

// AgentIDs returns the registered agents in registration order.
func (g *Graph) AgentIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.agentIDs))
	copy(out, g.agentIDs)
	return out
}

// GetRelation returns the relation from one agent to another, or nil if it
// does not exist.
func (g *Graph) GetRelation(from, to string) *DirectedRelation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.relations[from][to]
}

// SetRelation creates the relation if absent (auto-registering both
// endpoints) or overwrites intimacy and type on an existing one. Component
// scores are untouched.
func (g *Graph) SetRelation(from, to string, intimacy float64, relationType string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setRelationLocked(from, to, intimacy, relationType)
}

func (g *Graph) setRelationLocked(from, to string, intimacy float64, relationType string) {
	g.addAgentLocked(from)
	g.addAgentLocked(to)

	if rel, ok := g.relations[from][to]; ok {
		rel.Intimacy = clamp(intimacy)
		rel.RelationType = relationType
		return
	}
	g.relations[from][to] = NewDirectedRelation(from, to, intimacy, relationType)
	g.neighborOrder[from] = append(g.neighborOrder[from], to)
}

// AddInteraction records an interaction from one agent toward another,
// creating a neutral relation first if none exists.
func (g *Graph) AddInteraction(from, to, interactionType string, impact float64, context string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.relations[from][to]; !ok {
		g.setRelationLocked(from, to, 0.0, "stranger")
	}
	g.relations[from][to].AddInteraction(interactionType, impact, context)
}

// AddBidirectionalInteraction applies the interaction independently in both
// directions; the two sides may diverge in magnitude and resulting type.
func (g *Graph) AddBidirectionalInteraction(a, b, interactionType string, impactA, impactB float64, context string) {
	g.AddInteraction(a, b, interactionType, impactA, context)
	g.AddInteraction(b, a, interactionType, impactB, context)
}

// NormalizeAgentRelations rewrites the outgoing intimacy values of one agent
// using the given method. Lossy: the original values are discarded.
//
//   - "minmax": rescale min↔max to −1↔+1; no-op when all values are equal.
//   - "zscore": standard score passed through tanh.
//   - "softmax": softmax over raw values mapped affinely to [-1, 1].
func (g *Graph) NormalizeAgentRelations(agentID, method string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rels := g.relations[agentID]
	if len(rels) == 0 {
		return
	}

	order := g.neighborOrder[agentID]
	values := make([]float64, 0, len(order))
	for _, to := range order {
		values = append(values, rels[to].Intimacy)
	}

	switch method {
	case "minmax":
		minV, maxV := values[0], values[0]
		for _, v := range values {
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}
		if maxV > minV {
			for _, to := range order {
				rel := rels[to]
				rel.Intimacy = 2*(rel.Intimacy-minV)/(maxV-minV) - 1
			}
		}
	case "zscore":
		mean, std := meanStd(values)
		if std > 0 {
			for _, to := range order {
				rel := rels[to]
				rel.Intimacy = math.Tanh((rel.Intimacy - mean) / std)
			}
		}
	case "softmax":
		var sum float64
		exps := make([]float64, len(values))
		for i, v := range values {
			exps[i] = math.Exp(v)
			sum += exps[i]
		}
		for i, to := range order {
			rels[to].Intimacy = 2*exps[i]/sum - 1
		}
	}
}

// NormalizeAll applies NormalizeAgentRelations to every registered agent.
func (g *Graph) NormalizeAll(method string) {
	for _, id := range g.AgentIDs() {
		g.NormalizeAgentRelations(id, method)
	}
}

// MutualIntimacy returns intimacy(a→b) and intimacy(b→a). Missing relations
// count as intimacy 0.
func (g *Graph) MutualIntimacy(a, b string) (float64, float64) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ab, ba float64
	if rel := g.relations[a][b]; rel != nil {
		ab = rel.Intimacy
	}
	if rel := g.relations[b][a]; rel != nil {
		ba = rel.Intimacy
	}
	return ab, ba
}

// AsymmetryScore is |intimacy(a→b) − intimacy(b→a)| / 2, in [0, 1].
// Zero iff the two directions are equal.
func (g *Graph) AsymmetryScore(a, b string) float64 {
	ab, ba := g.MutualIntimacy(a, b)
	return math.Abs(ab-ba) / 2.0
}

// ApplyTimeDecay decays every relation by the time elapsed since its last
// update, measured against currentTime (unix seconds).
func (g *Graph) ApplyTimeDecay(currentTime float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, rels := range g.relations {
		for _, rel := range rels {
			if elapsed := currentTime - rel.LastUpdateTime; elapsed > 0 {
				rel.DecayOverTime(elapsed)
			}
		}
	}
}

// NeighborIntimacy pairs a neighbor id with the outgoing intimacy toward it.
type NeighborIntimacy struct {
	AgentID  string  `json:"agent_id"`
	Intimacy float64 `json:"intimacy"`
}

// Statistics summarizes one agent's outgoing relations. Positive/negative
// use ±0.3 intimacy thresholds.
type Statistics struct {
	AgentID           string             `json:"agent_id"`
	TotalRelations    int                `json:"total_relations"`
	PositiveRelations int                `json:"positive_relations"`
	NegativeRelations int                `json:"negative_relations"`
	NeutralRelations  int                `json:"neutral_relations"`
	AverageIntimacy   float64            `json:"average_intimacy"`
	IntimacyStd       float64            `json:"intimacy_std"`
	ClosestAllies     []NeighborIntimacy `json:"closest_allies"`
	WorstEnemies      []NeighborIntimacy `json:"worst_enemies"`
}

// AgentStatistics computes relation statistics for one agent. An unknown
// agent yields zero-valued statistics rather than an error.
func (g *Graph) AgentStatistics(agentID string) Statistics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Statistics{AgentID: agentID}
	rels := g.relations[agentID]
	if len(rels) == 0 {
		return stats
	}

	order := g.neighborOrder[agentID]
	values := make([]float64, 0, len(order))
	for _, to := range order {
		v := rels[to].Intimacy
		values = append(values, v)
		switch {
		case v > 0.3:
			stats.PositiveRelations++
		case v < -0.3:
			stats.NegativeRelations++
		default:
			stats.NeutralRelations++
		}
	}
	stats.TotalRelations = len(values)
	stats.AverageIntimacy, stats.IntimacyStd = meanStd(values)

	// Descending by intimacy; ties keep relation insertion order.
	ranked := make([]NeighborIntimacy, len(order))
	for i, to := range order {
		ranked[i] = NeighborIntimacy{AgentID: to, Intimacy: rels[to].Intimacy}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Intimacy > ranked[j].Intimacy
	})

	top := len(ranked)
	if top > 3 {
		top = 3
	}
	stats.ClosestAllies = append([]NeighborIntimacy(nil), ranked[:top]...)
	stats.WorstEnemies = append([]NeighborIntimacy(nil), ranked[len(ranked)-top:]...)
	return stats
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

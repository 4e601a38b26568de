package relation

import (
	"math"
	"time"
)

// Component weights for deriving intimacy. Trust dominates, dependency
// matters least.
const (
	trustWeight      = 0.35
	respectWeight    = 0.25
	affectionWeight  = 0.30
	dependencyWeight = 0.10
)

// learningRate controls how fast a single interaction moves component scores.
const learningRate = 0.1

// maxHistory bounds the per-relation interaction ring.
const maxHistory = 100

// InteractionRecord is one entry in a relation's interaction ring.
type InteractionRecord struct {
	Type           string  `json:"type"`
	Impact         float64 `json:"impact"`
	Context        string  `json:"context"`
	Timestamp      float64 `json:"timestamp"`
	IntimacyBefore float64 `json:"intimacy_before"`
	IntimacyAfter  float64 `json:"intimacy_after"`
}

// DirectedRelation is the one-way relation from one agent to another.
// A's relation to B says nothing about B's relation to A.
type DirectedRelation struct {
	FromAgent string
	ToAgent   string

	// Intimacy summarizes the relation in [-1, 1]. It is always re-derived
	// from the four component scores after an update; the only ways it is
	// set directly are construction, SetRelation and normalization.
	Intimacy     float64
	RelationType string

	Trust      float64
	Respect    float64
	Affection  float64
	Dependency float64

	PositiveInteractions int
	NegativeInteractions int
	NeutralInteractions  int

	History        []InteractionRecord
	LastUpdateTime float64
}

// NewDirectedRelation creates a relation with the given initial intimacy
// (clamped) and type. Component scores start at zero.
func NewDirectedRelation(from, to string, intimacy float64, relationType string) *DirectedRelation {
	return &DirectedRelation{
		FromAgent:      from,
		ToAgent:        to,
		Intimacy:       clamp(intimacy),
		RelationType:   relationType,
		LastUpdateTime: float64(time.Now().UnixNano()) / 1e9,
	}
}

// interactionEffects maps interaction types to per-component weights.
// An unknown type has no entry: components stay put, intimacy is still
// recomputed (a no-op) and the interaction is still counted and recorded.
var interactionEffects = map[string]map[string]float64{
	"cooperation": {"trust": 0.8, "respect": 0.6, "affection": 0.4, "dependency": 0.2},
	"conflict":    {"trust": -0.7, "respect": -0.5, "affection": -0.8, "dependency": 0.0},
	"help":        {"trust": 0.6, "respect": 0.4, "affection": 0.7, "dependency": 0.5},
	"betrayal":    {"trust": -1.0, "respect": -0.6, "affection": -0.9, "dependency": -0.3},
	"praise":      {"respect": 0.7, "affection": 0.5, "trust": 0.3, "dependency": 0.0},
	"criticism":   {"respect": -0.4, "affection": -0.3, "trust": -0.2, "dependency": 0.0},
	"support":     {"trust": 0.5, "affection": 0.6, "respect": 0.4, "dependency": 0.3},
	"rejection":   {"affection": -0.8, "trust": -0.4, "respect": -0.3, "dependency": -0.2},
	"competition": {"respect": 0.3, "trust": -0.2, "affection": -0.1, "dependency": 0.0},
	"alliance":    {"trust": 0.7, "dependency": 0.6, "respect": 0.5, "affection": 0.3},
	"conversation": {"affection": 0.2, "trust": 0.1, "respect": 0.1, "dependency": 0.0},
	"ignore":      {"affection": -0.3, "trust": -0.2, "respect": -0.2, "dependency": -0.1},
}

// InteractionTypes returns the known interaction vocabulary.
func InteractionTypes() []string {
	out := make([]string, 0, len(interactionEffects))
	for t := range interactionEffects {
		out = append(out, t)
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(-1.0, math.Min(1.0, v))
}

// updateIntimacyFromComponents re-derives intimacy from the weighted
// component combination.
func (r *DirectedRelation) updateIntimacyFromComponents() {
	r.Intimacy = clamp(
		r.Trust*trustWeight +
			r.Respect*respectWeight +
			r.Affection*affectionWeight +
			r.Dependency*dependencyWeight)
}

// AddInteraction applies one interaction of the given type and impact,
// updates component scores through the effect table, re-derives intimacy,
// classifies the interaction for the running counters, and appends a record
// to the ring (trimmed to the most recent 100).
func (r *DirectedRelation) AddInteraction(interactionType string, impact float64, context string) {
	rec := InteractionRecord{
		Type:           interactionType,
		Impact:         impact,
		Context:        context,
		Timestamp:      float64(time.Now().UnixNano()) / 1e9,
		IntimacyBefore: r.Intimacy,
	}

	switch {
	case impact > 0.1:
		r.PositiveInteractions++
	case impact < -0.1:
		r.NegativeInteractions++
	default:
		r.NeutralInteractions++
	}

	for component, weight := range interactionEffects[interactionType] {
		change := impact * weight * learningRate
		switch component {
		case "trust":
			r.Trust = clamp(r.Trust + change)
		case "respect":
			r.Respect = clamp(r.Respect + change)
		case "affection":
			r.Affection = clamp(r.Affection + change)
		case "dependency":
			r.Dependency = clamp(r.Dependency + change)
		}
	}

	r.updateIntimacyFromComponents()

	rec.IntimacyAfter = r.Intimacy
	r.History = append(r.History, rec)
	if len(r.History) > maxHistory {
		r.History = r.History[len(r.History)-maxHistory:]
	}
	r.LastUpdateTime = rec.Timestamp
}

// DecayOverTime relaxes intimacy and all components toward zero by a
// continuous factor of about 1% per elapsed day.
func (r *DirectedRelation) DecayOverTime(seconds float64) {
	factor := math.Exp(-0.01 * seconds / 86400.0)
	r.Intimacy *= factor
	r.Trust *= factor
	r.Respect *= factor
	r.Affection *= factor
	r.Dependency *= factor
}

package relation

import (
	"math"
	"sync"

	"github.com/agentsim/society/internal/emotion"
)

// Declared is an author-supplied relation record for one ordered pair.
// Strength lives in [0, 1].
type Declared struct {
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// AgentDecl carries an agent id together with its declared relations,
// keyed by the other agent's id.
type AgentDecl struct {
	ID        string
	Relations map[string]Declared
}

// baseImpacts maps event types to the (initiator, recipient) base impact
// pair. Same vocabulary as the graph's effect table.
var baseImpacts = map[string][2]float64{
	"cooperation":  {0.8, 0.8},
	"conflict":     {-0.7, -0.7},
	"help":         {0.6, 0.5},
	"betrayal":     {-1.0, -0.9},
	"praise":       {0.5, 0.6},
	"criticism":    {-0.4, -0.5},
	"support":      {0.6, 0.7},
	"rejection":    {-0.6, -0.8},
	"competition":  {0.2, 0.2},
	"alliance":     {0.7, 0.7},
	"conversation": {0.2, 0.2},
	"ignore":       {-0.3, -0.4},
}

// maxEmotionHistory bounds the per-pair emotion interaction log, matching
// the graph's interaction ring.
const maxEmotionHistory = 100

type pairKey struct{ from, to string }

// EmotionEvent records one emotion-annotated interaction between a pair.
type EmotionEvent struct {
	EventType   string          `json:"event_type"`
	Context     string          `json:"context"`
	FromEmotion emotion.Profile `json:"from_emotion"`
	ToEmotion   emotion.Profile `json:"to_emotion"`
	ImpactFrom  float64         `json:"impact_from"`
	ImpactTo    float64         `json:"impact_to"`
}

// Manager interprets interaction events against the directed graph,
// folding in the participants' emotional state when it is known.
type Manager struct {
	graph *Graph

	mu             sync.Mutex
	emotionHistory map[pairKey][]EmotionEvent
}

// NewManager creates a manager over a fresh graph.
func NewManager() *Manager {
	return &Manager{
		graph:          NewGraph(),
		emotionHistory: make(map[pairKey][]EmotionEvent),
	}
}

// Graph exposes the underlying directed relation graph.
func (m *Manager) Graph() *Graph { return m.graph }

// InitializeFromAgents registers every agent and imports its declared
// relation records, mapping strength in [0, 1] to intimacy in [-1, 1].
func (m *Manager) InitializeFromAgents(agents []AgentDecl) {
	for _, a := range agents {
		m.graph.AddAgent(a.ID)
	}
	for _, a := range agents {
		for other, rec := range a.Relations {
			relType := rec.Type
			if relType == "" {
				relType = "stranger"
			}
			intimacy := rec.Strength*2 - 1
			m.graph.SetRelation(a.ID, other, intimacy, relType)
		}
	}
}

// CustomImpact supplies verbatim impacts for ProcessInteractionEvent,
// bypassing the base-impact table and emotion scaling.
type CustomImpact struct {
	From, To float64
}

// ProcessInteractionEvent computes the bidirectional impact of one event and
// applies it to the graph. When both emotion profiles are known the impacts
// are scaled by mood similarity (similar moods amplify positive events,
// dissimilar moods amplify negative ones) and average intensity, and the
// event is appended to the pair's bounded emotion history.
func (m *Manager) ProcessInteractionEvent(from, to, eventType string, fromEmotion, toEmotion *emotion.Profile, context string, custom *CustomImpact) {
	var impactFrom, impactTo float64
	if custom != nil {
		impactFrom, impactTo = custom.From, custom.To
	} else {
		impactFrom, impactTo = m.interactionImpact(eventType, fromEmotion, toEmotion)
	}

	m.graph.AddBidirectionalInteraction(from, to, eventType, impactFrom, impactTo, context)

	if fromEmotion != nil && toEmotion != nil {
		m.mu.Lock()
		key := pairKey{from, to}
		history := append(m.emotionHistory[key], EmotionEvent{
			EventType:   eventType,
			Context:     context,
			FromEmotion: *fromEmotion,
			ToEmotion:   *toEmotion,
			ImpactFrom:  impactFrom,
			ImpactTo:    impactTo,
		})
		if len(history) > maxEmotionHistory {
			history = history[len(history)-maxEmotionHistory:]
		}
		m.emotionHistory[key] = history
		m.mu.Unlock()
	}
}

func (m *Manager) interactionImpact(eventType string, fromEmotion, toEmotion *emotion.Profile) (float64, float64) {
	impacts := baseImpacts[eventType]
	impactFrom, impactTo := impacts[0], impacts[1]

	if fromEmotion == nil || toEmotion == nil {
		return impactFrom, impactTo
	}

	sim := fromEmotion.Similarity(toEmotion)
	scale := func(impact float64) float64 {
		if impact > 0 {
			return impact * (1 + sim*0.3)
		}
		return impact * (1 + (1-sim)*0.3)
	}
	impactFrom = scale(impactFrom)
	impactTo = scale(impactTo)

	avgIntensity := (fromEmotion.Intensity + toEmotion.Intensity) / 2
	impactFrom *= 0.7 + avgIntensity*0.3
	impactTo *= 0.7 + avgIntensity*0.3
	return impactFrom, impactTo
}

// EmotionHistory returns a copy of the recorded emotion events from one
// agent toward another, oldest first.
func (m *Manager) EmotionHistory(from, to string) []EmotionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmotionEvent(nil), m.emotionHistory[pairKey{from, to}]...)
}

// SocialProfile extends an agent's relation statistics with a social type
// label and a relationship health score in [0, 1].
type SocialProfile struct {
	Statistics
	SocialType         string  `json:"social_type"`
	RelationshipHealth float64 `json:"relationship_health"`
}

// AgentSocialProfile derives the social profile for one agent.
func (m *Manager) AgentSocialProfile(agentID string) SocialProfile {
	stats := m.graph.AgentStatistics(agentID)
	return SocialProfile{
		Statistics:         stats,
		SocialType:         socialType(stats),
		RelationshipHealth: relationshipHealth(stats),
	}
}

func socialType(stats Statistics) string {
	total := stats.TotalRelations
	if total < 1 {
		total = 1
	}
	positiveRatio := float64(stats.PositiveRelations) / float64(total)
	negativeRatio := float64(stats.NegativeRelations) / float64(total)

	switch {
	case positiveRatio > 0.7 && stats.AverageIntimacy > 0.5:
		return "socialite"
	case positiveRatio > 0.7:
		return "friendly"
	case negativeRatio > 0.5 && stats.AverageIntimacy < -0.3:
		return "isolated"
	case negativeRatio > 0.5:
		return "confrontational"
	case positiveRatio > 0.4 && negativeRatio < 0.2:
		return "balanced"
	default:
		return "neutral"
	}
}

func relationshipHealth(stats Statistics) float64 {
	total := stats.TotalRelations
	if total < 1 {
		total = 1
	}
	positiveRatio := float64(stats.PositiveRelations) / float64(total)
	avgNormalized := (stats.AverageIntimacy + 1) / 2
	stability := 1 - math.Min(stats.IntimacyStd, 1.0)

	health := positiveRatio*0.4 + avgNormalized*0.4 + stability*0.2
	return math.Max(0.0, math.Min(1.0, health))
}

// MutualSummary describes both directions of a pair plus its asymmetry.
type MutualSummary struct {
	Forward        *RelationDoc `json:"forward,omitempty"`
	Backward       *RelationDoc `json:"backward,omitempty"`
	IntimacyAB     float64      `json:"intimacy_a_to_b"`
	IntimacyBA     float64      `json:"intimacy_b_to_a"`
	AsymmetryScore float64      `json:"asymmetry_score"`
	Balance        string       `json:"relationship_balance"`
}

// MutualRelationSummary reports both directions between two agents. Missing
// directions are neutral, not errors.
func (m *Manager) MutualRelationSummary(a, b string) MutualSummary {
	docOf := func(rel *DirectedRelation) *RelationDoc {
		if rel == nil {
			return nil
		}
		return &RelationDoc{
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

	ab, ba := m.graph.MutualIntimacy(a, b)
	asym := m.graph.AsymmetryScore(a, b)
	balance := "symmetric"
	if asym >= 0.5 {
		balance = "highly_asymmetric"
	} else if asym >= 0.2 {
		balance = "slightly_asymmetric"
	}

	return MutualSummary{
		Forward:        docOf(m.graph.GetRelation(a, b)),
		Backward:       docOf(m.graph.GetRelation(b, a)),
		IntimacyAB:     ab,
		IntimacyBA:     ba,
		AsymmetryScore: asym,
		Balance:        balance,
	}
}

// NormalizeAll rescales every agent's outgoing intimacy values.
func (m *Manager) NormalizeAll(method string) {
	m.graph.NormalizeAll(method)
}

// ApplyTimeDecay decays every relation against the given unix time.
func (m *Manager) ApplyTimeDecay(currentTime float64) {
	m.graph.ApplyTimeDecay(currentTime)
}

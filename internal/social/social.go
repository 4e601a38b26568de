// Package social builds the symmetric working set of declared relations
// consulted at tick time, and implements the trust-weighted admission policy
// that gates which co-located agents may speak during an encounter.
package social

import (
	"fmt"
	"sort"

	"github.com/agentsim/society/internal/relation"
)

// typeRank is the fixed precedence order used when two sides declare
// different types for the same pair; the lower index wins.
var typeRank = map[string]int{
	"family":       0,
	"friend":       1,
	"coworker":     2,
	"neighbor":     3,
	"acquaintance": 4,
	"stranger":     5,
}

// baseTrust maps a relation type to its trust baseline.
var baseTrust = map[string]float64{
	"family":       0.9,
	"friend":       0.75,
	"coworker":     0.6,
	"neighbor":     0.55,
	"acquaintance": 0.45,
	"stranger":     0.3,
}

const unknownTypeTrust = 0.35

// Member is one agent's declared view of its relations.
type Member struct {
	ID        string
	Relations map[string]relation.Declared
}

// PairSource answers pair lookups for the admission policy. The default
// implementation is the declarative Graph built from author records; a
// second implementation adapts the learned directed graph, making the
// choice of relation backing explicit.
type PairSource interface {
	Pair(a, b string) (relation.Declared, bool)
}

// Graph is the merged, symmetric working set of declared relations. It is
// deliberately simpler than the asymmetric directed graph: both directions
// of a pair always carry the same record.
type Graph map[string]map[string]relation.Declared

// Pair implements PairSource.
func (g Graph) Pair(a, b string) (relation.Declared, bool) {
	rec, ok := g[a][b]
	return rec, ok
}

func rankOf(t string) int {
	if r, ok := typeRank[t]; ok {
		return r
	}
	return 99
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// BuildGraph merges each member's declared record for a pair with the
// counterpart's declaration of the same pair: strength is the max of both
// sides, type is whichever side's type ranks higher in the precedence
// order. The merged record is written symmetrically to both directions.
func BuildGraph(members []Member) Graph {
	g := make(Graph, len(members))
	declared := make(map[string]map[string]relation.Declared, len(members))
	for _, m := range members {
		g[m.ID] = make(map[string]relation.Declared)
		declared[m.ID] = m.Relations
	}

	for _, m := range members {
		for other, rec := range m.Relations {
			typeA := rec.Type
			if typeA == "" {
				typeA = "stranger"
			}
			strengthA := rec.Strength

			typeB, strengthB := typeA, strengthA
			if back, ok := declared[other][m.ID]; ok {
				if back.Type != "" {
					typeB = back.Type
				}
				strengthB = back.Strength
			}

			merged := relation.Declared{
				Type:     typeA,
				Strength: clamp01(max(strengthA, strengthB)),
			}
			if rankOf(typeB) < rankOf(typeA) {
				merged.Type = typeB
			}

			g[m.ID][other] = merged
			if _, ok := g[other]; !ok {
				g[other] = make(map[string]relation.Declared)
			}
			g[other][m.ID] = merged
		}
	}
	return g
}

// PairTrustWeight maps a declared record to a trust weight in [0.05, 1].
func PairTrustWeight(rec relation.Declared) float64 {
	base, ok := baseTrust[rec.Type]
	if !ok {
		base = unknownTypeTrust
	}
	trust := base*0.6 + rec.Strength*0.4
	if trust < 0.05 {
		return 0.05
	}
	if trust > 1.0 {
		return 1.0
	}
	return trust
}

// Summary renders the pairwise declared relations among participants as
// human-readable lines for prompt context.
func Summary(src PairSource, participantIDs []string) []string {
	var lines []string
	for i := 0; i < len(participantIDs); i++ {
		for j := i + 1; j < len(participantIDs); j++ {
			u, v := participantIDs[i], participantIDs[j]
			rec, ok := src.Pair(u, v)
			if !ok {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s<->%s: type=%s strength=%.2f (trust~%.2f)",
				u, v, rec.Type, rec.Strength, PairTrustWeight(rec)))
		}
	}
	return lines
}

// PickSpeakers selects the participants permitted to produce speech in an
// encounter. Each participant's score blends flat fairness against its mean
// trust toward the other participants present (default 0.2 when it has no
// declared relation to any of them):
//
//	score = (1-alpha)*uniform + alpha*meanTrust
//
// The top k (default min(3, n)) by score win; ties keep input order.
func PickSpeakers(src PairSource, participantIDs []string, alpha float64, baseK int) []string {
	if len(participantIDs) == 0 {
		return nil
	}
	k := baseK
	if k > len(participantIDs) {
		k = len(participantIDs)
	}

	uniform := 1.0 / float64(len(participantIDs))
	scores := make(map[string]float64, len(participantIDs))
	for _, u := range participantIDs {
		var acc float64
		var cnt int
		for _, v := range participantIDs {
			if v == u {
				continue
			}
			if rec, ok := src.Pair(u, v); ok {
				acc += PairTrustWeight(rec)
				cnt++
			}
		}
		rel := 0.2
		if cnt > 0 {
			rel = acc / float64(cnt)
		}
		scores[u] = (1-alpha)*uniform + alpha*rel
	}

	sorted := append([]string(nil), participantIDs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return scores[sorted[i]] > scores[sorted[j]]
	})
	return sorted[:k]
}

// SuggestedPairs returns the participant pairs whose trust weight clears
// the admission threshold 0.55*alpha; the generator is steered toward
// these pairings.
func SuggestedPairs(src PairSource, participantIDs []string, alpha float64) [][2]string {
	var pairs [][2]string
	for i := 0; i < len(participantIDs); i++ {
		for j := i + 1; j < len(participantIDs); j++ {
			u, v := participantIDs[i], participantIDs[j]
			rec, ok := src.Pair(u, v)
			if ok && PairTrustWeight(rec) >= 0.55*alpha {
				pairs = append(pairs, [2]string{u, v})
			}
		}
	}
	return pairs
}

// LearnedSource adapts the evolving directed graph to the PairSource
// interface: intimacy in [-1, 1] maps back to strength in [0, 1], and the
// relation type is taken from the outgoing edge (falling back to the
// reverse edge when only that one exists).
type LearnedSource struct {
	Graph *relation.Graph
}

// Pair implements PairSource over learned relations.
func (s LearnedSource) Pair(a, b string) (relation.Declared, bool) {
	rel := s.Graph.GetRelation(a, b)
	if rel == nil {
		rel = s.Graph.GetRelation(b, a)
	}
	if rel == nil {
		return relation.Declared{}, false
	}
	return relation.Declared{
		Type:     rel.RelationType,
		Strength: clamp01((rel.Intimacy + 1) / 2),
	}, true
}

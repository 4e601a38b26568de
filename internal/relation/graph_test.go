package relation

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func buildTestGraph() *Graph {
	g := NewGraph()
	g.SetRelation("alice", "bob", 0.8, "friend")
	g.SetRelation("alice", "carol", -0.5, "stranger")
	g.SetRelation("alice", "dave", 0.2, "coworker")
	g.SetRelation("bob", "alice", 0.4, "friend")
	return g
}

// TestSetRelationOverwrite tests that re-declaring keeps component scores.
func TestSetRelationOverwrite(t *testing.T) {
	g := NewGraph()
	g.SetRelation("a", "b", 0.5, "friend")
	g.AddInteraction("a", "b", "cooperation", 0.8, "")

	trustBefore := g.GetRelation("a", "b").Trust
	if trustBefore == 0 {
		t.Fatal("Expected trust to move after interaction")
	}

	g.SetRelation("a", "b", -0.9, "stranger")
	rel := g.GetRelation("a", "b")
	if rel.Intimacy != -0.9 {
		t.Errorf("Expected intimacy -0.9, got %v", rel.Intimacy)
	}
	if rel.RelationType != "stranger" {
		t.Errorf("Expected type stranger, got %s", rel.RelationType)
	}
	if rel.Trust != trustBefore {
		t.Errorf("Expected trust untouched by SetRelation, got %v", rel.Trust)
	}
}

// TestInteractionAutoCreates tests the neutral-stranger auto-creation.
func TestInteractionAutoCreates(t *testing.T) {
	g := NewGraph()
	g.AddInteraction("x", "y", "help", 0.6, "carried groceries")

	rel := g.GetRelation("x", "y")
	if rel == nil {
		t.Fatal("Expected relation to be auto-created")
	}
	if rel.RelationType != "stranger" {
		t.Errorf("Expected stranger type, got %s", rel.RelationType)
	}
	if g.GetRelation("y", "x") != nil {
		t.Error("Expected no reverse relation")
	}
}

// TestBidirectionalInteraction tests independent application per direction.
func TestBidirectionalInteraction(t *testing.T) {
	g := NewGraph()
	g.AddBidirectionalInteraction("a", "b", "help", 0.8, 0.4, "")

	ab := g.GetRelation("a", "b")
	ba := g.GetRelation("b", "a")
	if ab == nil || ba == nil {
		t.Fatal("Expected both directions created")
	}
	if ab.Intimacy <= ba.Intimacy {
		t.Errorf("Expected a->b (%v) stronger than b->a (%v)", ab.Intimacy, ba.Intimacy)
	}
}

// TestNormalizeMinmax tests min-max rescaling to the [-1, 1] extremes.
func TestNormalizeMinmax(t *testing.T) {
	g := buildTestGraph()
	g.NormalizeAgentRelations("alice", "minmax")

	if v := g.GetRelation("alice", "bob").Intimacy; v != 1 {
		t.Errorf("Expected max neighbor at 1, got %v", v)
	}
	if v := g.GetRelation("alice", "carol").Intimacy; v != -1 {
		t.Errorf("Expected min neighbor at -1, got %v", v)
	}
}

// TestNormalizeMinmaxUniform tests the equal-values no-op.
func TestNormalizeMinmaxUniform(t *testing.T) {
	g := NewGraph()
	g.SetRelation("a", "b", 0.5, "friend")
	g.SetRelation("a", "c", 0.5, "friend")
	g.NormalizeAgentRelations("a", "minmax")

	if v := g.GetRelation("a", "b").Intimacy; v != 0.5 {
		t.Errorf("Expected uniform values untouched, got %v", v)
	}
}

// TestNormalizeZscore tests tanh-squashed standard scores.
func TestNormalizeZscore(t *testing.T) {
	g := buildTestGraph()
	g.NormalizeAgentRelations("alice", "zscore")

	values := []float64{0.8, -0.5, 0.2}
	mean, std := meanStd(values)
	want := math.Tanh((0.8 - mean) / std)
	if got := g.GetRelation("alice", "bob").Intimacy; !almostEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

// TestNormalizeSoftmax tests the affine softmax map.
func TestNormalizeSoftmax(t *testing.T) {
	g := buildTestGraph()
	g.NormalizeAgentRelations("alice", "softmax")

	var sum float64
	for _, v := range []float64{0.8, -0.5, 0.2} {
		sum += math.Exp(v)
	}
	want := 2*math.Exp(0.8)/sum - 1
	if got := g.GetRelation("alice", "bob").Intimacy; !almostEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	// Softmax outputs stay in (-1, 1).
	for _, to := range []string{"bob", "carol", "dave"} {
		v := g.GetRelation("alice", to).Intimacy
		if v <= -1 || v >= 1 {
			t.Errorf("Expected softmax value in (-1,1), got %v for %s", v, to)
		}
	}
}

// TestMutualIntimacy tests both-direction reads with a missing edge.
func TestMutualIntimacy(t *testing.T) {
	g := buildTestGraph()

	ab, ba := g.MutualIntimacy("alice", "bob")
	if ab != 0.8 || ba != 0.4 {
		t.Errorf("Expected (0.8, 0.4), got (%v, %v)", ab, ba)
	}

	ac, ca := g.MutualIntimacy("alice", "carol")
	if ac != -0.5 || ca != 0 {
		t.Errorf("Expected missing reverse edge to read 0, got (%v, %v)", ac, ca)
	}
}

// TestAsymmetryScore tests the |a-b|/2 definition.
func TestAsymmetryScore(t *testing.T) {
	g := buildTestGraph()

	if got := g.AsymmetryScore("alice", "bob"); !almostEqual(got, 0.2) {
		t.Errorf("Expected 0.2, got %v", got)
	}
	if got := g.AsymmetryScore("nobody", "noone"); got != 0 {
		t.Errorf("Expected 0 for unknown pair, got %v", got)
	}

	g.SetRelation("bob", "alice", 0.8, "friend")
	if got := g.AsymmetryScore("alice", "bob"); got != 0 {
		t.Errorf("Expected 0 for symmetric pair, got %v", got)
	}
}

// TestAgentStatistics tests thresholds, averages, and ranked extremes.
func TestAgentStatistics(t *testing.T) {
	g := buildTestGraph()
	stats := g.AgentStatistics("alice")

	if stats.TotalRelations != 3 {
		t.Fatalf("Expected 3 relations, got %d", stats.TotalRelations)
	}
	if stats.PositiveRelations != 1 || stats.NegativeRelations != 1 || stats.NeutralRelations != 1 {
		t.Errorf("Expected 1/1/1 classification, got %d/%d/%d",
			stats.PositiveRelations, stats.NegativeRelations, stats.NeutralRelations)
	}

	mean, std := meanStd([]float64{0.8, -0.5, 0.2})
	if !almostEqual(stats.AverageIntimacy, mean) || !almostEqual(stats.IntimacyStd, std) {
		t.Errorf("Expected mean=%v std=%v, got %v / %v", mean, std, stats.AverageIntimacy, stats.IntimacyStd)
	}

	if len(stats.ClosestAllies) != 3 || stats.ClosestAllies[0].AgentID != "bob" {
		t.Errorf("Expected bob as closest ally, got %+v", stats.ClosestAllies)
	}
	if stats.WorstEnemies[len(stats.WorstEnemies)-1].AgentID != "carol" {
		t.Errorf("Expected carol as worst enemy, got %+v", stats.WorstEnemies)
	}

	empty := g.AgentStatistics("nobody")
	if empty.TotalRelations != 0 {
		t.Errorf("Expected zero stats for unknown agent, got %+v", empty)
	}
}

// TestExportImportRoundTrip tests that the persisted shape survives and
// keeps evolved component scores.
func TestExportImportRoundTrip(t *testing.T) {
	g := buildTestGraph()
	g.AddInteraction("alice", "bob", "cooperation", 0.8, "")
	path := filepath.Join(t.TempDir(), "relations.json")

	if err := g.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	orig := g.GetRelation("alice", "bob")
	got := loaded.GetRelation("alice", "bob")
	if got == nil {
		t.Fatal("Expected alice->bob to survive the round trip")
	}
	if got.Intimacy != orig.Intimacy || got.Trust != orig.Trust || got.RelationType != orig.RelationType {
		t.Errorf("Round trip mismatch: %+v vs %+v", got, orig)
	}
	if len(loaded.AgentIDs()) != len(g.AgentIDs()) {
		t.Errorf("Expected %d agents, got %d", len(g.AgentIDs()), len(loaded.AgentIDs()))
	}
}

// TestImportStableTieBreakOrder tests that ranked-extreme ordering among
// equal intimacies is the same on every load of the same snapshot.
func TestImportStableTieBreakOrder(t *testing.T) {
	g := NewGraph()
	for _, to := range []string{"bob", "carol", "dave", "erin"} {
		g.SetRelation("alice", to, 0.5, "friend")
	}
	doc := g.Export()

	want := []string{"bob", "carol", "dave", "erin"}
	for i := 0; i < 5; i++ {
		loaded := NewGraph()
		loaded.Import(doc)
		allies := loaded.AgentStatistics("alice").ClosestAllies
		if len(allies) != 3 {
			t.Fatalf("Expected 3 allies, got %d", len(allies))
		}
		for k, ally := range allies {
			if ally.AgentID != want[k] {
				t.Fatalf("Import %d: expected allies %v, got %+v", i, want[:3], allies)
			}
		}
	}
}

// TestLoadFileMalformed tests the malformed-input failure path.
func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("Expected error for malformed input")
	}
}

// TestApplyTimeDecay tests elapsed-time decay against a future clock.
func TestApplyTimeDecay(t *testing.T) {
	g := NewGraph()
	g.SetRelation("a", "b", 0.8, "friend")

	rel := g.GetRelation("a", "b")
	g.ApplyTimeDecay(rel.LastUpdateTime + 86400)

	want := 0.8 * math.Exp(-0.01)
	if !almostEqual(rel.Intimacy, want) {
		t.Errorf("Expected %v after one day, got %v", want, rel.Intimacy)
	}
}

package social

import (
	"math"
	"testing"

	"github.com/agentsim/society/internal/relation"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestBuildGraphMergesSymmetric tests two-sided merge rules: max strength,
// highest-ranked type, symmetric writes.
func TestBuildGraphMergesSymmetric(t *testing.T) {
	g := BuildGraph([]Member{
		{ID: "alice", Relations: map[string]relation.Declared{
			"bob": {Type: "coworker", Strength: 0.4},
		}},
		{ID: "bob", Relations: map[string]relation.Declared{
			"alice": {Type: "friend", Strength: 0.7},
		}},
	})

	rec, ok := g.Pair("alice", "bob")
	if !ok {
		t.Fatal("Expected merged pair")
	}
	if rec.Type != "friend" {
		t.Errorf("Expected friend to outrank coworker, got %s", rec.Type)
	}
	if rec.Strength != 0.7 {
		t.Errorf("Expected max strength 0.7, got %v", rec.Strength)
	}

	back, ok := g.Pair("bob", "alice")
	if !ok || back != rec {
		t.Errorf("Expected symmetric record, got %+v vs %+v", back, rec)
	}
}

// TestBuildGraphOneSided tests mirroring of a one-sided declaration.
func TestBuildGraphOneSided(t *testing.T) {
	g := BuildGraph([]Member{
		{ID: "alice", Relations: map[string]relation.Declared{
			"bob": {Strength: 0.5},
		}},
		{ID: "bob"},
	})

	rec, ok := g.Pair("bob", "alice")
	if !ok {
		t.Fatal("Expected mirrored pair")
	}
	if rec.Type != "stranger" {
		t.Errorf("Expected empty type defaulted to stranger, got %s", rec.Type)
	}
	if rec.Strength != 0.5 {
		t.Errorf("Expected strength 0.5, got %v", rec.Strength)
	}
}

// TestBuildGraphClampsStrength tests that out-of-range strengths clamp.
func TestBuildGraphClampsStrength(t *testing.T) {
	g := BuildGraph([]Member{
		{ID: "a", Relations: map[string]relation.Declared{
			"b": {Type: "friend", Strength: 1.8},
		}},
	})
	rec, _ := g.Pair("a", "b")
	if rec.Strength != 1 {
		t.Errorf("Expected strength clamped to 1, got %v", rec.Strength)
	}
}

// TestPairTrustWeight tests the baseline blend and its clamps.
func TestPairTrustWeight(t *testing.T) {
	cases := []struct {
		rec  relation.Declared
		want float64
	}{
		{relation.Declared{Type: "family", Strength: 1.0}, 0.94},
		{relation.Declared{Type: "friend", Strength: 0.5}, 0.65},
		{relation.Declared{Type: "stranger", Strength: 0.0}, 0.18},
		{relation.Declared{Type: "mentor", Strength: 0.5}, 0.35*0.6 + 0.2},
	}
	for _, c := range cases {
		if got := PairTrustWeight(c.rec); !almostEqual(got, c.want) {
			t.Errorf("PairTrustWeight(%+v): expected %v, got %v", c.rec, c.want, got)
		}
	}

	// Negative strengths still floor at 0.05.
	if got := PairTrustWeight(relation.Declared{Type: "stranger", Strength: -2}); got != 0.05 {
		t.Errorf("Expected floor 0.05, got %v", got)
	}
}

// TestPickSpeakersTrustOrdering tests that at full relation influence the
// best-connected participants win.
func TestPickSpeakersTrustOrdering(t *testing.T) {
	g := BuildGraph([]Member{
		{ID: "a", Relations: map[string]relation.Declared{
			"b": {Type: "friend", Strength: 0.8},
		}},
		{ID: "b"},
		{ID: "c"},
	})

	got := PickSpeakers(g, []string{"a", "b", "c"}, 1.0, 2)
	if len(got) != 2 {
		t.Fatalf("Expected 2 speakers, got %v", got)
	}
	// a and b share a strong friend bond; c scores the 0.2 default.
	if got[0] != "a" && got[0] != "b" {
		t.Errorf("Expected a or b first, got %s", got[0])
	}
	for _, id := range got {
		if id == "c" {
			t.Errorf("Expected c excluded, got %v", got)
		}
	}
}

// TestPickSpeakersUniform tests that alpha 0 keeps input order via stable
// sort over equal scores.
func TestPickSpeakersUniform(t *testing.T) {
	g := BuildGraph([]Member{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	got := PickSpeakers(g, []string{"c", "a", "b"}, 0, 2)
	if len(got) != 2 || got[0] != "c" || got[1] != "a" {
		t.Errorf("Expected input order on ties, got %v", got)
	}
}

// TestPickSpeakersKClamp tests k clamping and the empty input.
func TestPickSpeakersKClamp(t *testing.T) {
	g := BuildGraph([]Member{{ID: "a"}, {ID: "b"}})
	if got := PickSpeakers(g, []string{"a", "b"}, 0.5, 5); len(got) != 2 {
		t.Errorf("Expected k clamped to participant count, got %v", got)
	}
	if got := PickSpeakers(g, nil, 0.5, 3); got != nil {
		t.Errorf("Expected nil for no participants, got %v", got)
	}
}

// TestSuggestedPairs tests the 0.55*alpha admission threshold.
func TestSuggestedPairs(t *testing.T) {
	g := BuildGraph([]Member{
		{ID: "a", Relations: map[string]relation.Declared{
			"b": {Type: "friend", Strength: 0.8}, // trust 0.77
			"c": {Type: "stranger", Strength: 0}, // trust 0.18
		}},
		{ID: "b"},
		{ID: "c"},
	})

	pairs := SuggestedPairs(g, []string{"a", "b", "c"}, 1.0)
	if len(pairs) != 1 || pairs[0] != [2]string{"a", "b"} {
		t.Errorf("Expected only a-b above threshold, got %v", pairs)
	}

	// Low influence lowers the bar: 0.55*0.3 = 0.165 < 0.18.
	pairs = SuggestedPairs(g, []string{"a", "b", "c"}, 0.3)
	if len(pairs) != 2 {
		t.Errorf("Expected both declared pairs at low alpha, got %v", pairs)
	}
}

// TestSummary tests the rendered pair lines.
func TestSummary(t *testing.T) {
	g := BuildGraph([]Member{
		{ID: "a", Relations: map[string]relation.Declared{
			"b": {Type: "friend", Strength: 0.8},
		}},
		{ID: "b"},
		{ID: "c"},
	})

	lines := Summary(g, []string{"a", "b", "c"})
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %v", lines)
	}
	want := "a<->b: type=friend strength=0.80 (trust~0.77)"
	if lines[0] != want {
		t.Errorf("Expected %q, got %q", want, lines[0])
	}
}

// TestLearnedSource tests the directed-graph adapter with reverse fallback.
func TestLearnedSource(t *testing.T) {
	dg := relation.NewGraph()
	dg.SetRelation("a", "b", 0.6, "friend")
	src := LearnedSource{Graph: dg}

	rec, ok := src.Pair("a", "b")
	if !ok {
		t.Fatal("Expected learned pair")
	}
	if rec.Type != "friend" || !almostEqual(rec.Strength, 0.8) {
		t.Errorf("Expected friend strength 0.8, got %+v", rec)
	}

	// Only the reverse edge exists.
	rec, ok = src.Pair("b", "a")
	if !ok || rec.Type != "friend" {
		t.Errorf("Expected reverse fallback, got %+v ok=%v", rec, ok)
	}

	if _, ok := src.Pair("x", "y"); ok {
		t.Error("Expected no record for unknown pair")
	}
}

package relation

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestCooperationImpact tests the per-component learning update for a
// single positive interaction.
func TestCooperationImpact(t *testing.T) {
	rel := NewDirectedRelation("a", "b", 0, "stranger")
	rel.AddInteraction("cooperation", 0.8, "built a shed together")

	if !almostEqual(rel.Trust, 0.064) {
		t.Errorf("Expected trust 0.064, got %v", rel.Trust)
	}
	if !almostEqual(rel.Respect, 0.048) {
		t.Errorf("Expected respect 0.048, got %v", rel.Respect)
	}
	if !almostEqual(rel.Affection, 0.032) {
		t.Errorf("Expected affection 0.032, got %v", rel.Affection)
	}
	if !almostEqual(rel.Dependency, 0.016) {
		t.Errorf("Expected dependency 0.016, got %v", rel.Dependency)
	}
	if !almostEqual(rel.Intimacy, 0.0456) {
		t.Errorf("Expected intimacy 0.0456, got %v", rel.Intimacy)
	}
}

// TestInteractionCounters tests the positive/negative classification
// thresholds.
func TestInteractionCounters(t *testing.T) {
	rel := NewDirectedRelation("a", "b", 0, "stranger")

	rel.AddInteraction("cooperation", 0.5, "")
	rel.AddInteraction("conflict", -0.5, "")
	rel.AddInteraction("conversation", 0.05, "") // below both thresholds

	if rel.PositiveInteractions != 1 {
		t.Errorf("Expected 1 positive interaction, got %d", rel.PositiveInteractions)
	}
	if rel.NegativeInteractions != 1 {
		t.Errorf("Expected 1 negative interaction, got %d", rel.NegativeInteractions)
	}
	if rel.NeutralInteractions != 1 {
		t.Errorf("Expected 1 neutral interaction, got %d", rel.NeutralInteractions)
	}
	if len(rel.History) != 3 {
		t.Errorf("Expected 3 history entries, got %d", len(rel.History))
	}
}

// TestUnknownInteractionType tests that unknown types leave components
// alone but are still counted and recorded.
func TestUnknownInteractionType(t *testing.T) {
	rel := NewDirectedRelation("a", "b", 0, "stranger")
	rel.AddInteraction("mystery", 1.0, "")

	if rel.Intimacy != 0 || rel.Trust != 0 {
		t.Errorf("Expected components untouched, got intimacy=%v trust=%v", rel.Intimacy, rel.Trust)
	}
	if rel.PositiveInteractions != 1 {
		t.Errorf("Expected interaction counted, got %d", rel.PositiveInteractions)
	}
	if len(rel.History) != 1 {
		t.Errorf("Expected interaction recorded, got %d entries", len(rel.History))
	}
}

// TestHistoryRing tests the 100-entry interaction cap.
func TestHistoryRing(t *testing.T) {
	rel := NewDirectedRelation("a", "b", 0, "stranger")
	for i := 0; i < 150; i++ {
		rel.AddInteraction("conversation", 0.2, "")
	}

	if len(rel.History) != 100 {
		t.Errorf("Expected history capped at 100, got %d", len(rel.History))
	}
}

// TestComponentClamping tests that repeated extreme impacts stay in range.
func TestComponentClamping(t *testing.T) {
	rel := NewDirectedRelation("a", "b", 0.9, "friend")
	for i := 0; i < 200; i++ {
		rel.AddInteraction("cooperation", 1.0, "")
	}

	if rel.Trust > 1 || rel.Intimacy > 1 {
		t.Errorf("Expected components clamped to 1, got trust=%v intimacy=%v", rel.Trust, rel.Intimacy)
	}

	for i := 0; i < 400; i++ {
		rel.AddInteraction("betrayal", -1.0, "")
	}
	if rel.Trust < -1 || rel.Intimacy < -1 {
		t.Errorf("Expected components clamped to -1, got trust=%v intimacy=%v", rel.Trust, rel.Intimacy)
	}
}

// TestDecayOverTime tests exponential decay toward neutral.
func TestDecayOverTime(t *testing.T) {
	rel := NewDirectedRelation("a", "b", 0.8, "friend")
	rel.Trust = 0.5

	rel.DecayOverTime(86400) // one day

	factor := math.Exp(-0.01)
	if !almostEqual(rel.Intimacy, 0.8*factor) {
		t.Errorf("Expected intimacy %v, got %v", 0.8*factor, rel.Intimacy)
	}
	if !almostEqual(rel.Trust, 0.5*factor) {
		t.Errorf("Expected trust %v, got %v", 0.5*factor, rel.Trust)
	}

	// Zero elapsed time is a no-op.
	before := rel.Intimacy
	rel.DecayOverTime(0)
	if !almostEqual(rel.Intimacy, before) {
		t.Errorf("Expected no decay for zero elapsed time, got %v -> %v", before, rel.Intimacy)
	}
}

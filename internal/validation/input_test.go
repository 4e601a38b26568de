package validation

import (
	"strings"
	"testing"
)

// TestValidateSlug tests length and character constraints.
func TestValidateSlug(t *testing.T) {
	valid := []string{"exp1", "my-experiment", "a_b_c", strings.Repeat("x", 64)}
	for _, s := range valid {
		if err := ValidateSlug(s); err != nil {
			t.Errorf("ValidateSlug(%q): unexpected error %v", s, err)
		}
	}

	invalid := []string{"", strings.Repeat("x", 65), "has space", "path/../etc", "semi;colon", "naïve"}
	for _, s := range invalid {
		if err := ValidateSlug(s); err == nil {
			t.Errorf("ValidateSlug(%q): expected error", s)
		}
	}
}

// TestValidateAgentID tests the wider id length bound.
func TestValidateAgentID(t *testing.T) {
	if err := ValidateAgentID(strings.Repeat("a", 128)); err != nil {
		t.Errorf("Expected 128-char id valid, got %v", err)
	}
	if err := ValidateAgentID(strings.Repeat("a", 129)); err == nil {
		t.Error("Expected 129-char id rejected")
	}
	if err := ValidateAgentID("agent_42"); err != nil {
		t.Errorf("Expected valid id, got %v", err)
	}
	if err := ValidateAgentID("no spaces"); err == nil {
		t.Error("Expected spaces rejected")
	}
}

// TestValidateAgentCount tests the population bounds.
func TestValidateAgentCount(t *testing.T) {
	for _, n := range []int{1, 50, 200} {
		if err := ValidateAgentCount(n); err != nil {
			t.Errorf("ValidateAgentCount(%d): unexpected error %v", n, err)
		}
	}
	for _, n := range []int{0, -5, 201} {
		if err := ValidateAgentCount(n); err == nil {
			t.Errorf("ValidateAgentCount(%d): expected error", n)
		}
	}
}

// TestValidateRelationInfluence tests the [0, 1] bound.
func TestValidateRelationInfluence(t *testing.T) {
	for _, a := range []float64{0, 0.5, 1} {
		if err := ValidateRelationInfluence(a); err != nil {
			t.Errorf("ValidateRelationInfluence(%v): unexpected error %v", a, err)
		}
	}
	for _, a := range []float64{-0.1, 1.1} {
		if err := ValidateRelationInfluence(a); err == nil {
			t.Errorf("ValidateRelationInfluence(%v): expected error", a)
		}
	}
}

// TestValidateInteractionImpact tests the [-1, 1] bound.
func TestValidateInteractionImpact(t *testing.T) {
	for _, v := range []float64{-1, 0, 1} {
		if err := ValidateInteractionImpact(v); err != nil {
			t.Errorf("ValidateInteractionImpact(%v): unexpected error %v", v, err)
		}
	}
	for _, v := range []float64{-1.01, 1.01} {
		if err := ValidateInteractionImpact(v); err == nil {
			t.Errorf("ValidateInteractionImpact(%v): expected error", v)
		}
	}
}

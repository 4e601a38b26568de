package persona

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agentsim/society/internal/agents"
	"github.com/agentsim/society/internal/sim"
)

type stubChat struct {
	resp map[string]any
	err  error
}

func (s *stubChat) ChatJSON(ctx context.Context, system string, messages []agents.Message, temperature float64, maxTokens int) (map[string]any, error) {
	return s.resp, s.err
}

// TestGenerateOneFromModel tests normalization of model output.
func TestGenerateOneFromModel(t *testing.T) {
	g := NewGenerator(&stubChat{resp: map[string]any{
		"name":        "Emily Carter",
		"gender":      "female",
		"age":         float64(31),
		"occupation":  "Teacher",
		"description": "Patient and curious.",
		"initial_state": map[string]any{
			"location": "Classroom",
			"mood":     "curious",
		},
		"initial_memory": []any{"Grew up nearby", "Loves reading", "Early riser"},
	}})

	p, err := g.GenerateOne(context.Background(), nil)
	if err != nil {
		t.Fatalf("GenerateOne failed: %v", err)
	}
	if p.Name != "Emily Carter" || p.Gender != "Female" || p.Age != 31 {
		t.Errorf("Unexpected persona %+v", p)
	}
	if !strings.HasPrefix(p.ID, "agent_") {
		t.Errorf("Expected generated id, got %s", p.ID)
	}
	if p.InitialState["location"] != "Classroom" {
		t.Errorf("Expected location kept, got %v", p.InitialState["location"])
	}
	if _, ok := p.InitialState["emotion"]; !ok {
		t.Error("Expected seeded emotion profile")
	}
	if len(p.InitialMemory) != 3 {
		t.Errorf("Expected 3 memory items, got %v", p.InitialMemory)
	}
}

// TestGenerateOnePlaceholderName tests replacement of placeholder and
// single-word names.
func TestGenerateOnePlaceholderName(t *testing.T) {
	for _, bad := range []string{"Zhang Wei", "Test User", "Bob"} {
		g := NewGenerator(&stubChat{resp: map[string]any{"name": bad, "gender": "male"}})
		p, err := g.GenerateOne(context.Background(), nil)
		if err != nil {
			t.Fatalf("GenerateOne failed: %v", err)
		}
		if strings.EqualFold(p.Name, bad) {
			t.Errorf("Expected %q replaced, got %q", bad, p.Name)
		}
		if !strings.Contains(p.Name, " ") {
			t.Errorf("Expected First Last name, got %q", p.Name)
		}
	}
}

// TestGenerateOneModelFailure tests the local sampler fallback.
func TestGenerateOneModelFailure(t *testing.T) {
	g := NewGenerator(&stubChat{err: errors.New("model down")})
	p, err := g.GenerateOne(context.Background(), map[string]any{"name": "Fallback Name"})
	if err != nil {
		t.Fatalf("GenerateOne failed: %v", err)
	}
	if p.Name != "Fallback Name" {
		t.Errorf("Expected hinted name kept, got %s", p.Name)
	}
	if p.Age < 14 || p.Age > 75 {
		t.Errorf("Expected plausible sampled age, got %d", p.Age)
	}
}

// TestGenerateOneNilChat tests generation without any model wired.
func TestGenerateOneNilChat(t *testing.T) {
	g := NewGenerator(nil)
	p, err := g.GenerateOne(context.Background(), nil)
	if err != nil {
		t.Fatalf("GenerateOne failed: %v", err)
	}
	if p.Name == "" || p.Occupation == "" || p.Gender == "" {
		t.Errorf("Expected fully sampled persona, got %+v", p)
	}
}

// TestGenerateForEnvironmentTopUp tests local top-up when the model falls
// short of the requested count.
func TestGenerateForEnvironmentTopUp(t *testing.T) {
	g := NewGenerator(&stubChat{resp: map[string]any{
		"personas": []any{
			map[string]any{"name": "Emily Carter", "gender": "female"},
		},
	}})
	env := &sim.EnvSpec{Title: "School", Prompt: "A high school with a cafeteria and library."}

	personas, err := g.GenerateForEnvironment(context.Background(), 5, env, "", nil)
	if err != nil {
		t.Fatalf("GenerateForEnvironment failed: %v", err)
	}
	if len(personas) != 5 {
		t.Fatalf("Expected 5 personas, got %d", len(personas))
	}

	seen := make(map[string]bool)
	for _, p := range personas {
		if seen[p.Name] {
			t.Errorf("Expected unique names, duplicate %q", p.Name)
		}
		seen[p.Name] = true
		if p.ID == "" || p.Gender == "" {
			t.Errorf("Expected complete persona, got %+v", p)
		}
	}
}

// TestGenerateForEnvironmentZero tests the empty request.
func TestGenerateForEnvironmentZero(t *testing.T) {
	g := NewGenerator(nil)
	personas, err := g.GenerateForEnvironment(context.Background(), 0, &sim.EnvSpec{}, "", nil)
	if err != nil || personas != nil {
		t.Errorf("Expected nil for zero count, got %v / %v", personas, err)
	}
}

// TestRebalanceGender tests distribution enforcement against constraints.
func TestRebalanceGender(t *testing.T) {
	g := NewGenerator(nil)
	constraints := &Constraints{
		GenderRatio: map[string]float64{"Male": 0.5, "Female": 0.5},
	}

	personas := make([]*sim.AgentPersona, 10)
	for i := range personas {
		personas[i] = &sim.AgentPersona{
			ID: "p", Name: "Person " + string(rune('A'+i)), Gender: "Male",
			InitialState: map[string]any{"location": "Start"},
		}
	}

	out := g.rebalance(personas, 10, constraints)
	counts := map[string]int{}
	for _, p := range out {
		counts[p.Gender]++
	}
	if counts["Male"] != 5 || counts["Female"] != 5 {
		t.Errorf("Expected 5/5 split, got %v", counts)
	}
}

// TestRebalanceLocations tests coercion onto the constraint location list.
func TestRebalanceLocations(t *testing.T) {
	g := NewGenerator(nil)
	constraints := &Constraints{
		Locations: []string{"Cafeteria", "Library"},
	}
	personas := []*sim.AgentPersona{
		{Name: "Alice Smith", Gender: "Female", InitialState: map[string]any{"location": "Mars"}},
		{Name: "Bob Jones", Gender: "Male", InitialState: map[string]any{"location": "Library"}},
	}

	out := g.rebalance(personas, 2, constraints)
	for _, p := range out {
		loc, _ := p.InitialState["location"].(string)
		if loc != "Cafeteria" && loc != "Library" {
			t.Errorf("Expected constrained location, got %q", loc)
		}
	}
	if out[1].InitialState["location"] != "Library" {
		t.Errorf("Expected valid location untouched, got %v", out[1].InitialState["location"])
	}
}

// TestSampleAge tests bucket parsing and its malformed fallback.
func TestSampleAge(t *testing.T) {
	g := NewGenerator(nil)
	for i := 0; i < 50; i++ {
		age := g.sampleAge(map[string]float64{"19-25": 1})
		if age < 19 || age > 25 {
			t.Fatalf("Expected age in 19-25, got %d", age)
		}
	}
	for i := 0; i < 20; i++ {
		age := g.sampleAge(map[string]float64{"elderly": 1})
		if age < 26 || age > 40 {
			t.Fatalf("Expected fallback range 26-40, got %d", age)
		}
	}
}

// TestInferLocations tests environment text scanning and the fallback set.
func TestInferLocations(t *testing.T) {
	env := &sim.EnvSpec{Prompt: "Patients wait in the ER near the pharmacy."}
	locs := inferLocations(env)
	want := map[string]bool{"ER": true, "Pharmacy": true}
	if len(locs) != 2 {
		t.Fatalf("Expected 2 matched locations, got %v", locs)
	}
	for _, l := range locs {
		if !want[l] {
			t.Errorf("Unexpected location %q", l)
		}
	}

	locs = inferLocations(&sim.EnvSpec{Prompt: "An open field with no buildings at all."})
	if len(locs) == 0 {
		t.Error("Expected generic fallback locations")
	}
	if inferLocations(nil) != nil {
		t.Error("Expected nil for nil environment")
	}
}

// TestNormalizeGender tests the coarse gender mapping.
func TestNormalizeGender(t *testing.T) {
	cases := map[string]string{
		"":           "",
		"male":       "Male",
		"M":          "Male",
		"Female":     "Female",
		"non-binary": "Non-binary/Other",
		"other":      "Non-binary/Other",
	}
	for in, want := range cases {
		if got := normalizeGender(in); got != want {
			t.Errorf("normalizeGender(%q): expected %q, got %q", in, want, got)
		}
	}
}

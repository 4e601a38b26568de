package sim

import (
	"context"
	"testing"

	"github.com/agentsim/society/internal/journal"
)

// TestCompileStopCondition tests compile-time validation.
func TestCompileStopCondition(t *testing.T) {
	if cond, err := CompileStopCondition(""); cond != nil || err != nil {
		t.Errorf("Expected nil condition for empty source, got %v / %v", cond, err)
	}
	if _, err := CompileStopCondition("tick >"); err == nil {
		t.Error("Expected error for invalid expression")
	}
	if _, err := CompileStopCondition("tick >= 3"); err != nil {
		t.Errorf("Expected valid expression to compile, got %v", err)
	}
}

// TestStopConditionEvaluate tests tick, state and location variables plus
// the keep-going fallbacks.
func TestStopConditionEvaluate(t *testing.T) {
	outputs := []*TickOutput{
		{AgentID: "a", State: map[string]any{"hp": 0}, Location: "park"},
	}

	cond, err := CompileStopCondition("tick >= 2")
	if err != nil {
		t.Fatal(err)
	}
	if cond.Evaluate(1, outputs) {
		t.Error("Expected false below threshold")
	}
	if !cond.Evaluate(2, outputs) {
		t.Error("Expected true at threshold")
	}

	cond, _ = CompileStopCondition(`locations["a"] == "park"`)
	if !cond.Evaluate(0, outputs) {
		t.Error("Expected location lookup to stop the run")
	}

	cond, _ = CompileStopCondition(`agents["a"]["hp"] == 0`)
	if !cond.Evaluate(0, outputs) {
		t.Error("Expected state lookup to stop the run")
	}

	// Non-boolean results never stop the run.
	cond, _ = CompileStopCondition("tick + 1")
	if cond.Evaluate(0, outputs) {
		t.Error("Expected non-boolean result to keep going")
	}

	var nilCond *StopCondition
	if nilCond.Evaluate(0, outputs) {
		t.Error("Expected nil condition to keep going")
	}
}

func newRunnerScheduler(t *testing.T, gen Generator, cfg Config) *Scheduler {
	t.Helper()
	personas := []*AgentPersona{{ID: "agent_a", Name: "Alice"}}
	j := journal.New(journal.ForExperiment(t.TempDir()))
	return NewScheduler(personas, &EnvSpec{Title: "t"}, cfg, gen, j, nil)
}

// TestRunnerStepBudget tests that the runner spends exactly cfg.Steps ticks.
func TestRunnerStepBudget(t *testing.T) {
	gen := &fakeGen{}
	cfg := DefaultConfig()
	cfg.Steps = 3

	r := NewRunner(newRunnerScheduler(t, gen, cfg), cfg, 0, nil)
	history, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := len(history["agent_a"]); got != 3 {
		t.Errorf("Expected 3 ticks of history, got %d", got)
	}
}

// TestRunnerStopCondition tests early termination at a tick boundary.
func TestRunnerStopCondition(t *testing.T) {
	gen := &fakeGen{}
	cfg := DefaultConfig()
	cfg.Steps = 10

	stop, err := CompileStopCondition("tick >= 1")
	if err != nil {
		t.Fatal(err)
	}
	r := NewRunner(newRunnerScheduler(t, gen, cfg), cfg, 0, stop)
	history, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Ticks 0 and 1 complete; the condition fires after tick 1.
	if got := len(history["agent_a"]); got != 2 {
		t.Errorf("Expected 2 ticks before stop, got %d", got)
	}
}

// TestRunnerOnTick tests the per-tick callback ordering and payload.
func TestRunnerOnTick(t *testing.T) {
	gen := &fakeGen{}
	cfg := DefaultConfig()
	cfg.Steps = 2

	var ticks []int
	r := NewRunner(newRunnerScheduler(t, gen, cfg), cfg, 0, nil)
	r.OnTick = func(tick int, outputs []*TickOutput, encounters []*Encounter) error {
		ticks = append(ticks, tick)
		if len(outputs) != 1 || outputs[0].AgentID != "agent_a" {
			t.Errorf("Expected one output for agent_a, got %v", outputs)
		}
		// A single agent never meets anyone.
		if len(encounters) != 0 {
			t.Errorf("Expected no encounters, got %v", encounters)
		}
		return nil
	}

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(ticks) != 2 || ticks[0] != 0 || ticks[1] != 1 {
		t.Errorf("Expected callbacks for ticks [0 1], got %v", ticks)
	}
}

// TestRunnerOnTickEncounters tests that resolved encounters reach the
// per-tick callback.
func TestRunnerOnTickEncounters(t *testing.T) {
	gen := &fakeGen{
		intents: map[string]map[string]any{
			"agent_a": intentResponse("cafe", ""),
			"agent_b": intentResponse("cafe", ""),
			"agent_c": intentResponse("cafe", ""),
		},
		encounters: []map[string]any{{"notes": "round one"}},
	}
	cfg := DefaultConfig()
	cfg.Steps = 1

	j := journal.New(journal.ForExperiment(t.TempDir()))
	scheduler := NewScheduler(testPersonas(), &EnvSpec{Title: "t"}, cfg, gen, j, nil)

	var got []*Encounter
	r := NewRunner(scheduler, cfg, 0, nil)
	r.OnTick = func(tick int, outputs []*TickOutput, encounters []*Encounter) error {
		got = append(got, encounters...)
		return nil
	}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 1 || got[0].Location != "cafe" || got[0].Notes != "round one" {
		t.Errorf("Expected cafe encounter in callback, got %v", got)
	}
}

// TestRunnerCancelledContext tests that cancellation surfaces immediately.
func TestRunnerCancelledContext(t *testing.T) {
	gen := &fakeGen{}
	cfg := DefaultConfig()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(newRunnerScheduler(t, gen, cfg), cfg, 0, nil)
	history, err := r.Run(ctx)
	if err == nil {
		t.Fatal("Expected context error")
	}
	if len(history) != 0 {
		t.Errorf("Expected empty history, got %v", history)
	}
}

package db

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/agentsim/society/internal/relation"
	"github.com/agentsim/society/internal/sim"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// TestExperimentLifecycle tests upsert, listing order and cascade delete.
func TestExperimentLifecycle(t *testing.T) {
	database := newTestDB(t)

	if err := database.SaveExperiment("first", "First", 0.8, 3); err != nil {
		t.Fatalf("SaveExperiment failed: %v", err)
	}
	if err := database.SaveExperiment("second", "Second", 0.5, 2); err != nil {
		t.Fatalf("SaveExperiment failed: %v", err)
	}
	// Re-saving bumps updated_at, so "first" moves to the front.
	if err := database.SaveExperiment("first", "First Renamed", 0.9, 4); err != nil {
		t.Fatalf("SaveExperiment upsert failed: %v", err)
	}

	slugs, err := database.GetExperimentList()
	if err != nil {
		t.Fatalf("GetExperimentList failed: %v", err)
	}
	if len(slugs) != 2 || slugs[0] != "first" {
		t.Errorf("Expected [first second], got %v", slugs)
	}

	if err := database.DeleteExperiment("first"); err != nil {
		t.Fatalf("DeleteExperiment failed: %v", err)
	}
	slugs, err = database.GetExperimentList()
	if err != nil {
		t.Fatalf("GetExperimentList failed: %v", err)
	}
	if len(slugs) != 1 || slugs[0] != "second" {
		t.Errorf("Expected [second], got %v", slugs)
	}
}

// TestSaveEncounterRoundTrip tests that a stored encounter comes back as a
// row with its participants intact.
func TestSaveEncounterRoundTrip(t *testing.T) {
	database := newTestDB(t)

	if err := database.SaveExperiment("exp", "Exp", 0.8, 3); err != nil {
		t.Fatalf("SaveExperiment failed: %v", err)
	}
	if err := database.SaveEncounter("exp", 4, "cafe", []string{"agent_a", "agent_b"}, "small talk"); err != nil {
		t.Fatalf("SaveEncounter failed: %v", err)
	}

	encounters, err := database.GetEncounters("exp")
	if err != nil {
		t.Fatalf("GetEncounters failed: %v", err)
	}
	if len(encounters) != 1 {
		t.Fatalf("Expected one encounter row, got %d", len(encounters))
	}
	enc := encounters[0]
	if enc.Tick != 4 || enc.Location != "cafe" || enc.Notes != "small talk" {
		t.Errorf("Unexpected encounter row: %+v", enc)
	}
	if len(enc.Participants) != 2 || enc.Participants[0] != "agent_a" {
		t.Errorf("Expected participants preserved, got %v", enc.Participants)
	}
}

// TestTickOutputsRoundTrip tests per-agent filtering of stored outputs.
func TestTickOutputsRoundTrip(t *testing.T) {
	database := newTestDB(t)

	if err := database.SaveExperiment("exp", "Exp", 0.8, 2); err != nil {
		t.Fatalf("SaveExperiment failed: %v", err)
	}
	outputs := []*sim.TickOutput{
		{AgentID: "agent_a", Tick: 0, Action: "chat", Speech: "hi", Location: "cafe",
			State: map[string]any{"energy": "high"}, Memory: []string{"met Bob"}},
		{AgentID: "agent_b", Tick: 0, Action: "idle", Location: "cafe"},
	}
	if err := database.SaveTickOutputs("exp", outputs); err != nil {
		t.Fatalf("SaveTickOutputs failed: %v", err)
	}

	got, err := database.GetTickOutputs("exp", "agent_a", 0)
	if err != nil {
		t.Fatalf("GetTickOutputs failed: %v", err)
	}
	if len(got) != 1 || got[0].Speech != "hi" || got[0].State["energy"] != "high" {
		t.Errorf("Unexpected outputs: %+v", got)
	}
}

// TestRelationSnapshotLatest tests that the newest snapshot wins.
func TestRelationSnapshotLatest(t *testing.T) {
	database := newTestDB(t)

	if _, _, err := database.LoadLatestRelationSnapshot("exp"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows for missing snapshot, got %v", err)
	}

	g := relation.NewGraph()
	g.SetRelation("a", "b", 0.2, "friend")
	early := g.Export()
	g.SetRelation("a", "b", 0.6, "friend")
	late := g.Export()

	if err := database.SaveRelationSnapshot("exp", 1, &early); err != nil {
		t.Fatalf("SaveRelationSnapshot failed: %v", err)
	}
	if err := database.SaveRelationSnapshot("exp", 3, &late); err != nil {
		t.Fatalf("SaveRelationSnapshot failed: %v", err)
	}

	tick, doc, err := database.LoadLatestRelationSnapshot("exp")
	if err != nil {
		t.Fatalf("LoadLatestRelationSnapshot failed: %v", err)
	}
	if tick != 3 {
		t.Errorf("Expected tick 3, got %d", tick)
	}
	if got := doc.Relations["a"]["b"].Intimacy; got != 0.6 {
		t.Errorf("Expected latest intimacy 0.6, got %v", got)
	}
}

package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// StopCondition is a compiled boolean expression evaluated after every
// tick against the variables `tick`, `agents` (per-agent state maps) and
// `locations` (agent id -> location). A true result ends the run early.
type StopCondition struct {
	Source  string
	program *vm.Program
}

// CompileStopCondition pre-compiles the expression so invalid conditions
// fail at experiment setup, not mid-run.
func CompileStopCondition(source string) (*StopCondition, error) {
	if source == "" {
		return nil, nil
	}
	program, err := expr.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("invalid stop condition: %w", err)
	}
	return &StopCondition{Source: source, program: program}, nil
}

// Evaluate returns whether the run should stop. Non-boolean results and
// evaluation errors count as "keep going" so a bad condition never kills
// a running experiment.
func (c *StopCondition) Evaluate(tick int, outputs []*TickOutput) bool {
	if c == nil || c.program == nil {
		return false
	}
	agentStates := make(map[string]map[string]any, len(outputs))
	locations := make(map[string]string, len(outputs))
	for _, out := range outputs {
		agentStates[out.AgentID] = out.State
		locations[out.AgentID] = out.Location
	}
	result, err := vm.Run(c.program, map[string]any{
		"tick":      tick,
		"agents":    agentStates,
		"locations": locations,
	})
	if err != nil {
		slog.Warn("stop condition evaluation failed", "condition", c.Source, "error", err)
		return false
	}
	stop, ok := result.(bool)
	return ok && stop
}

// Runner drives a scheduler for a full simulation: at most cfg.Steps
// ticks, an optional wall-clock pause between ticks, and an optional stop
// condition checked at each tick boundary.
type Runner struct {
	scheduler *Scheduler
	cfg       Config
	interval  time.Duration
	stop      *StopCondition

	// OnTick, when set, receives every tick's final outputs and resolved
	// encounters after they have been persisted. Used by the experiment
	// layer to snapshot state.
	OnTick func(tick int, outputs []*TickOutput, encounters []*Encounter) error
}

func NewRunner(scheduler *Scheduler, cfg Config, interval time.Duration, stop *StopCondition) *Runner {
	return &Runner{scheduler: scheduler, cfg: cfg, interval: interval, stop: stop}
}

// Run executes ticks sequentially until the step budget is spent, the
// stop condition fires, the context is cancelled, or a tick fails. It
// returns the accumulated history; on error the history holds every tick
// that completed before the failure.
func (r *Runner) Run(ctx context.Context) (History, error) {
	history := make(History)
	for tick := 0; tick < r.cfg.Steps; tick++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}

		started := time.Now()
		outputs, encounters, err := r.scheduler.RunTick(ctx, tick, history)
		if err != nil {
			return history, fmt.Errorf("tick %d: %w", tick, err)
		}
		for _, out := range outputs {
			history.Append(out)
		}
		slog.Info("tick complete", "tick", tick, "agents", len(outputs), "took", time.Since(started))

		if r.OnTick != nil {
			if err := r.OnTick(tick, outputs, encounters); err != nil {
				return history, fmt.Errorf("tick %d callback: %w", tick, err)
			}
		}

		if r.stop.Evaluate(tick, outputs) {
			slog.Info("stop condition met", "tick", tick, "condition", r.stop.Source)
			return history, nil
		}

		if r.interval > 0 && tick < r.cfg.Steps-1 {
			select {
			case <-time.After(r.interval):
			case <-ctx.Done():
				return history, ctx.Err()
			}
		}
	}
	return history, nil
}

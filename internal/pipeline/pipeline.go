package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"cosmicdocflow/internal/checkpoint"
	"cosmicdocflow/internal/ports"
)

// WorkUnit is one source document to push through the stage list.
type WorkUnit struct {
	Owner      string
	Name       string
	SourcePath string
}

// State carries the source text and the committed artifacts of one unit
// between stages.
type State struct {
	Source    string
	Artifacts map[string][]byte
}

// Stage produces one named artifact for a unit. Run receives every artifact
// committed by earlier stages through the state.
type Stage interface {
	Name() string
	Artifact() string
	Run(ctx context.Context, unit WorkUnit, state *State) ([]byte, error)
}

// CleanupStage is implemented by stages that keep scratch files to remove
// once their artifact is committed.
type CleanupStage interface {
	Cleanup(unit WorkUnit) error
}

// Runner sequences the stages per unit and fans units across a bounded
// pool. A committed artifact is the only resume signal: stages whose
// artifact already exists are loaded and skipped.
type Runner struct {
	Store     *checkpoint.Store
	Reader    ports.DocumentReader
	Tracker   ports.StatusTracker
	Publisher ports.ArtifactWriter
	Stages    []Stage
	Workers   int
}

// Run processes every unit. Units are independent: one failing unit does
// not cancel the others, and all failures are reported together.
func (r *Runner) Run(ctx context.Context, units []WorkUnit) error {
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	errs := make([]error, len(units))
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			errs[i] = r.runUnit(ctx, u)
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

func (r *Runner) runUnit(ctx context.Context, unit WorkUnit) error {
	logCtx := slog.With("owner", unit.Owner, "unit", unit.Name)
	logCtx.Info("processing unit")

	source, err := r.Reader.Read(ctx, unit.SourcePath)
	if err != nil {
		r.Tracker.Update(ctx, unit.Owner, unit.Name, "failed", err.Error())
		return fmt.Errorf("unit %s/%s: %w", unit.Owner, unit.Name, err)
	}
	state := &State{Source: source, Artifacts: make(map[string][]byte)}

	for _, stage := range r.Stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.Store.Exists(unit.Owner, unit.Name, stage.Artifact()) {
			data, err := r.Store.Load(unit.Owner, unit.Name, stage.Artifact())
			if err != nil {
				r.Tracker.Update(ctx, unit.Owner, unit.Name, "failed", err.Error())
				return fmt.Errorf("unit %s/%s: %w", unit.Owner, unit.Name, err)
			}
			state.Artifacts[stage.Artifact()] = data
			logCtx.Info("stage already committed, skipping", "stage", stage.Name())
			continue
		}

		r.Tracker.Update(ctx, unit.Owner, unit.Name, "running", stage.Name())
		data, err := stage.Run(ctx, unit, state)
		if err != nil {
			r.Tracker.Update(ctx, unit.Owner, unit.Name, "failed", fmt.Sprintf("%s: %v", stage.Name(), err))
			return fmt.Errorf("unit %s/%s stage %s: %w", unit.Owner, unit.Name, stage.Name(), err)
		}
		if err := r.Store.Save(unit.Owner, unit.Name, stage.Artifact(), data); err != nil {
			r.Tracker.Update(ctx, unit.Owner, unit.Name, "failed", err.Error())
			return fmt.Errorf("unit %s/%s stage %s: %w", unit.Owner, unit.Name, stage.Name(), err)
		}
		state.Artifacts[stage.Artifact()] = data
		logCtx.Info("stage committed", "stage", stage.Name(), "bytes", len(data))

		if cs, ok := stage.(CleanupStage); ok {
			if err := cs.Cleanup(unit); err != nil {
				logCtx.Warn("stage cleanup failed", "stage", stage.Name(), "error", err)
			}
		}
	}

	if r.Publisher != nil {
		for _, stage := range r.Stages {
			data := state.Artifacts[stage.Artifact()]
			if err := r.Publisher.Write(ctx, unit.Owner, unit.Name, stage.Artifact(), data); err != nil {
				logCtx.Warn("publishing deliverable failed", "artifact", stage.Artifact(), "error", err)
			}
		}
	}

	r.Tracker.Update(ctx, unit.Owner, unit.Name, "done", "")
	logCtx.Info("unit complete")
	return nil
}

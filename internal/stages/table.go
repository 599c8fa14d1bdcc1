package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cosmicdocflow/internal/extract"
	"cosmicdocflow/internal/models"
	"cosmicdocflow/internal/pipeline"
	"cosmicdocflow/internal/validate"
)

// Table fans the requirement groups out into batches, generates one table
// fragment per batch on the inner pool, and merges the fragments into the
// final measurement table. Committed fragments survive restarts: the
// partition is recomputed deterministically from the analysis artifact, so
// an existing fragment file means that batch is done.
type Table struct {
	Env *Env
}

func (Table) Name() string     { return "table" }
func (Table) Artifact() string { return ArtifactTable }

func (s Table) Run(ctx context.Context, unit pipeline.WorkUnit, state *pipeline.State) ([]byte, error) {
	doc, err := models.ParseAnalysis(state.Artifacts[ArtifactAnalysis])
	if err != nil {
		return nil, err
	}
	groups := doc.Analysis.RequirementGroups
	if len(groups) == 0 {
		return nil, fmt.Errorf("analysis for %s/%s has no requirement groups", unit.Owner, unit.Name)
	}

	weights := make([]int, len(groups))
	for i, g := range groups {
		weights[i] = g.LeafCount()
	}
	batches := pipeline.Partition(weights, s.Env.Pipeline.BatchThreshold)
	slog.Info("fanning out table generation",
		"owner", unit.Owner, "unit", unit.Name, "groups", len(groups), "batches", len(batches))

	err = pipeline.RunSubTasks(ctx, s.Env.Pipeline.SubtaskWorkers, s.Env.Pipeline.SubtaskDelay(),
		len(batches), func(ctx context.Context, ordinal int) error {
			return s.runBatch(ctx, unit, doc, groups, batches[ordinal], ordinal)
		})
	if err != nil {
		return nil, err
	}
	return pipeline.MergeParts(s.Env.Store, unit.Owner, unit.Name, len(batches))
}

// Cleanup removes the fragment directory once the merged table is committed.
func (s Table) Cleanup(unit pipeline.WorkUnit) error {
	return pipeline.RemoveParts(s.Env.Store, unit.Owner, unit.Name)
}

func (s Table) runBatch(ctx context.Context, unit pipeline.WorkUnit, doc *models.AnalysisDocument,
	groups []models.FunctionalUserReq, batch []int, ordinal int) error {
	if s.Env.Store.PartExists(unit.Owner, unit.Name, ordinal) {
		slog.Info("table fragment already committed, skipping",
			"owner", unit.Owner, "unit", unit.Name, "ordinal", ordinal)
		return nil
	}

	subset := make([]models.FunctionalUserReq, len(batch))
	for i, idx := range batch {
		subset[i] = groups[idx]
	}
	sub := doc.Subset(subset)
	payload, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch %d: %w", ordinal, err)
	}

	rules := s.Env.Rules
	validator, err := validate.NewTableValidator(rules, sub.Analysis.DeclaredWorkload)
	if err != nil {
		return err
	}
	system, user, err := s.Env.prompts("table", map[string]any{
		"Columns":      strings.Join(rules.Columns, " | "),
		"AttrCountMin": rules.AttrCountMin,
		"AttrCountMax": rules.AttrCountMax,
		"Analysis":     string(payload),
	})
	if err != nil {
		return err
	}

	label := fmt.Sprintf("%s/%s/table-%03d", unit.Owner, unit.Name, ordinal)
	res, err := s.Env.Loop.Run(ctx, label, system, user, extract.MarkdownTable{}, validator)
	if err != nil {
		return fmt.Errorf("batch %d: %w", ordinal, err)
	}
	return s.Env.Store.SavePart(unit.Owner, unit.Name, ordinal, []byte(res.Payload))
}

package stages

import (
	"context"

	"cosmicdocflow/internal/extract"
	"cosmicdocflow/internal/pipeline"
	"cosmicdocflow/internal/validate"
)

// Necessity writes the construction-necessity narrative from the validated
// requirement and table.
type Necessity struct {
	Env *Env
}

func (Necessity) Name() string     { return "necessity" }
func (Necessity) Artifact() string { return ArtifactNecessity }

func (s Necessity) Run(ctx context.Context, unit pipeline.WorkUnit, state *pipeline.State) ([]byte, error) {
	system, user, err := s.Env.prompts("necessity", map[string]any{
		"Requirement": string(state.Artifacts[ArtifactRequirement]),
		"Table":       string(state.Artifacts[ArtifactTable]),
	})
	if err != nil {
		return nil, err
	}
	res, err := s.Env.Loop.Run(ctx, unit.Owner+"/"+unit.Name+"/necessity",
		system, user, extract.FencedText{}, validate.Accept{})
	if err != nil {
		return nil, err
	}
	return []byte(res.Payload), nil
}

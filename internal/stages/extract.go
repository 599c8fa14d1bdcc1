package stages

import (
	"context"

	"cosmicdocflow/internal/extract"
	"cosmicdocflow/internal/pipeline"
	"cosmicdocflow/internal/validate"
)

// Extract turns the raw source document into a cleaned requirement
// statement. Any non-empty reply is accepted.
type Extract struct {
	Env *Env
}

func (Extract) Name() string     { return "extract" }
func (Extract) Artifact() string { return ArtifactRequirement }

func (s Extract) Run(ctx context.Context, unit pipeline.WorkUnit, state *pipeline.State) ([]byte, error) {
	system, user, err := s.Env.prompts("extract", map[string]any{"Source": state.Source})
	if err != nil {
		return nil, err
	}
	res, err := s.Env.Loop.Run(ctx, unit.Owner+"/"+unit.Name+"/extract",
		system, user, extract.FencedText{}, validate.Accept{})
	if err != nil {
		return nil, err
	}
	return []byte(res.Payload), nil
}

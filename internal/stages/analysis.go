package stages

import (
	"context"
	"strings"

	"cosmicdocflow/internal/extract"
	"cosmicdocflow/internal/pipeline"
	"cosmicdocflow/internal/validate"
)

// Analysis decomposes the requirement statement into the hierarchical
// breakdown and validates it against the hierarchy rules.
type Analysis struct {
	env       *Env
	validator *validate.AnalysisValidator
}

// NewAnalysis compiles the hierarchy rule table.
func NewAnalysis(env *Env) (*Analysis, error) {
	v, err := validate.NewAnalysisValidator(env.Rules)
	if err != nil {
		return nil, err
	}
	return &Analysis{env: env, validator: v}, nil
}

func (*Analysis) Name() string     { return "analysis" }
func (*Analysis) Artifact() string { return ArtifactAnalysis }

func (s *Analysis) Run(ctx context.Context, unit pipeline.WorkUnit, state *pipeline.State) ([]byte, error) {
	rules := s.env.Rules
	system, user, err := s.env.prompts("analysis", map[string]any{
		"Requirement":  string(state.Artifacts[ArtifactRequirement]),
		"DescLenMin":   rules.DescLenMin,
		"DescLenMax":   rules.DescLenMax,
		"Initiators":   strings.Join(rules.Initiators, ", "),
		"Receivers":    strings.Join(rules.Receivers, ", "),
		"GroupDivisor": rules.GroupWorkloadDivisor,
	})
	if err != nil {
		return nil, err
	}
	res, err := s.env.Loop.Run(ctx, unit.Owner+"/"+unit.Name+"/analysis",
		system, user, extract.JSONObject{}, s.validator)
	if err != nil {
		return nil, err
	}
	return []byte(res.Payload), nil
}

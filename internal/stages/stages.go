// Package stages holds the five pipeline stages: requirement extraction,
// requirement analysis, table measurement, necessity narrative and the final
// report.
package stages

import (
	"cosmicdocflow/internal/checkpoint"
	"cosmicdocflow/internal/config"
	"cosmicdocflow/internal/generation"
	"cosmicdocflow/internal/ports"
)

// Artifact names, one per stage. Their presence under the checkpoint root is
// the only resume signal.
const (
	ArtifactRequirement = "requirement.txt"
	ArtifactAnalysis    = "analysis.json"
	ArtifactTable       = "table.md"
	ArtifactNecessity   = "necessity.txt"
	ArtifactReport      = "report.txt"
)

// Env bundles the collaborators every stage needs.
type Env struct {
	Loop     *generation.Loop
	Renderer ports.TemplateRenderer
	Store    *checkpoint.Store
	Rules    config.RulesConfig
	Pipeline config.PipelineConfig
}

func (e *Env) prompts(stage string, data any) (system, user string, err error) {
	system, err = e.Renderer.Render(stage+".system", nil)
	if err != nil {
		return "", "", err
	}
	user, err = e.Renderer.Render(stage+".user", data)
	if err != nil {
		return "", "", err
	}
	return system, user, nil
}

package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cosmicdocflow/internal/models"
	"cosmicdocflow/internal/pipeline"
	"cosmicdocflow/internal/validate"
)

// Report re-checks the committed analysis and table and writes the final
// verdict file. It never calls the generation service: a unit finished under
// the return-last policy is recorded here as FAIL with its findings.
type Report struct {
	env       *Env
	validator *validate.AnalysisValidator
}

// NewReport compiles the rule tables used for the final verdict.
func NewReport(env *Env) (*Report, error) {
	v, err := validate.NewAnalysisValidator(env.Rules)
	if err != nil {
		return nil, err
	}
	return &Report{env: env, validator: v}, nil
}

func (*Report) Name() string     { return "report" }
func (*Report) Artifact() string { return ArtifactReport }

func (s *Report) Run(_ context.Context, unit pipeline.WorkUnit, state *pipeline.State) ([]byte, error) {
	analysis := string(state.Artifacts[ArtifactAnalysis])
	table := string(state.Artifacts[ArtifactTable])

	var out strings.Builder
	fmt.Fprintf(&out, "COSMIC measurement report\n")
	fmt.Fprintf(&out, "Unit: %s/%s\n", unit.Owner, unit.Name)
	fmt.Fprintf(&out, "Generated: %s\n\n", time.Now().Format(time.RFC3339))

	analysisOK := s.writeVerdict(&out, "Requirement analysis", s.validator.Validate(analysis))

	expectedRows := 0
	if doc, err := models.ParseAnalysis([]byte(analysis)); err == nil {
		expectedRows = doc.ProcessCount() * 3
	}
	tableOK := false
	if tv, err := validate.NewTableValidator(s.env.Rules, expectedRows); err != nil {
		fmt.Fprintf(&out, "Measurement table: SKIPPED (%v)\n\n", err)
	} else {
		tableOK = s.writeVerdict(&out, "Measurement table", tv.Validate(table))
	}

	verdict := "FAIL"
	if analysisOK && tableOK {
		verdict = "PASS"
	}
	fmt.Fprintf(&out, "Overall: %s\n", verdict)
	return []byte(out.String()), nil
}

func (s *Report) writeVerdict(out *strings.Builder, title string, err error) bool {
	if err == nil {
		fmt.Fprintf(out, "%s: PASS\n\n", title)
		return true
	}
	var failure *validate.Failure
	if errors.As(err, &failure) {
		fmt.Fprintf(out, "%s: FAIL (%d findings)\n%s\n\n", title, len(failure.Diagnostics), failure.Report())
	} else {
		fmt.Fprintf(out, "%s: FAIL (%v)\n\n", title, err)
	}
	return false
}

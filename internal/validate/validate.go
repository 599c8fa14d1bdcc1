package validate

import (
	"fmt"
	"strings"
)

// Diagnostic is one actionable finding: where the problem is, which rule it
// broke, and what to change.
type Diagnostic struct {
	Path    string
	Rule    string
	Message string
}

func (d Diagnostic) String() string {
	if d.Path == "" {
		return fmt.Sprintf("[%s] %s", d.Rule, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Rule, d.Path, d.Message)
}

// Failure carries the complete set of diagnostics from one validation pass.
// A validator reports everything it found in a single Failure so the caller
// can build one corrective prompt.
type Failure struct {
	Diagnostics []Diagnostic
}

func (f *Failure) Error() string {
	return fmt.Sprintf("validation failed with %d finding(s)", len(f.Diagnostics))
}

// Report renders every diagnostic, one per line.
func (f *Failure) Report() string {
	lines := make([]string, len(f.Diagnostics))
	for i, d := range f.Diagnostics {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

// Validator checks an extracted payload. It returns nil when the payload
// passes, or a *Failure listing every finding.
type Validator interface {
	Validate(payload string) error
}

// Accept is the validator for free-text stages where any non-empty reply
// passes.
type Accept struct{}

func (Accept) Validate(string) error { return nil }

func fail(diags []Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	return &Failure{Diagnostics: diags}
}

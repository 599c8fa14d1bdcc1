// Package prompt renders the stage prompts. Every template ships with a
// built-in default and can be overridden by a file of the same name in the
// configured prompt directory.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Renderer implements ports.TemplateRenderer over text/template.
type Renderer struct {
	dir       string
	templates map[string]*template.Template
}

// New parses the built-in templates and any overrides found in dir. Override
// files are named "<template>.tmpl".
func New(dir string) (*Renderer, error) {
	r := &Renderer{dir: dir, templates: make(map[string]*template.Template, len(defaults))}
	for name, text := range defaults {
		if dir != "" {
			path := filepath.Join(dir, name+".tmpl")
			if raw, err := os.ReadFile(path); err == nil {
				text = string(raw)
			}
		}
		t, err := template.New(name).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render executes the named template.
func (r *Renderer) Render(name string, data any) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	var out strings.Builder
	if err := t.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render prompt template %s: %w", name, err)
	}
	return out.String(), nil
}

var defaults = map[string]string{
	"extract.system": "You are a requirements analyst. You extract the functional requirement statement from raw project documents, preserving every stated capability and constraint.",

	"extract.user": `Extract the customer requirement from the document below. Keep every functional capability, drop boilerplate, headers and formatting noise. Reply with the cleaned requirement text only.

Document:
{{.Source}}`,

	"analysis.system": "You are a COSMIC measurement analyst. You decompose customer requirements into functional user requirements, triggering events and atomic functional processes, and you reply with a single JSON object.",

	"analysis.user": `Decompose the requirement below into a JSON object of this shape:

{
  "requirementAnalysis": {
    "customerRequirement": "...",
    "customerRequirementWorkload": <integer, person-day workload>,
    "functionalUserRequirements": [
      {
        "description": "...",
        "triggeringEvents": [
          {
            "eventDescription": "...",
            "initiator": "...",
            "receiver": "...",
            "functionalProcesses": [ { "processName": "..." } ]
          }
        ]
      }
    ]
  }
}

Rules:
- Each description and process name is {{.DescLenMin}} to {{.DescLenMax}} characters and unique.
- Initiators must be one of: {{.Initiators}}. Receivers must be one of: {{.Receivers}}. Initiator and receiver differ.
- Process names describe business work, never technical plumbing or logging.
- Split roughly one requirement group per {{.GroupDivisor}} units of workload.

Requirement:
{{.Requirement}}`,

	"table.system": "You are a COSMIC measurement analyst. You expand functional processes into a COSMIC data movement table in GitHub markdown, and you reply with the table only.",

	"table.user": `Expand every functional process in the analysis below into COSMIC data movements. Produce one markdown table with exactly these columns:

| {{.Columns}} |

Rules:
- Each row is one data movement with type E, R, W or X.
- Each functional process starts with an E row and ends with a W or X row, its rows adjacent.
- Query-style processes are exactly three rows: E, R, X.
- Data attributes are {{.AttrCountMin}} to {{.AttrCountMax}} business terms separated by commas.
- Reuse is always "New", CFP and Sum CFP are always "1".

Analysis:
{{.Analysis}}`,

	"necessity.system": "You are a telecom solution architect. You justify why a described capability must be built, in plain prose.",

	"necessity.user": `Write a short construction-necessity narrative for the requirement below, referencing what the measured functionality delivers. Reply with the narrative text only.

Requirement:
{{.Requirement}}

Measured functionality:
{{.Table}}`,
}

// Package ports declares the boundaries the pipeline talks through, so the
// concrete transports can be swapped in tests and wiring.
package ports

import "context"

// DocumentReader loads the raw source text of a work unit.
type DocumentReader interface {
	Read(ctx context.Context, path string) (string, error)
}

// TemplateRenderer renders a named prompt template with the given data.
type TemplateRenderer interface {
	Render(name string, data any) (string, error)
}

// ArtifactWriter mirrors a final deliverable to an external destination.
type ArtifactWriter interface {
	Write(ctx context.Context, owner, unit, name string, data []byte) error
}

// StatusTracker mirrors work-unit phase transitions for operators. It is
// reporting only and is never consulted when deciding what to resume.
type StatusTracker interface {
	Update(ctx context.Context, owner, unit, phase, detail string)
}

// NoopTracker discards all updates.
type NoopTracker struct{}

func (NoopTracker) Update(context.Context, string, string, string, string) {}

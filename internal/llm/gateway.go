package llm

import (
	"context"
	"fmt"

	"cosmicdocflow/internal/config"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of a conversation transcript.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Gateway submits a full conversation to a generation service and returns the
// assistant reply as raw text. Implementations must classify service-side
// failures as TransportError so the caller can retry them.
type Gateway interface {
	Generate(ctx context.Context, turns []Turn) (string, error)
}

// New builds the Gateway for the named provider. The "vertex" provider gets
// the Gemini implementation; everything else is treated as OpenAI-compatible.
func New(ctx context.Context, name string, cfg config.ProviderConfig) (Gateway, error) {
	if name == "vertex" {
		return NewVertexGateway(ctx, cfg)
	}
	return NewOpenAIGateway(name, cfg)
}

// TransportError marks a failure of the generation service or the network
// path to it. These are retried on a separate budget from semantic failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func transportErr(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

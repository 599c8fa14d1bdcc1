package llm

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"

	"cosmicdocflow/internal/config"
)

// VertexGateway is the Gemini implementation of Gateway.
type VertexGateway struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int
}

var _ Gateway = (*VertexGateway)(nil)

// NewVertexGateway creates the base client. Credentials come from the
// ambient application-default chain.
func NewVertexGateway(ctx context.Context, cfg config.ProviderConfig) (*VertexGateway, error) {
	if cfg.Project == "" || cfg.Region == "" {
		return nil, fmt.Errorf("NewVertexGateway: project and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, cfg.Project, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexGateway{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Generate replays the conversation through a chat session and streams the
// reply. The leading system turn becomes the model's system instruction.
func (g *VertexGateway) Generate(ctx context.Context, turns []Turn) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if g.maxTokens > 0 {
		model.GenerationConfig.MaxOutputTokens = genai.Ptr(int32(g.maxTokens))
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	if len(turns) > 0 && turns[0].Role == RoleSystem {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(turns[0].Content)},
		}
		turns = turns[1:]
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("vertex: conversation has no user turn")
	}

	chat := model.StartChat()
	for _, t := range turns[:len(turns)-1] {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		chat.History = append(chat.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}

	iter := chat.SendMessageStream(ctx, genai.Text(turns[len(turns)-1].Content))
	var out strings.Builder
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", transportErr("vertex stream", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					out.WriteString(string(text))
				}
			}
		}
	}
	if out.Len() == 0 {
		return "", transportErr("vertex stream", fmt.Errorf("empty reply"))
	}
	return out.String(), nil
}

// Close releases the underlying client.
func (g *VertexGateway) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

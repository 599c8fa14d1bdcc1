package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cosmicdocflow/internal/config"
)

// OpenAIGateway talks to any OpenAI-compatible chat-completions endpoint
// over server-sent events.
type OpenAIGateway struct {
	name        string
	baseURL     string
	model       string
	apiKey      string
	temperature float32
	maxTokens   int
	httpClient  *http.Client
}

var _ Gateway = (*OpenAIGateway)(nil)

// NewOpenAIGateway builds a gateway from the provider entry. The credential
// comes from the environment variable the entry names.
func NewOpenAIGateway(name string, cfg config.ProviderConfig) (*OpenAIGateway, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("provider %s: environment variable %s is not set", name, cfg.APIKeyEnv)
	}
	return &OpenAIGateway{
		name:        name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		apiKey:      key,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout()},
	}, nil
}

type chatRequest struct {
	Model       string  `json:"model"`
	Messages    []Turn  `json:"messages"`
	Stream      bool    `json:"stream"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Generate posts the conversation and drains the event stream into one reply.
func (g *OpenAIGateway) Generate(ctx context.Context, turns []Turn) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    turns,
		Stream:      true,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := g.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", transportErr(g.name+" chat completion", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", transportErr(g.name+" chat completion",
			fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(payload))))
	}

	text, err := drainEventStream(resp.Body)
	if err != nil {
		return "", transportErr(g.name+" event stream", err)
	}
	if text == "" {
		return "", transportErr(g.name+" chat completion", fmt.Errorf("empty reply"))
	}
	return text, nil
}

func drainEventStream(r io.Reader) (string, error) {
	var out strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			break
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Choices) > 0 {
			out.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	return out.String(), nil
}

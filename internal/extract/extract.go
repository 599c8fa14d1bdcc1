package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// ExtractionError reports that the target structure could not be located in
// the raw model reply. Callers treat it like a semantic validation failure
// and re-prompt.
type ExtractionError struct {
	Kind   string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.Kind, e.Reason)
}

// Extractor locates the candidate payload inside a raw model reply.
type Extractor interface {
	Extract(raw string) (string, error)
}

// JSONObject extracts the outermost JSON object from a reply, tolerating
// prose or fences around it.
type JSONObject struct{}

func (JSONObject) Extract(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", &ExtractionError{Kind: "json", Reason: "no JSON object found in reply"}
	}
	return raw[start : end+1], nil
}

var tableSeparator = regexp.MustCompile(`^\|[-:| ]+\|$`)

// MarkdownTable extracts the first pipe table from a reply: a header row, a
// separator row, then every consecutive pipe row.
type MarkdownTable struct{}

func (MarkdownTable) Extract(raw string) (string, error) {
	lines := strings.Split(raw, "\n")
	for i := 0; i+1 < len(lines); i++ {
		header := strings.TrimSpace(lines[i])
		sep := strings.TrimSpace(lines[i+1])
		if !strings.HasPrefix(header, "|") || !tableSeparator.MatchString(sep) {
			continue
		}
		rows := []string{header, sep}
		for j := i + 2; j < len(lines); j++ {
			row := strings.TrimSpace(lines[j])
			if !strings.HasPrefix(row, "|") {
				break
			}
			rows = append(rows, row)
		}
		return strings.Join(rows, "\n"), nil
	}
	return "", &ExtractionError{Kind: "table", Reason: "no markdown table found in reply"}
}

// FencedText extracts plain text, stripping a surrounding code fence when the
// model added one. An effectively empty reply is an error.
type FencedText struct{}

func (FencedText) Extract(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = ""
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return "", &ExtractionError{Kind: "text", Reason: "reply is empty"}
	}
	return text, nil
}

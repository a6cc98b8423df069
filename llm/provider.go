// Package llm provides the language-model collaborators of the retrieval
// engine: a query optimizer, a semantic reranker and a topic summarizer, on
// top of interchangeable chat providers.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Prompt is one single-turn completion request.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Provider completes prompts.
type Provider interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Model() string
}

var errNoJSON = errors.New("llm: no JSON found in completion")

// extractJSON decodes the outermost JSON value delimited by open and close
// from content, tolerating prose or code fences around it.
func extractJSON(content string, open, close byte, v any) error {
	start := strings.IndexByte(content, open)
	end := strings.LastIndexByte(content, close)
	if start == -1 || end <= start {
		return errNoJSON
	}
	return json.Unmarshal([]byte(content[start:end+1]), v)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}

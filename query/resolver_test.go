package query

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/wikifeed/feedengine/pkg/models"
)

// MockOptimizer is a mock implementation of Optimizer for testing.
type MockOptimizer struct {
	mu     sync.Mutex
	result models.OptimizedQuery
	err    error
	calls  int
}

func (m *MockOptimizer) Optimize(ctx context.Context, text, topicContext string) (models.OptimizedQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result, m.err
}

func TestResolver_OptimizerSuccess(t *testing.T) {
	m := &MockOptimizer{result: models.OptimizedQuery{
		Expression: `("solar power" OR photovoltaics)`,
		Keywords:   []string{"solar power", "photovoltaics", "Renewable Energy"},
		Topics:     []string{"energy"},
	}}
	r := NewResolver(m)

	out, err := r.Resolve(context.Background(), "how do solar panels work", "Renewable energy")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.IsFallback() {
		t.Fatalf("Expected Ok, got fallback: %v", out.Reason)
	}
	if out.Value.Source != models.SourceOptimizer {
		t.Errorf("Expected optimizer source, got %s", out.Value.Source)
	}

	h := out.Value.Hints
	if h.ResolvedQuery != `("solar power" OR photovoltaics)` {
		t.Errorf("Unexpected expression %q", h.ResolvedQuery)
	}
	expected := []string{"Renewable energy", "solar power", "photovoltaics"}
	if !reflect.DeepEqual(h.Keywords, expected) {
		t.Errorf("Expected topic context first and deduped, got %v", h.Keywords)
	}
}

func TestResolver_OptimizerFailureFallsBack(t *testing.T) {
	m := &MockOptimizer{err: errors.New("timeout")}
	r := NewResolver(m)

	out, err := r.Resolve(context.Background(), "The James Webb telescope captured distant galaxies", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !out.IsFallback() {
		t.Fatal("Expected fallback")
	}
	if !errors.Is(out.Reason, models.ErrOptimizerUnavailable) {
		t.Errorf("Expected ErrOptimizerUnavailable reason, got %v", out.Reason)
	}
	if len(out.Value.Hints.Keywords) == 0 {
		t.Error("Expected non-empty keywords from heuristic")
	}
	if out.Value.Source != models.SourceHeuristic {
		t.Errorf("Expected heuristic source, got %s", out.Value.Source)
	}
}

func TestResolver_EmptyExpressionFallsBack(t *testing.T) {
	r := NewResolver(&MockOptimizer{result: models.OptimizedQuery{Expression: "  "}})
	out, err := r.Resolve(context.Background(), "quantum computing", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !out.IsFallback() {
		t.Error("Expected fallback on empty optimizer expression")
	}
}

func TestResolver_NoOptimizer(t *testing.T) {
	var r Resolver
	out, err := r.Resolve(context.Background(), "quantum computing", "Physics")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !out.IsFallback() {
		t.Error("Expected fallback without optimizer")
	}
	if out.Value.Hints.Keywords[0] != "Physics" {
		t.Errorf("Expected topic context first, got %v", out.Value.Hints.Keywords)
	}
}

func TestResolver_EmptyText(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(context.Background(), "   ", "")
	if !errors.Is(err, models.ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery, got %v", err)
	}
}

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		expression  string
		keywordsLen int
	}{
		{
			name:        "frequency ranked",
			text:        "solar panels convert solar energy; solar farms store energy",
			expression:  "(solar OR energy OR convert OR panels OR farms OR store)",
			keywordsLen: 6,
		},
		{
			name:        "prebuilt OR passthrough",
			text:        `("dark matter" OR wimps)`,
			expression:  `("dark matter" OR wimps)`,
			keywordsLen: 2,
		},
		{
			name:        "only stop words uses whitespace parts",
			text:        "what about them",
			expression:  "(what OR about OR them)",
			keywordsLen: 3,
		},
		{
			name:        "short text becomes single keyword",
			text:        "AI",
			expression:  "AI",
			keywordsLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Heuristic(tt.text)
			if h.ResolvedQuery != tt.expression {
				t.Errorf("Expected %q, got %q", tt.expression, h.ResolvedQuery)
			}
			if len(h.Keywords) != tt.keywordsLen {
				t.Errorf("Expected %d keywords, got %v", tt.keywordsLen, h.Keywords)
			}
		})
	}
}

func TestExplicit(t *testing.T) {
	res, err := Explicit([]string{"climate change", "co2", "CO2"}, []string{"environment"})
	if err != nil {
		t.Fatalf("Explicit failed: %v", err)
	}
	if res.Hints.ResolvedQuery != `("climate change" OR co2)` {
		t.Errorf("Unexpected expression %q", res.Hints.ResolvedQuery)
	}
	if res.Source != models.SourceExplicit {
		t.Errorf("Expected explicit source, got %s", res.Source)
	}

	res, err = Explicit(nil, []string{"astronomy", "space"})
	if err != nil {
		t.Fatalf("Explicit failed: %v", err)
	}
	if res.Hints.ResolvedQuery != "(astronomy OR space)" {
		t.Errorf("Expected topics to form the expression, got %q", res.Hints.ResolvedQuery)
	}

	if _, err := Explicit([]string{" "}, nil); !errors.Is(err, models.ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery, got %v", err)
	}
}

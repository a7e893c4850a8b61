package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fundori/fundori/internal/model"
)

func TestMockSearcher_ReturnsThreeResultsContainingQuery(t *testing.T) {
	s := NewMockSearcher(0)

	results, err := s.Search(context.Background(), "photosynthesis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	wantRelevance := []int{95, 88, 82}
	wantCategory := []model.ResultCategory{model.CategoryConcept, model.CategoryPractice, model.CategoryTip}
	for i, r := range results {
		if !strings.Contains(r.Title, "photosynthesis") && !strings.Contains(r.Content, "photosynthesis") {
			t.Errorf("result %d does not contain the query: %+v", i, r)
		}
		if r.Relevance != wantRelevance[i] {
			t.Errorf("result %d relevance = %d, want %d", i, r.Relevance, wantRelevance[i])
		}
		if r.Category != wantCategory[i] {
			t.Errorf("result %d category = %q, want %q", i, r.Category, wantCategory[i])
		}
	}

	if results[0].Title != "Understanding photosynthesis" {
		t.Errorf("first title = %q, want %q", results[0].Title, "Understanding photosynthesis")
	}
}

func TestMockSearcher_WaitsForLatency(t *testing.T) {
	s := NewMockSearcher(30 * time.Millisecond)

	start := time.Now()
	if _, err := s.Search(context.Background(), "enzymes"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("returned after %v, want >= 30ms", elapsed)
	}
}

func TestMockSearcher_HonoursCancellation(t *testing.T) {
	s := NewMockSearcher(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Search(ctx, "genetics")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

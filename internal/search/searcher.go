// Package search は模擬AI検索ウィジェットを提供する。
// 検索処理はSearcherインターフェースの背後にあり、模擬実装と将来の実装を差し替えられる。
package search

import (
	"context"
	"time"

	"github.com/fundori/fundori/internal/model"
)

// DefaultLatency は模擬検索の応答遅延。
const DefaultLatency = 1500 * time.Millisecond

// Searcher はクエリに対する検索結果を返すインターフェース。
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// MockSearcher は一定時間待ってからクエリを埋め込んだ定型の3件を返す。
type MockSearcher struct {
	latency time.Duration
}

// NewMockSearcher はMockSearcherを生成する。latencyが負の場合は0とする。
func NewMockSearcher(latency time.Duration) *MockSearcher {
	if latency < 0 {
		latency = 0
	}
	return &MockSearcher{latency: latency}
}

// Search は遅延の後に定型の結果を返す。待機中にctxがキャンセルされた場合はctx.Err()を返す。
func (m *MockSearcher) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	return CannedResults(query), nil
}

// CannedResults はクエリを埋め込んだ定型の検索結果を返す。
func CannedResults(query string) []model.SearchResult {
	return []model.SearchResult{
		{
			ID:        "1",
			Title:     "Understanding " + query,
			Content:   "Here's a comprehensive explanation of " + query + " tailored for Grade 12 students. This concept is fundamental to your matric success.",
			Subject:   "General",
			Relevance: 95,
			Category:  model.CategoryConcept,
		},
		{
			ID:        "2",
			Title:     "Practice Questions",
			Content:   "Try these practice questions related to " + query + " to test your understanding and prepare for exams.",
			Subject:   "Practice",
			Relevance: 88,
			Category:  model.CategoryPractice,
		},
		{
			ID:        "3",
			Title:     "Study Tips",
			Content:   "Pro tips for mastering " + query + " and excelling in your matric exams. These strategies have helped thousands of students.",
			Subject:   "Study Tips",
			Relevance: 82,
			Category:  model.CategoryTip,
		},
	}
}

// compile-time interface check
var _ Searcher = (*MockSearcher)(nil)

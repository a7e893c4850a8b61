package model

// ResultCategory は検索結果の分類。
type ResultCategory string

const (
	CategoryConcept  ResultCategory = "concept"
	CategoryExample  ResultCategory = "example"
	CategoryPractice ResultCategory = "practice"
	CategoryTip      ResultCategory = "tip"
)

// SearchResult は検索結果1件を表す。
// Relevanceは0〜100の一致度。
type SearchResult struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Subject   string         `json:"subject"`
	Relevance int            `json:"relevance"`
	Category  ResultCategory `json:"category"`
}

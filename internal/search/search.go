// Package search provides insight search with Meilisearch as the primary
// backend and PostgreSQL full-text search as the fallback.
package search

// Query is a search request against the insight corpus.
type Query struct {
	Text     string
	Category string
	Limit    int
	Offset   int
}

// Result is one insight hit.
type Result struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Snippet  string `json:"snippet"`
}

// Response is the payload returned to clients.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// InsightRecord is the indexable projection of an insight.
type InsightRecord struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
}

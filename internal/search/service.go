package search

import "log"

// Searcher is either backend.
type Searcher interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts Searcher
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, pgfts Searcher) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS. A
// failed fallback yields an empty result set, never an error: the listing
// page still renders.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexInsight indexes one insight (fire-and-forget to Meilisearch).
func (s *Service) IndexInsight(record InsightRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexInsight(record); err != nil {
			log.Printf("search: index insight %s: %v", record.ID, err)
		}
	}()
}

// IndexInsights bulk-indexes insights, used on bootstrap.
func (s *Service) IndexInsights(records []InsightRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexInsights(records); err != nil {
			log.Printf("search: bulk index %d insights: %v", len(records), err)
		}
	}()
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}

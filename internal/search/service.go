package search

import (
	"log"

	"tapiz/api/internal/board"
)

// Service is the facade that tries Meilisearch first and falls back to the
// in-memory index. The memory index is always kept current so the fallback
// never serves stale boards.
type Service struct {
	meili  *Meili
	memory *Memory
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, memory *Memory) *Service {
	return &Service{meili: meili, memory: memory}
}

// IndexBoard reprojects a board's nodes into both indexes. Meilisearch
// indexing is fire-and-forget; the in-memory swap is synchronous and cheap.
func (s *Service) IndexBoard(boardID string, nodes []board.Node) {
	records := Records(boardID, nodes)
	_ = s.memory.IndexBoard(boardID, records)

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexBoard(boardID, records); err != nil {
			log.Printf("search: index board %s: %v", boardID, err)
		}
	}()
}

// Search tries Meilisearch if healthy, otherwise the in-memory index.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to memory index: %v", err)
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		log.Printf("search: memory index error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}

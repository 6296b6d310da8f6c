package search

import (
	"sort"
	"strings"
	"sync"
)

// Memory is the fallback index used while Meilisearch is unreachable: a
// case-insensitive substring scan over each board's records. Boards are small
// enough that a linear scan is fine.
type Memory struct {
	mu     sync.RWMutex
	boards map[string]map[string]Record // boardID -> nodeID -> record
}

func NewMemory() *Memory {
	return &Memory{boards: make(map[string]map[string]Record)}
}

// IndexBoard replaces a board's records.
func (m *Memory) IndexBoard(boardID string, records []Record) error {
	byNode := make(map[string]Record, len(records))
	for _, record := range records {
		byNode[record.NodeID] = record
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(byNode) == 0 {
		delete(m.boards, boardID)
		return nil
	}
	m.boards[boardID] = byNode
	return nil
}

// Search scans one board's records for the query text.
func (m *Memory) Search(q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Record
	for _, record := range m.boards[q.BoardID] {
		if needle == "" || strings.Contains(strings.ToLower(record.Text), needle) {
			matches = append(matches, record)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].NodeID < matches[j].NodeID })

	total := len(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]Result, 0, len(matches))
	for _, record := range matches {
		results = append(results, Result{
			NodeID:  record.NodeID,
			Type:    record.Type,
			Snippet: snippet(record.Text, needle),
		})
	}
	return results, total, nil
}

const snippetRadius = 40

func snippet(text, needle string) string {
	if needle == "" {
		return truncate(text, 2*snippetRadius)
	}
	idx := strings.Index(strings.ToLower(text), needle)
	if idx < 0 {
		return truncate(text, 2*snippetRadius)
	}
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(needle) + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}

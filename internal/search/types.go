package search

// Record is the searchable projection of one board node.
type Record struct {
	ID      string `json:"id"` // boardID:nodeID, unique across boards
	BoardID string `json:"boardId"`
	NodeID  string `json:"nodeId"`
	Type    string `json:"type"`
	Text    string `json:"text"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	NodeID  string `json:"nodeId"`
	Type    string `json:"type"`
	Snippet string `json:"snippet"`
}

// Query describes a search request, always scoped to one board.
type Query struct {
	BoardID string
	Text    string
	Limit   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

package search

import (
	"strings"

	"tapiz/api/internal/board"
)

// Records projects a board's node list into its searchable records. Only
// nodes with human text are indexed; comment text is folded into the parent
// note's record so a hit navigates to something visible on the board.
func Records(boardID string, nodes []board.Node) []Record {
	records := make([]Record, 0, len(nodes))
	for i := range nodes {
		node := &nodes[i]
		text := nodeText(node)
		if strings.TrimSpace(text) == "" {
			continue
		}
		records = append(records, Record{
			ID:      boardID + ":" + node.ID,
			BoardID: boardID,
			NodeID:  node.ID,
			Type:    node.Type,
			Text:    text,
		})
	}
	return records
}

func nodeText(node *board.Node) string {
	var parts []string
	switch node.Type {
	case "note", "text", "panel":
		if text, _ := node.Content["text"].(string); text != "" {
			parts = append(parts, text)
		}
	case "poll":
		if title, _ := node.Content["title"].(string); title != "" {
			parts = append(parts, title)
		}
		if options, _ := node.Content["options"].([]any); options != nil {
			for _, option := range options {
				if s, _ := option.(string); s != "" {
					parts = append(parts, s)
				}
			}
		}
	case "group":
		if title, _ := node.Content["title"].(string); title != "" {
			parts = append(parts, title)
		}
	default:
		return ""
	}

	for i := range node.Children {
		if node.Children[i].Type != "comment" {
			continue
		}
		if text, _ := node.Children[i].Content["text"].(string); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

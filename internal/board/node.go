// Package board implements the node tree a whiteboard is made of and the
// action protocol that mutates it: pure application of add/patch/remove
// actions, inverse-action computation, and a bounded undo/redo history box.
package board

// Node is one unit of board content. Content is the type-specific payload;
// Children is used for the two-level cases (comments under a note, answers
// under a poll). A child id is unique among its siblings, not globally.
type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Content  map[string]any `json:"content,omitempty"`
	Children []Node         `json:"children,omitempty"`
}

const (
	OpAdd    = "add"
	OpPatch  = "patch"
	OpRemove = "remove"
)

// Action targets a single node. For patch, Data.Content carries only the keys
// being changed. Parent scopes the action to a parent node's children.
// Position is an insert index for add and a reorder target for patch; an
// absent or out-of-range position means append / no reorder.
type Action struct {
	Op       string `json:"op"`
	Data     Node   `json:"data"`
	Parent   string `json:"parent,omitempty"`
	Position *int   `json:"position,omitempty"`
}

// Batch is an ordered group of actions applied together. History marks the
// batch as undoable on the submitting side.
type Batch struct {
	Actions []Action `json:"actions"`
	History bool     `json:"history"`
}

// Types whose list position is fixed regardless of patch positions.
var nonReorderable = map[string]struct{}{
	"settings": {},
	"user":     {},
}

func indexOf(nodes []Node, id string) int {
	for i := range nodes {
		if nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the node with the given id, or nil.
func Find(nodes []Node, id string) *Node {
	if i := indexOf(nodes, id); i >= 0 {
		return &nodes[i]
	}
	return nil
}

// Clone returns a deep copy of the node. Content values are shared; the
// protocol treats them as immutable once inside a node list.
func Clone(n Node) Node {
	out := n
	if n.Content != nil {
		out.Content = make(map[string]any, len(n.Content))
		for k, v := range n.Content {
			out.Content[k] = v
		}
	}
	if n.Children != nil {
		out.Children = make([]Node, len(n.Children))
		for i, child := range n.Children {
			out.Children[i] = Clone(child)
		}
	}
	return out
}

// CloneAll deep-copies a node list.
func CloneAll(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = Clone(n)
	}
	return out
}

package board

// Apply folds one action into a node list and returns the resulting list.
// The input list is never mutated. Apply never fails: an action that
// references a missing node or parent is a no-op, so replicas that receive a
// stale action simply skip it instead of diverging.
func Apply(nodes []Node, action Action) []Node {
	if action.Parent != "" {
		return applyToParent(nodes, action)
	}

	switch action.Op {
	case OpAdd:
		return applyAdd(nodes, action)
	case OpPatch:
		return applyPatch(nodes, action)
	case OpRemove:
		return applyRemove(nodes, action)
	}
	return nodes
}

// ApplyAll folds a batch in strict array order.
func ApplyAll(nodes []Node, actions []Action) []Node {
	for _, action := range actions {
		nodes = Apply(nodes, action)
	}
	return nodes
}

func applyToParent(nodes []Node, action Action) []Node {
	idx := indexOf(nodes, action.Parent)
	if idx < 0 {
		// Authorization already rejected actions against unknown parents;
		// anything arriving here lost a race with a remove.
		return nodes
	}
	scoped := action
	scoped.Parent = ""

	parent := nodes[idx]
	parent.Children = Apply(parent.Children, scoped)

	out := make([]Node, len(nodes))
	copy(out, nodes)
	out[idx] = parent
	return out
}

func applyAdd(nodes []Node, action Action) []Node {
	out := make([]Node, 0, len(nodes)+1)
	if p := action.Position; p != nil && *p >= 0 && *p < len(nodes) {
		out = append(out, nodes[:*p]...)
		out = append(out, action.Data)
		out = append(out, nodes[*p:]...)
		return out
	}
	out = append(out, nodes...)
	return append(out, action.Data)
}

func applyRemove(nodes []Node, action Action) []Node {
	idx := indexOf(nodes, action.Data.ID)
	if idx < 0 {
		return nodes
	}
	out := make([]Node, 0, len(nodes)-1)
	out = append(out, nodes[:idx]...)
	return append(out, nodes[idx+1:]...)
}

func applyPatch(nodes []Node, action Action) []Node {
	idx := indexOf(nodes, action.Data.ID)
	if idx < 0 {
		return nodes
	}

	node := nodes[idx]
	merged := make(map[string]any, len(node.Content)+len(action.Data.Content))
	for k, v := range node.Content {
		merged[k] = v
	}
	for k, v := range action.Data.Content {
		// A null value deletes the key, so the inverse of a patch that
		// introduced a key removes it again instead of leaving a null.
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	node.Content = merged

	out := make([]Node, len(nodes))
	copy(out, nodes)
	out[idx] = node

	if _, fixed := nonReorderable[node.Type]; fixed {
		return out
	}
	if p := action.Position; p != nil && *p >= 0 && *p < len(out) && *p != idx {
		out = moveNode(out, idx, *p)
	}
	return out
}

// moveNode relocates out[from] to index to, preserving the relative order of
// every other node. out is already a fresh slice owned by the caller.
func moveNode(out []Node, from, to int) []Node {
	node := out[from]
	out = append(out[:from], out[from+1:]...)
	rest := append(out[:to:to], node)
	return append(rest, out[to:]...)
}

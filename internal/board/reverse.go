package board

// Reverse computes the inverse of an action against the state the action has
// not yet been applied to. Applying the result right after the action
// restores the prior state.
//
// When the target node no longer exists the inverse is uniformly a remove of
// that id, whatever the original op was. For a patch whose target was removed
// by a concurrent actor this can produce an inverse that removes nothing;
// that race is accepted rather than special-cased.
//
// The second return value is false only when a parent-scoped action's parent
// is gone, in which case no inverse is meaningful.
func Reverse(nodes []Node, action Action) (Action, bool) {
	scope := nodes
	if action.Parent != "" {
		parent := Find(nodes, action.Parent)
		if parent == nil {
			return Action{}, false
		}
		scope = parent.Children
	}

	idx := indexOf(scope, action.Data.ID)
	if idx < 0 {
		return removeOf(action), true
	}
	current := scope[idx]

	switch action.Op {
	case OpPatch:
		prior := make(map[string]any, len(action.Data.Content))
		for k := range action.Data.Content {
			if v, ok := current.Content[k]; ok {
				prior[k] = v
			} else {
				// Null in the inverse deletes the key the patch introduced.
				prior[k] = nil
			}
		}
		pos := idx
		return Action{
			Op:       OpPatch,
			Data:     Node{ID: current.ID, Type: current.Type, Content: prior},
			Parent:   action.Parent,
			Position: &pos,
		}, true
	case OpRemove:
		pos := idx
		return Action{
			Op:       OpAdd,
			Data:     Clone(current),
			Parent:   action.Parent,
			Position: &pos,
		}, true
	default:
		// The node exists, so undoing an add means removing it.
		return removeOf(action), true
	}
}

// ReverseAll computes inverses for a whole batch against the same pre-batch
// state. Actions with no meaningful inverse are skipped.
func ReverseAll(nodes []Node, actions []Action) []Action {
	out := make([]Action, 0, len(actions))
	for _, action := range actions {
		if inv, ok := Reverse(nodes, action); ok {
			out = append(out, inv)
		}
	}
	return out
}

func removeOf(action Action) Action {
	return Action{
		Op:     OpRemove,
		Data:   Node{ID: action.Data.ID, Type: action.Data.Type},
		Parent: action.Parent,
	}
}

// Package validate is the server-side gate for inbound action batches. Every
// action is dispatched by node type to a validator that checks shape and
// authorization and returns a narrowed copy; a single failure rejects the
// whole batch so replicas never see a partially applied submission.
package validate

import "tapiz/api/internal/board"

// Identity is what the caller knows about the submitting user: the user id,
// the board-membership private secret used to seal anonymous poll votes, and
// whether the user administers the board.
type Identity struct {
	UserID    string
	PrivateID string
	IsAdmin   bool
}

// Context carries per-action validation state: the identity, the full current
// node list, and the resolved parent and target nodes where they exist.
type Context struct {
	Identity
	Nodes  []board.Node
	Parent *board.Node
	Node   *board.Node
}

// Validator checks one action and returns the action to forward, with
// content narrowed to validated fields only.
type Validator func(ctx *Context, action board.Action) (board.Action, bool)

// Registry maps node types to validators. It is built once at startup and
// passed by reference; it never changes afterwards.
type Registry struct {
	validators map[string]Validator
}

func NewRegistry() *Registry {
	return &Registry{validators: map[string]Validator{
		"note":   schemaValidator(noteSchema),
		"panel":  schemaValidator(panelSchema),
		"group":  schemaValidator(groupSchema),
		"image":  schemaValidator(imageSchema),
		"vector": schemaValidator(vectorSchema),
		"text":   schemaValidator(textSchema),
		"arrow":  schemaValidator(arrowSchema),

		"settings":          settingsValidator(settingsSchema),
		"timer":             timerValidator(timerSchema),
		"poll":              pollValidator(pollSchema),
		"poll.answer":       pollAnswerValidator(pollAnswerSchema),
		"comment":           commentValidator(commentSchema),
		"estimation":        schemaValidator(estimationSchema),
		"estimation.result": estimationResultValidator(estimationResultSchema),

		"user": userValidator(userSchema),
	}}
}

// ValidateBatch authorizes a batch against the current node list. It is
// all-or-nothing: if any action fails, the whole batch is rejected and nil is
// returned. Accepted actions come back with validator-narrowed content and
// must be forwarded in place of the client's originals.
func (r *Registry) ValidateBatch(actions []board.Action, nodes []board.Node, id Identity) ([]board.Action, bool) {
	if len(actions) == 0 {
		return nil, false
	}
	out := make([]board.Action, 0, len(actions))
	for _, action := range actions {
		validated, ok := r.validate(action, nodes, id)
		if !ok {
			return nil, false
		}
		out = append(out, validated)
	}
	return out, true
}

func (r *Registry) validate(action board.Action, nodes []board.Node, id Identity) (board.Action, bool) {
	switch action.Op {
	case board.OpAdd, board.OpPatch, board.OpRemove:
	default:
		return board.Action{}, false
	}
	if action.Data.ID == "" || action.Data.Type == "" {
		return board.Action{}, false
	}

	validator, known := r.validators[action.Data.Type]
	if !known {
		return board.Action{}, false
	}

	ctx := &Context{Identity: id, Nodes: nodes}
	scope := nodes
	if action.Parent != "" {
		parent := board.Find(nodes, action.Parent)
		if parent == nil {
			return board.Action{}, false
		}
		ctx.Parent = parent
		scope = parent.Children
	}
	ctx.Node = board.Find(scope, action.Data.ID)

	return validator(ctx, action)
}

package validate

import (
	"tapiz/api/internal/anonid"
	"tapiz/api/internal/board"
)

// Validators in this file enforce business rules on top of the content
// schemas: singletons, ownership, poll lifecycle, vote anonymity.

func hasNodeOfType(nodes []board.Node, nodeType string) bool {
	for i := range nodes {
		if nodes[i].Type == nodeType {
			return true
		}
	}
	return false
}

// settingsValidator: one settings node per board, admin-only in every op.
func settingsValidator(s schema) Validator {
	base := schemaValidator(s)
	return func(ctx *Context, action board.Action) (board.Action, bool) {
		if !ctx.IsAdmin {
			return board.Action{}, false
		}
		if action.Op == board.OpAdd && hasNodeOfType(ctx.Nodes, "settings") {
			return board.Action{}, false
		}
		return base(ctx, action)
	}
}

// timerValidator: a single timer with the fixed id "timer", controllable by
// any member.
func timerValidator(s schema) Validator {
	base := schemaValidator(s)
	return func(ctx *Context, action board.Action) (board.Action, bool) {
		if action.Data.ID != "timer" {
			return board.Action{}, false
		}
		if action.Op == board.OpAdd && hasNodeOfType(ctx.Nodes, "timer") {
			return board.Action{}, false
		}
		return base(ctx, action)
	}
}

func pollFinished(poll *board.Node) bool {
	if poll == nil {
		return false
	}
	finished, _ := poll.Content["finished"].(bool)
	return finished
}

func contentSet(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case string:
		return value != ""
	case []any:
		return len(value) > 0
	case map[string]any:
		return len(value) > 0
	}
	return true
}

// Keys a finished poll still accepts patches for.
var pollMovableKeys = map[string]struct{}{"position": {}, "layer": {}}

// Keys that cannot be re-set once they hold a value.
var pollFrozenKeys = []string{"title", "options", "mode"}

func pollValidator(s schema) Validator {
	base := schemaValidator(s)
	return func(ctx *Context, action board.Action) (board.Action, bool) {
		validated, ok := base(ctx, action)
		if !ok {
			return board.Action{}, false
		}
		if action.Op != board.OpPatch {
			return validated, true
		}
		if ctx.Node == nil {
			return board.Action{}, false
		}

		if pollFinished(ctx.Node) {
			for key := range validated.Data.Content {
				if _, movable := pollMovableKeys[key]; !movable {
					return board.Action{}, false
				}
			}
			return validated, true
		}

		for _, key := range pollFrozenKeys {
			if _, patching := validated.Data.Content[key]; patching && contentSet(ctx.Node.Content[key]) {
				return board.Action{}, false
			}
		}
		return validated, true
	}
}

// voterOwns reports whether the stored answer belongs to the calling user.
// For anonymous polls the stored id is sealed; only the voter's own secret
// opens it, and an unopenable id counts as someone else's vote.
func voterOwns(ctx *Context, pollID string, answer *board.Node, anonymous bool) bool {
	if answer == nil {
		return false
	}
	stored, _ := answer.Content["userId"].(string)
	if stored == "" {
		return false
	}
	if !anonymous {
		return stored == ctx.UserID
	}
	id, ok := anonid.Open(ctx.PrivateID, pollID, stored)
	return ok && id == ctx.UserID
}

func pollAnswerValidator(s schema) Validator {
	base := schemaValidator(s)
	return func(ctx *Context, action board.Action) (board.Action, bool) {
		if ctx.Parent == nil || ctx.Parent.Type != "poll" {
			return board.Action{}, false
		}
		if pollFinished(ctx.Parent) {
			return board.Action{}, false
		}
		mode, _ := ctx.Parent.Content["mode"].(string)
		anonymous := mode == "anonymous"

		validated, ok := base(ctx, action)
		if !ok {
			return board.Action{}, false
		}

		switch action.Op {
		case board.OpAdd:
			for i := range ctx.Parent.Children {
				existing := &ctx.Parent.Children[i]
				if existing.Type != "poll.answer" {
					continue
				}
				if voterOwns(ctx, ctx.Parent.ID, existing, anonymous) {
					return board.Action{}, false
				}
			}
			if anonymous {
				sealed, err := anonid.Seal(ctx.PrivateID, ctx.Parent.ID, ctx.UserID)
				if err != nil {
					return board.Action{}, false
				}
				validated.Data.Content["userId"] = sealed
			} else {
				validated.Data.Content["userId"] = ctx.UserID
			}
			return validated, true
		default:
			if !voterOwns(ctx, ctx.Parent.ID, ctx.Node, anonymous) {
				return board.Action{}, false
			}
			if action.Op == board.OpPatch {
				// Identity is not patchable.
				delete(validated.Data.Content, "userId")
			}
			return validated, true
		}
	}
}

// commentValidator: comments live under notes and belong to their author.
func commentValidator(s schema) Validator {
	base := schemaValidator(s)
	return func(ctx *Context, action board.Action) (board.Action, bool) {
		if ctx.Parent == nil || ctx.Parent.Type != "note" {
			return board.Action{}, false
		}
		validated, ok := base(ctx, action)
		if !ok {
			return board.Action{}, false
		}

		switch action.Op {
		case board.OpAdd:
			validated.Data.Content["userId"] = ctx.UserID
			return validated, true
		default:
			if ctx.Node == nil {
				return board.Action{}, false
			}
			author, _ := ctx.Node.Content["userId"].(string)
			if author != ctx.UserID {
				return board.Action{}, false
			}
			if action.Op == board.OpPatch {
				delete(validated.Data.Content, "userId")
			}
			return validated, true
		}
	}
}

// estimationResultValidator: a result is authored by the submitting user and
// only that user may change or withdraw it.
func estimationResultValidator(s schema) Validator {
	base := schemaValidator(s)
	return func(ctx *Context, action board.Action) (board.Action, bool) {
		if ctx.Parent == nil || ctx.Parent.Type != "estimation" {
			return board.Action{}, false
		}
		validated, ok := base(ctx, action)
		if !ok {
			return board.Action{}, false
		}

		switch action.Op {
		case board.OpAdd:
			validated.Data.Content["userId"] = ctx.UserID
			return validated, true
		default:
			if ctx.Node == nil {
				return board.Action{}, false
			}
			owner, _ := ctx.Node.Content["userId"].(string)
			if owner != ctx.UserID {
				return board.Action{}, false
			}
			if action.Op == board.OpPatch {
				delete(validated.Data.Content, "userId")
			}
			return validated, true
		}
	}
}

// userValidator is a full-message validator: presence nodes use the user's
// own id as the node id, so any action targeting another id is rejected
// outright.
func userValidator(s schema) Validator {
	base := schemaValidator(s)
	return func(ctx *Context, action board.Action) (board.Action, bool) {
		if action.Data.ID != ctx.UserID {
			return board.Action{}, false
		}
		return base(ctx, action)
	}
}

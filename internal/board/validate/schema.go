package validate

import "tapiz/api/internal/board"

// Content schemas are explicit field tables. A validator narrows incoming
// content down to the fields its table knows about, so a client cannot
// smuggle extra keys past the server.

type kind int

const (
	kindString kind = iota
	kindNumber
	kindBool
	kindList
	kindMap
)

type field struct {
	name     string
	kind     kind
	required bool
}

type schema []field

// narrow checks content against the schema and returns only the known,
// well-typed fields. partial relaxes required fields (patches) and allows an
// explicit null, which the applier turns into a key deletion.
func (s schema) narrow(content map[string]any, partial bool) (map[string]any, bool) {
	out := make(map[string]any, len(content))
	for _, f := range s {
		v, present := content[f.name]
		if !present {
			if f.required && !partial {
				return nil, false
			}
			continue
		}
		if v == nil {
			if partial && !f.required {
				out[f.name] = nil
				continue
			}
			return nil, false
		}
		if !matches(f.kind, v) {
			return nil, false
		}
		out[f.name] = v
	}
	return out, true
}

func matches(k kind, v any) bool {
	switch k {
	case kindString:
		_, ok := v.(string)
		return ok
	case kindNumber:
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case kindBool:
		_, ok := v.(bool)
		return ok
	case kindList:
		_, ok := v.([]any)
		return ok
	case kindMap:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

var (
	noteSchema = schema{
		{"text", kindString, true},
		{"position", kindMap, true},
		{"layer", kindNumber, false},
		{"color", kindString, false},
		{"width", kindNumber, false},
		{"height", kindNumber, false},
		{"votes", kindList, false},
	}
	panelSchema = schema{
		{"position", kindMap, true},
		{"width", kindNumber, true},
		{"height", kindNumber, true},
		{"layer", kindNumber, false},
		{"color", kindString, false},
		{"text", kindString, false},
		{"rotation", kindNumber, false},
	}
	groupSchema = schema{
		{"position", kindMap, true},
		{"width", kindNumber, true},
		{"height", kindNumber, true},
		{"layer", kindNumber, false},
		{"title", kindString, false},
		{"voting", kindBool, false},
	}
	imageSchema = schema{
		{"url", kindString, true},
		{"position", kindMap, true},
		{"width", kindNumber, false},
		{"height", kindNumber, false},
		{"layer", kindNumber, false},
		{"rotation", kindNumber, false},
	}
	vectorSchema = schema{
		{"url", kindString, true},
		{"position", kindMap, true},
		{"width", kindNumber, false},
		{"height", kindNumber, false},
		{"layer", kindNumber, false},
	}
	textSchema = schema{
		{"text", kindString, true},
		{"position", kindMap, true},
		{"width", kindNumber, false},
		{"height", kindNumber, false},
		{"layer", kindNumber, false},
		{"size", kindNumber, false},
		{"color", kindString, false},
	}
	arrowSchema = schema{
		{"position", kindMap, true},
		{"finalPosition", kindMap, true},
		{"layer", kindNumber, false},
		{"color", kindString, false},
	}
	settingsSchema = schema{
		{"readOnly", kindBool, false},
		{"anonymousMode", kindBool, false},
	}
	timerSchema = schema{
		{"active", kindBool, false},
		{"remainingTime", kindNumber, false},
		{"startedAt", kindNumber, false},
	}
	pollSchema = schema{
		{"title", kindString, true},
		{"options", kindList, false},
		{"mode", kindString, false},
		{"finished", kindBool, false},
		{"position", kindMap, false},
		{"layer", kindNumber, false},
	}
	pollAnswerSchema = schema{
		{"optionId", kindString, true},
		{"userId", kindString, false},
	}
	commentSchema = schema{
		{"text", kindString, true},
		{"userId", kindString, false},
		{"createdAt", kindNumber, false},
	}
	estimationSchema = schema{
		{"position", kindMap, true},
		{"layer", kindNumber, false},
		{"step", kindString, false},
		{"stories", kindList, false},
	}
	estimationResultSchema = schema{
		{"storyId", kindString, true},
		{"selection", kindString, true},
		{"userId", kindString, false},
	}
	userSchema = schema{
		{"name", kindString, false},
		{"cursor", kindMap, false},
		{"connected", kindBool, false},
	}
)

// schemaValidator accepts any action whose content fits the table: full shape
// on add, partial on patch. Removes carry no content to validate; the data is
// stripped down to id and type either way.
func schemaValidator(s schema) Validator {
	return func(ctx *Context, action board.Action) (board.Action, bool) {
		switch action.Op {
		case board.OpAdd:
			content, ok := s.narrow(action.Data.Content, false)
			if !ok {
				return board.Action{}, false
			}
			action.Data.Content = content
			action.Data.Children = nil
			return action, true
		case board.OpPatch:
			content, ok := s.narrow(action.Data.Content, true)
			if !ok {
				return board.Action{}, false
			}
			action.Data.Content = content
			action.Data.Children = nil
			return action, true
		default:
			action.Data = board.Node{ID: action.Data.ID, Type: action.Data.Type}
			return action, true
		}
	}
}

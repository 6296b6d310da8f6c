package board

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pos(i int) *int { return &i }

func note(id, text string) Node {
	return Node{ID: id, Type: "note", Content: map[string]any{"text": text}}
}

func ids(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestApplyAdd(t *testing.T) {
	cases := []struct {
		name     string
		start    []Node
		position *int
		want     []string
	}{
		{name: "append to empty", start: nil, want: []string{"x"}},
		{name: "append without position", start: []Node{note("a", ""), note("b", "")}, want: []string{"a", "b", "x"}},
		{name: "insert at head", start: []Node{note("a", ""), note("b", "")}, position: pos(0), want: []string{"x", "a", "b"}},
		{name: "insert in middle", start: []Node{note("a", ""), note("b", "")}, position: pos(1), want: []string{"a", "x", "b"}},
		{name: "out of range appends", start: []Node{note("a", "")}, position: pos(5), want: []string{"a", "x"}},
		{name: "negative appends", start: []Node{note("a", "")}, position: pos(-1), want: []string{"a", "x"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Apply(tc.start, Action{Op: OpAdd, Data: note("x", "hi"), Position: tc.position})
			require.Equal(t, tc.want, ids(got))
		})
	}
}

func TestApplyRemoveMissingIsNoop(t *testing.T) {
	start := []Node{note("a", "one"), note("b", "two")}
	got := Apply(start, Action{Op: OpRemove, Data: Node{ID: "zzz", Type: "note"}})

	require.Len(t, got, 2)
	// Untouched nodes keep their identity, content included.
	require.Equal(t, start[0].Content, got[0].Content)
	require.Equal(t, start[1].Content, got[1].Content)
}

func TestApplyRemove(t *testing.T) {
	start := []Node{note("a", ""), note("b", ""), note("c", "")}
	got := Apply(start, Action{Op: OpRemove, Data: Node{ID: "b", Type: "note"}})

	require.Equal(t, []string{"a", "c"}, ids(got))
	require.Equal(t, []string{"a", "b", "c"}, ids(start))
}

func TestApplyPatchMerges(t *testing.T) {
	start := []Node{{ID: "a", Type: "note", Content: map[string]any{"text": "hello", "layer": float64(2)}}}

	got := Apply(start, Action{Op: OpPatch, Data: Node{ID: "a", Type: "note", Content: map[string]any{"text": "bye"}}})

	require.Equal(t, "bye", got[0].Content["text"])
	require.Equal(t, float64(2), got[0].Content["layer"], "unpatched keys survive the merge")
	require.Equal(t, "hello", start[0].Content["text"], "input list is not mutated")
}

func TestApplyPatchNullDeletesKey(t *testing.T) {
	start := []Node{{ID: "a", Type: "note", Content: map[string]any{"text": "hello", "color": "red"}}}

	got := Apply(start, Action{Op: OpPatch, Data: Node{ID: "a", Type: "note", Content: map[string]any{"color": nil}}})

	_, present := got[0].Content["color"]
	require.False(t, present)
	require.Equal(t, "hello", got[0].Content["text"])
}

func TestApplyPatchMissingIsNoop(t *testing.T) {
	start := []Node{note("a", "one")}
	got := Apply(start, Action{Op: OpPatch, Data: Node{ID: "zzz", Type: "note", Content: map[string]any{"text": "x"}}})
	require.Equal(t, start, got)
}

func TestApplyPatchReorders(t *testing.T) {
	start := []Node{note("a", ""), note("b", ""), note("c", "")}

	got := Apply(start, Action{
		Op:       OpPatch,
		Data:     Node{ID: "c", Type: "note", Content: map[string]any{}},
		Position: pos(0),
	})

	require.Equal(t, []string{"c", "a", "b"}, ids(got))

	got = Apply(start, Action{
		Op:       OpPatch,
		Data:     Node{ID: "a", Type: "note", Content: map[string]any{}},
		Position: pos(2),
	})
	require.Equal(t, []string{"b", "c", "a"}, ids(got))
}

func TestApplyPatchSkipsReorderForPinnedTypes(t *testing.T) {
	start := []Node{
		{ID: "settings", Type: "settings", Content: map[string]any{}},
		note("a", ""),
	}

	got := Apply(start, Action{
		Op:       OpPatch,
		Data:     Node{ID: "settings", Type: "settings", Content: map[string]any{"readOnly": true}},
		Position: pos(1),
	})

	require.Equal(t, []string{"settings", "a"}, ids(got))
	require.Equal(t, true, got[0].Content["readOnly"])
}

func TestApplyParentScoped(t *testing.T) {
	start := []Node{
		{ID: "n1", Type: "note", Content: map[string]any{"text": "parent"}},
	}

	got := Apply(start, Action{
		Op:     OpAdd,
		Data:   Node{ID: "c1", Type: "comment", Content: map[string]any{"text": "hi"}},
		Parent: "n1",
	})
	require.Len(t, got[0].Children, 1)
	require.Equal(t, "c1", got[0].Children[0].ID)
	require.Nil(t, start[0].Children, "parent in the input list is untouched")

	got = Apply(got, Action{
		Op:     OpPatch,
		Data:   Node{ID: "c1", Type: "comment", Content: map[string]any{"text": "edited"}},
		Parent: "n1",
	})
	require.Equal(t, "edited", got[0].Children[0].Content["text"])

	got = Apply(got, Action{
		Op:     OpRemove,
		Data:   Node{ID: "c1", Type: "comment"},
		Parent: "n1",
	})
	require.Empty(t, got[0].Children)
}

func TestApplyMissingParentIsNoop(t *testing.T) {
	start := []Node{note("a", "")}
	got := Apply(start, Action{
		Op:     OpAdd,
		Data:   Node{ID: "c1", Type: "comment"},
		Parent: "gone",
	})
	require.Equal(t, start, got)
}

func TestApplyAllOrder(t *testing.T) {
	got := ApplyAll(nil, []Action{
		{Op: OpAdd, Data: note("a", "first")},
		{Op: OpPatch, Data: Node{ID: "a", Type: "note", Content: map[string]any{"text": "second"}}},
		{Op: OpAdd, Data: note("b", "")},
	})

	require.Equal(t, []string{"a", "b"}, ids(got))
	require.Equal(t, "second", got[0].Content["text"])
}

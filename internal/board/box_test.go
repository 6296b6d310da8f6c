package board

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func addAction(n Node) Action { return Action{Op: OpAdd, Data: n} }

func TestBoxAddUndoRedoRoundTrip(t *testing.T) {
	box := NewBox(0)
	n := note("a", "hi")

	state := box.Submit([]Action{addAction(n)}, true)
	require.Len(t, state, 1)

	applied, ok := box.Undo()
	require.True(t, ok)
	require.Len(t, applied, 1)
	require.Equal(t, OpRemove, applied[0].Op)
	require.Empty(t, box.Get())

	applied, ok = box.Redo()
	require.True(t, ok)
	require.Equal(t, OpAdd, applied[0].Op)
	require.Len(t, box.Get(), 1)
	require.Equal(t, n.Content, box.Get()[0].Content)
}

func TestBoxPatchUndoRestoresExactValues(t *testing.T) {
	box := NewBox(0)
	box.Submit([]Action{addAction(Node{
		ID: "a", Type: "note",
		Content: map[string]any{"title": "A", "layer": float64(3)},
	})}, false)

	box.Submit([]Action{{
		Op:   OpPatch,
		Data: Node{ID: "a", Type: "note", Content: map[string]any{"title": "B"}},
	}}, true)
	require.Equal(t, "B", box.Get()[0].Content["title"])

	_, ok := box.Undo()
	require.True(t, ok)
	require.Equal(t, "A", box.Get()[0].Content["title"])
	require.Equal(t, float64(3), box.Get()[0].Content["layer"], "untouched fields unchanged")

	_, ok = box.Redo()
	require.True(t, ok)
	require.Equal(t, "B", box.Get()[0].Content["title"])
}

func TestBoxRemoveUndoRecreatesContent(t *testing.T) {
	box := NewBox(0)
	content := map[string]any{"text": "poll title", "options": []any{"yes", "no"}}
	box.Submit([]Action{addAction(Node{ID: "p", Type: "poll", Content: content})}, false)

	box.Submit([]Action{{Op: OpRemove, Data: Node{ID: "p", Type: "poll"}}}, true)
	require.Empty(t, box.Get())

	_, ok := box.Undo()
	require.True(t, ok)
	require.Len(t, box.Get(), 1)
	require.Equal(t, content, box.Get()[0].Content)
}

func TestBoxHistoryBoundEvictsOldest(t *testing.T) {
	box := NewBox(2)
	box.Submit([]Action{addAction(note("a", ""))}, true)
	box.Submit([]Action{addAction(note("b", ""))}, true)
	box.Submit([]Action{addAction(note("c", ""))}, true)

	_, ok := box.Undo()
	require.True(t, ok)
	_, ok = box.Undo()
	require.True(t, ok)

	// The first add fell off the bounded past stack, so its effect stays.
	require.Equal(t, []string{"a"}, ids(box.Get()))

	_, ok = box.Undo()
	require.False(t, ok)
	require.Equal(t, []string{"a"}, ids(box.Get()))
}

func TestBoxNewEditClearsFuture(t *testing.T) {
	box := NewBox(0)
	box.Submit([]Action{addAction(note("a", ""))}, true)
	box.Submit([]Action{addAction(note("b", ""))}, true)

	_, ok := box.Undo()
	require.True(t, ok)
	require.Equal(t, []string{"a"}, ids(box.Get()))

	box.Submit([]Action{addAction(note("c", ""))}, true)

	_, ok = box.Redo()
	require.False(t, ok, "redo after a fresh edit must not resurrect b")
	require.Equal(t, []string{"a", "c"}, ids(box.Get()))
}

func TestBoxUntrackedBatchLeavesHistoryAlone(t *testing.T) {
	box := NewBox(0)
	box.Submit([]Action{addAction(note("a", ""))}, true)
	box.Submit([]Action{addAction(note("b", ""))}, false)

	_, ok := box.Undo()
	require.True(t, ok)
	// Only the tracked add was undone.
	require.Equal(t, []string{"b"}, ids(box.Get()))
}

func TestBoxBatchUndoneAsOneEntry(t *testing.T) {
	box := NewBox(0)
	box.Submit([]Action{
		addAction(note("a", "")),
		addAction(note("b", "")),
		{Op: OpPatch, Data: Node{ID: "a", Type: "note", Content: map[string]any{"text": "x"}}},
	}, true)

	applied, ok := box.Undo()
	require.True(t, ok)
	require.Len(t, applied, 3)
	require.Empty(t, box.Get())
}

func TestBoxSubscribeEmitsOnChangeOnly(t *testing.T) {
	box := NewBox(0)
	ch, cancel := box.Subscribe()
	defer cancel()

	box.Submit([]Action{addAction(note("a", ""))}, false)
	state := <-ch
	require.Equal(t, []string{"a"}, ids(state))

	// A no-op batch (remove of a missing node) must not emit.
	box.Submit([]Action{{Op: OpRemove, Data: Node{ID: "ghost", Type: "note"}}}, false)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected emission for no-op batch: %v", ids(extra))
	default:
	}

	box.Submit([]Action{addAction(note("b", ""))}, false)
	state = <-ch
	require.Equal(t, []string{"a", "b"}, ids(state))
}

func TestBoxLoadClearsHistory(t *testing.T) {
	box := NewBox(0)
	box.Submit([]Action{addAction(note("a", ""))}, true)

	box.Load([]Node{note("x", "snapshot")})
	require.Equal(t, []string{"x"}, ids(box.Get()))

	_, ok := box.Undo()
	require.False(t, ok)
}

func TestTwoBoxesConvergeOnSameBatchOrder(t *testing.T) {
	server := NewBox(0)
	client := NewBox(0)

	batches := [][]Action{
		{addAction(note("a", "one"))},
		{addAction(note("b", "two")), {Op: OpPatch, Data: Node{ID: "a", Type: "note", Content: map[string]any{"text": "1"}}}},
		{{Op: OpRemove, Data: Node{ID: "b", Type: "note"}}},
		{{Op: OpAdd, Data: Node{ID: "c1", Type: "comment", Content: map[string]any{"text": "hi"}}, Parent: "a"}},
	}
	for _, batch := range batches {
		server.Submit(batch, false)
		client.Submit(batch, false)
	}

	require.Equal(t, server.Get(), client.Get())
}

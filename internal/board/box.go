package board

import (
	"reflect"
	"sync"
)

// DefaultHistoryLimit bounds how many batches a box keeps undoable.
const DefaultHistoryLimit = 30

// Box owns one replica of a board's node list plus its undo/redo history.
// The server room runs one with history disabled as the authoritative copy;
// each client runs its own for optimistic local state. Convergence comes from
// Apply being deterministic and batches arriving in server order, never from
// coordination between boxes. History is strictly local: undo rewinds only
// batches this box recorded, and the corrective actions it returns are
// broadcast like any other batch.
type Box struct {
	mu      sync.Mutex
	nodes   []Node
	past    [][]Action // most recent first
	future  [][]Action
	limit   int
	subs    map[int]chan []Node
	nextSub int
}

func NewBox(limit int) *Box {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Box{
		limit: limit,
		subs:  make(map[int]chan []Node),
	}
}

// Get returns the current node list. Callers must treat it as read-only.
func (b *Box) Get() []Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nodes
}

// Load replaces the state wholesale (initial sync, snapshot restore) and
// drops any history, which refers to states that no longer exist.
func (b *Box) Load(nodes []Node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.past = nil
	b.future = nil
	b.setState(nodes)
}

// Submit applies a batch in array order and returns the new state. When
// history is requested, the inverse of every action is computed against the
// pre-batch state and recorded as a single undoable entry; any redo entries
// are discarded.
func (b *Box) Submit(actions []Action, history bool) []Node {
	b.mu.Lock()
	defer b.mu.Unlock()

	if history {
		entry := ReverseAll(b.nodes, actions)
		b.past = append([][]Action{entry}, b.past...)
		if len(b.past) > b.limit {
			b.past = b.past[:b.limit]
		}
		b.future = nil
	}

	b.setState(ApplyAll(b.nodes, actions))
	return b.nodes
}

// Undo applies the most recent history entry and returns the actions it
// applied, for the caller to broadcast. The entry's own inverse is pushed to
// the redo stack first, computed against the current state.
func (b *Box) Undo() ([]Action, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.past) == 0 {
		return nil, false
	}
	entry := b.past[0]
	b.past = b.past[1:]

	b.future = append([][]Action{ReverseAll(b.nodes, entry)}, b.future...)
	b.setState(ApplyAll(b.nodes, entry))
	return entry, true
}

// Redo is the mirror of Undo over the future stack.
func (b *Box) Redo() ([]Action, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.future) == 0 {
		return nil, false
	}
	entry := b.future[0]
	b.future = b.future[1:]

	b.past = append([][]Action{ReverseAll(b.nodes, entry)}, b.past...)
	if len(b.past) > b.limit {
		b.past = b.past[:b.limit]
	}
	b.setState(ApplyAll(b.nodes, entry))
	return entry, true
}

// Subscribe returns a channel that receives the node list after each state
// change, and a cancel func. Submissions that change nothing do not emit. A
// subscriber that falls behind sees only the latest state, never a backlog.
func (b *Box) Subscribe() (<-chan []Node, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan []Node, 1)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// setState swaps in the new list and notifies subscribers, suppressing
// no-op transitions. Caller holds b.mu.
func (b *Box) setState(next []Node) {
	if reflect.DeepEqual(b.nodes, next) {
		return
	}
	b.nodes = next
	for _, ch := range b.subs {
		select {
		case ch <- next:
		default:
			// Drop the stale pending state and replace it.
			select {
			case <-ch:
			default:
			}
			ch <- next
		}
	}
}

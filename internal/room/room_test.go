package room

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tapiz/api/internal/board"
	"tapiz/api/internal/board/validate"
)

func startRoom(t *testing.T, broker Broker, instance string, initial []board.Node, onChange ChangeFunc, onEmpty EmptyFunc) *Room {
	t.Helper()
	r := newRoom("b1", instance, initial, validate.NewRegistry(), broker, zerolog.Nop(), onChange, onEmpty)
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelCtx = cancel
	t.Cleanup(cancel)
	go func() {
		r.run(ctx)
		close(r.done)
	}()
	return r
}

func join(t *testing.T, r *Room, userID string) *Client {
	t.Helper()
	client := newClient(r, nil, validate.Identity{UserID: userID}, zerolog.Nop())
	select {
	case r.joinCh <- client:
	case <-time.After(time.Second):
		t.Fatal("join timed out")
	}
	state := recv(t, client)
	if state.Type != "state" {
		t.Fatalf("first message %q, want state", state.Type)
	}
	return client
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func addNote(id, text string) board.Action {
	return board.Action{
		Op: board.OpAdd,
		Data: board.Node{
			ID:   id,
			Type: "note",
			Content: map[string]any{
				"text":     text,
				"position": map[string]any{"x": 10.0, "y": 20.0},
			},
		},
	}
}

func TestJoinReceivesState(t *testing.T) {
	initial := []board.Node{{ID: "n0", Type: "note", Content: map[string]any{"text": "seed"}}}
	r := startRoom(t, NewLoopbackBroker(), "inst-a", initial, nil, nil)

	client := newClient(r, nil, validate.Identity{UserID: "usr-a"}, zerolog.Nop())
	r.joinCh <- client

	msg := recv(t, client)
	if msg.Type != "state" {
		t.Fatalf("got %q, want state", msg.Type)
	}
	if len(msg.Nodes) != 1 || msg.Nodes[0].ID != "n0" {
		t.Fatalf("unexpected state nodes: %+v", msg.Nodes)
	}
}

func TestValidBatchAppliedAndBroadcast(t *testing.T) {
	changed := make(chan string, 1)
	r := startRoom(t, NewLoopbackBroker(), "inst-a", nil, func(boardID string, nodes []board.Node, by string) {
		changed <- by
	}, nil)

	alice := join(t, r, "usr-alice")
	bob := join(t, r, "usr-bob")

	r.submitCh <- submission{client: alice, actions: []board.Action{addNote("n1", "hello")}}

	for _, client := range []*Client{alice, bob} {
		msg := recv(t, client)
		if msg.Type != "batch" {
			t.Fatalf("got %q, want batch", msg.Type)
		}
		if msg.By != "usr-alice" {
			t.Errorf("batch attributed to %q", msg.By)
		}
		if len(msg.Actions) != 1 || msg.Actions[0].Data.ID != "n1" {
			t.Fatalf("unexpected actions: %+v", msg.Actions)
		}
	}

	select {
	case by := <-changed:
		if by != "usr-alice" {
			t.Errorf("onChange by %q", by)
		}
	case <-time.After(time.Second):
		t.Fatal("onChange never fired")
	}

	nodes := r.Nodes()
	if len(nodes) != 1 || nodes[0].ID != "n1" {
		t.Fatalf("room state not updated: %+v", nodes)
	}
}

func TestInvalidBatchRejectedOnlyToSubmitter(t *testing.T) {
	r := startRoom(t, NewLoopbackBroker(), "inst-a", nil, nil, nil)

	alice := join(t, r, "usr-alice")
	bob := join(t, r, "usr-bob")

	bad := board.Action{Op: board.OpAdd, Data: board.Node{ID: "x1", Type: "no-such-type"}}
	r.submitCh <- submission{client: alice, actions: []board.Action{bad}}

	msg := recv(t, alice)
	if msg.Type != "rejected" {
		t.Fatalf("submitter got %q, want rejected", msg.Type)
	}

	// Bob sees nothing for the rejected batch; the next thing he receives is
	// the following valid batch.
	r.submitCh <- submission{client: alice, actions: []board.Action{addNote("n1", "ok")}}
	msg = recv(t, bob)
	if msg.Type != "batch" || len(msg.Actions) != 1 || msg.Actions[0].Data.ID != "n1" {
		t.Fatalf("unexpected message for bob: %+v", msg)
	}
}

func TestBatchContentNarrowedBeforeBroadcast(t *testing.T) {
	r := startRoom(t, NewLoopbackBroker(), "inst-a", nil, nil, nil)
	alice := join(t, r, "usr-alice")

	action := addNote("n1", "hello")
	action.Data.Content["sneaky"] = "field"
	r.submitCh <- submission{client: alice, actions: []board.Action{action}}

	msg := recv(t, alice)
	if msg.Type != "batch" {
		t.Fatalf("got %q, want batch", msg.Type)
	}
	if _, ok := msg.Actions[0].Data.Content["sneaky"]; ok {
		t.Fatal("unvalidated content key survived broadcast")
	}
}

func TestLastLeaveShutsDownRoom(t *testing.T) {
	flushed := make(chan []board.Node, 1)
	r := startRoom(t, NewLoopbackBroker(), "inst-a", nil, nil, func(boardID string, nodes []board.Node) {
		flushed <- nodes
	})

	alice := join(t, r, "usr-alice")
	r.submitCh <- submission{client: alice, actions: []board.Action{addNote("n1", "bye")}}
	recv(t, alice)

	r.leaveCh <- alice

	select {
	case nodes := <-flushed:
		if len(nodes) != 1 || nodes[0].ID != "n1" {
			t.Fatalf("final snapshot wrong: %+v", nodes)
		}
	case <-time.After(time.Second):
		t.Fatal("onEmpty never fired")
	}

	select {
	case <-r.done:
	case <-time.After(time.Second):
		t.Fatal("room did not shut down after last leave")
	}
}

func TestRoomsConvergeAcrossInstances(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	broker := NewRedisBroker(client)

	r1 := startRoom(t, broker, "inst-a", nil, nil, nil)
	r2 := startRoom(t, broker, "inst-b", nil, nil, nil)

	alice := join(t, r1, "usr-alice")
	carol := join(t, r2, "usr-carol")

	r1.submitCh <- submission{client: alice, actions: []board.Action{addNote("n1", "shared")}}

	msg := recv(t, carol)
	if msg.Type != "batch" || msg.By != "usr-alice" {
		t.Fatalf("remote instance got %+v", msg)
	}
	recv(t, alice)

	deadline := time.Now().Add(2 * time.Second)
	for {
		nodes := r2.Nodes()
		if len(nodes) == 1 && nodes[0].ID == "n1" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("instances did not converge: %+v", nodes)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

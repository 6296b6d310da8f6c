// Package room runs the live side of a board: one sequencer goroutine per
// open board owns the authoritative state, validates inbound batches, and
// fans accepted ones out to every subscriber through the broker. Clients and
// the sequencer never share memory; everything crosses channels.
package room

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"tapiz/api/internal/board"
	"tapiz/api/internal/board/validate"
)

// Message is the websocket wire format, both directions.
type Message struct {
	Type    string         `json:"type"` // "batch", "state", "rejected"
	Actions []board.Action `json:"actions,omitempty"`
	Nodes   []board.Node   `json:"nodes,omitempty"`
	History bool           `json:"history,omitempty"`
	By      string         `json:"by,omitempty"`
}

// envelope is what travels over the broker between instances.
type envelope struct {
	Origin  string         `json:"origin"`
	By      string         `json:"by"`
	Actions []board.Action `json:"actions"`
}

type submission struct {
	client  *Client
	actions []board.Action
}

// ChangeFunc is called after the authoritative state changed, outside the
// sequencer's hot path concerns (search indexing, snapshot archiving).
type ChangeFunc func(boardID string, nodes []board.Node, by string)

// EmptyFunc is called once when the last client leaves and the room is about
// to shut down.
type EmptyFunc func(boardID string, nodes []board.Node)

type Room struct {
	boardID  string
	instance string
	box      *board.Box
	registry *validate.Registry
	broker   Broker
	log      zerolog.Logger

	submitCh chan submission
	joinCh   chan *Client
	leaveCh  chan *Client

	onChange ChangeFunc
	onEmpty  EmptyFunc

	cancelCtx context.CancelFunc
	done      chan struct{}
}

func newRoom(boardID, instance string, initial []board.Node, registry *validate.Registry, broker Broker, log zerolog.Logger, onChange ChangeFunc, onEmpty EmptyFunc) *Room {
	box := board.NewBox(1) // authoritative copy never tracks undo history
	box.Load(initial)

	r := &Room{
		boardID:  boardID,
		instance: instance,
		box:      box,
		registry: registry,
		broker:   broker,
		log:      log.With().Str("board", boardID).Logger(),
		submitCh: make(chan submission, 64),
		joinCh:   make(chan *Client),
		leaveCh:  make(chan *Client),
		onChange: onChange,
		onEmpty:  onEmpty,
		done:     make(chan struct{}),
	}
	return r
}

// Nodes returns the authoritative node list.
func (r *Room) Nodes() []board.Node {
	return r.box.Get()
}

// run is the board's sequencer: batches are validated and applied one at a
// time in arrival order, so no two actions ever interleave within a batch
// and every replica observes the same sequence.
func (r *Room) run(ctx context.Context) {
	remote, unsubscribe := r.broker.Subscribe(ctx, r.boardID)
	defer unsubscribe()

	clients := make(map[*Client]struct{})

	for {
		select {
		case <-ctx.Done():
			for client := range clients {
				client.close()
			}
			return

		case client := <-r.joinCh:
			clients[client] = struct{}{}
			client.trySend(Message{Type: "state", Nodes: r.box.Get()})
			r.log.Info().Str("user", client.UserID).Int("clients", len(clients)).Msg("client joined")

		case client := <-r.leaveCh:
			if _, ok := clients[client]; !ok {
				continue
			}
			delete(clients, client)
			client.close()
			r.log.Info().Str("user", client.UserID).Int("clients", len(clients)).Msg("client left")
			if len(clients) == 0 {
				if r.onEmpty != nil {
					r.onEmpty(r.boardID, r.box.Get())
				}
				r.cancelCtx()
				return
			}

		case sub := <-r.submitCh:
			validated, ok := r.registry.ValidateBatch(sub.actions, r.box.Get(), sub.client.Identity)
			if !ok {
				r.log.Debug().Str("user", sub.client.UserID).Int("actions", len(sub.actions)).Msg("batch rejected")
				sub.client.trySend(Message{Type: "rejected"})
				continue
			}

			r.box.Submit(validated, false)
			if r.onChange != nil {
				r.onChange(r.boardID, r.box.Get(), sub.client.UserID)
			}

			payload, err := json.Marshal(envelope{
				Origin:  r.instance,
				By:      sub.client.UserID,
				Actions: validated,
			})
			if err != nil {
				r.log.Error().Err(err).Msg("marshal batch envelope")
				continue
			}
			if err := r.broker.Publish(ctx, r.boardID, payload); err != nil {
				r.log.Error().Err(err).Msg("publish batch")
				// Broker down: deliver locally so this instance's clients
				// are not frozen out.
				r.broadcast(clients, Message{Type: "batch", Actions: validated, By: sub.client.UserID})
			}

		case payload, open := <-remote:
			if !open {
				remote = nil
				continue
			}
			var env envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				r.log.Error().Err(err).Msg("decode batch envelope")
				continue
			}
			if env.Origin != r.instance {
				// Another instance already validated this batch.
				r.box.Submit(env.Actions, false)
				if r.onChange != nil {
					r.onChange(r.boardID, r.box.Get(), env.By)
				}
			}
			r.broadcast(clients, Message{Type: "batch", Actions: env.Actions, By: env.By})
		}
	}
}

func (r *Room) broadcast(clients map[*Client]struct{}, msg Message) {
	for client := range clients {
		client.trySend(msg)
	}
}

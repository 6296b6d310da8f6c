package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tapiz/api/internal/board"
	"tapiz/api/internal/board/validate"
)

// LoadFunc fetches the persisted node list for a board when its room opens.
type LoadFunc func(boardID string) ([]board.Node, error)

// Hub opens and retires rooms. Each instance of the service runs one hub;
// rooms on different instances serving the same board converge through the
// broker.
type Hub struct {
	instance string
	registry *validate.Registry
	broker   Broker
	load     LoadFunc
	onChange ChangeFunc
	onEmpty  EmptyFunc
	log      zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewHub(registry *validate.Registry, broker Broker, load LoadFunc, onChange ChangeFunc, onEmpty EmptyFunc, log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		instance: uuid.NewString(),
		registry: registry,
		broker:   broker,
		load:     load,
		onChange: onChange,
		onEmpty:  onEmpty,
		log:      log,
		baseCtx:  ctx,
		cancel:   cancel,
		rooms:    make(map[string]*Room),
	}
}

// Attach binds an upgraded websocket connection to the board's room, opening
// the room if this is the first client. It returns once the client has been
// handed to the sequencer; the pumps run until the connection dies.
func (h *Hub) Attach(boardID string, conn *websocket.Conn, identity validate.Identity) error {
	for {
		r, err := h.roomFor(boardID)
		if err != nil {
			return err
		}

		client := newClient(r, conn, identity, h.log.With().Str("board", boardID).Logger())
		select {
		case r.joinCh <- client:
			go client.writePump()
			go client.readPump()
			return nil
		case <-r.done:
			// Lost the race against the room's shutdown; open a fresh one.
		}
	}
}

// Shutdown stops every open room. Rooms flush through their onEmpty hook as
// their sequencers exit.
func (h *Hub) Shutdown() {
	h.cancel()
}

func (h *Hub) roomFor(boardID string) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[boardID]; ok {
		return r, nil
	}

	nodes, err := h.load(boardID)
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", boardID, err)
	}

	r := newRoom(boardID, h.instance, nodes, h.registry, h.broker, h.log, h.onChange, h.onEmpty)
	ctx, cancel := context.WithCancel(h.baseCtx)
	r.cancelCtx = cancel
	h.rooms[boardID] = r

	go func() {
		defer h.retire(boardID, r)
		r.run(ctx)
	}()
	return r, nil
}

func (h *Hub) retire(boardID string, r *Room) {
	h.mu.Lock()
	if current, ok := h.rooms[boardID]; ok && current == r {
		delete(h.rooms, boardID)
	}
	h.mu.Unlock()
	r.cancelCtx()
	close(r.done)
}

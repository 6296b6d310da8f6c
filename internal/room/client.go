package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tapiz/api/internal/board/validate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 32
)

// Client is one websocket connection bound to a room. The read pump feeds
// batches to the sequencer; the write pump drains send. A client that cannot
// keep up with send is dropped rather than allowed to stall the room.
type Client struct {
	ID       string
	UserID   string
	Identity validate.Identity

	room *Room
	conn *websocket.Conn
	send chan Message
	log  zerolog.Logger

	closed    chan struct{}
	closeOnce sync.Once
}

func newClient(room *Room, conn *websocket.Conn, identity validate.Identity, log zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:       id,
		UserID:   identity.UserID,
		Identity: identity,
		room:     room,
		conn:     conn,
		send:     make(chan Message, sendBuffer),
		closed:   make(chan struct{}),
		log:      log.With().Str("conn", id).Str("user", identity.UserID).Logger(),
	}
}

// trySend queues a message without blocking the sequencer. A full send
// buffer means the peer has stopped reading; the connection is closed and
// the write pump's exit takes the client out of the room.
func (c *Client) trySend(msg Message) {
	select {
	case c.send <- msg:
	case <-c.closed:
	default:
		c.log.Warn().Msg("send buffer full, dropping client")
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.room.leaveCh <- c:
		case <-c.room.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		if msg.Type != "batch" || len(msg.Actions) == 0 {
			continue
		}
		select {
		case c.room.submitCh <- submission{client: c, actions: msg.Actions}:
		case <-c.room.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// send pings to the peer with this period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512

	sendBufferSize = 16
)

// client is one websocket connection with its buffered outbound queue.
// All writes go through the send channel so a single goroutine owns the
// underlying connection.
type client struct {
	ctx    context.Context
	id     string
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

func newClient(ctx context.Context, id string, conn *websocket.Conn, logger *slog.Logger) *client {
	return &client{
		ctx:    ctx,
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger.With("conn", id),
	}
}

// readPump reads inbound messages and feeds them to the dispatcher. It
// exits on the first read error, which is the implicit disconnect event.
func (that *client) readPump(server *Server) {
	defer server.handleDisconnect(that)

	that.conn.SetReadLimit(maxMessageSize)
	_ = that.conn.SetReadDeadline(time.Now().Add(pongWait))
	that.conn.SetPongHandler(func(string) error {
		return that.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := that.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				that.logger.Error("unexpected close", "error", err)
			}
			return
		}

		server.dispatch(that, raw)
	}
}

// writePump drains the send channel and keeps the connection alive with
// periodic pings.
func (that *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = that.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = that.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := that.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				that.logger.Error("failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues a marshaled message, dropping it if the client cannot
// keep up. A client that falls behind loses events rather than stalling
// the whole room.
func (that *client) enqueue(raw []byte) {
	select {
	case that.send <- raw:
	default:
		that.logger.Error("send buffer full, dropping message")
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/playgrid/tictactoe-server/internal/apperror"
	"github.com/playgrid/tictactoe-server/internal/entity"
	"github.com/playgrid/tictactoe-server/internal/monitor"
	"github.com/playgrid/tictactoe-server/internal/repository"
)

type gameManager interface {
	Connect(connID string)
	SetNickname(ctx context.Context, connID, nickname string) (*entity.Player, error)
	CreateRoom(ctx context.Context, connID string) (*entity.Room, error)
	JoinRoom(ctx context.Context, connID, roomID string) (*entity.Room, error)
	MakeMove(ctx context.Context, connID string, cell int) (*entity.Room, error)
	RequestReplay(ctx context.Context, connID string) (*entity.Room, bool, error)
	Disconnect(ctx context.Context, connID string) (*entity.Room, error)
}

// Server owns the websocket endpoint: it upgrades connections, assigns
// them ids, groups them under room ids for broadcasting, and routes
// inbound messages to the state machine through a handler table.
type Server struct {
	logger  *slog.Logger
	manager gameManager
	metrics *monitor.Metrics

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client

	handlers map[string]func(ctx context.Context, c *client, payload json.RawMessage) error
}

func New(logger *slog.Logger, manager gameManager, metrics *monitor.Metrics) *Server {
	server := &Server{
		logger:  logger.With("component", "websocket"),
		manager: manager,
		metrics: metrics,

		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},

		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),

		handlers: make(map[string]func(context.Context, *client, json.RawMessage) error),
	}

	server.handlers[ActionSetNickname] = server.handleSetNickname
	server.handlers[ActionCreateRoom] = server.handleCreateRoom
	server.handlers[ActionJoinRoom] = server.handleJoinRoom
	server.handlers[ActionMakeMove] = server.handleMakeMove
	server.handlers[ActionRequestReplay] = server.handleRequestReplay

	return server
}

// Start - starts the WebSocket server and blocks until ctx is canceled
// or the listener fails.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveWS(ctx, w, r)
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) serveWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		that.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	connID := uuid.NewString()
	c := newClient(ctx, connID, conn, that.logger)

	that.mu.Lock()
	that.clients[connID] = c
	that.mu.Unlock()

	that.manager.Connect(connID)
	that.metrics.ActiveConnections.Inc()

	c.logger.Info("connection established")

	go c.writePump()

	// a bare websocket has no client-visible connection id, so announce
	// it; clients need it to recognize themselves in room broadcasts
	that.sendTo(c, ActionConnected, ConnectedPayload{ID: connID})

	c.readPump(that)
}

// dispatch routes one inbound message. Rejections of invalid actions are
// reported back to the requester; room state is untouched by them.
func (that *Server) dispatch(c *client, raw []byte) {
	started := time.Now()
	that.metrics.MessagesReceived.Inc()

	var message Message
	if err := json.Unmarshal(raw, &message); err != nil {
		c.logger.Error("failed to unmarshal message", "error", err)
		return
	}

	handler, ok := that.handlers[message.Action]
	if !ok {
		c.logger.Error("unknown action", "action", message.Action)
		that.sendError(c, message.Action, "unknown action")
		return
	}

	if err := handler(c.ctx, c, message.Payload); err != nil {
		if isRejection(err) {
			c.logger.Info("action rejected", "action", message.Action, "reason", err)
			that.sendError(c, message.Action, err.Error())
		} else {
			c.logger.Error("failed to process message", "action", message.Action, "error", err)
		}
	}

	that.metrics.HandlingSeconds.Observe(time.Since(started).Seconds())
}

// handleDisconnect is the implicit disconnect event: notify the room's
// remaining member and tear the whole room down.
func (that *Server) handleDisconnect(c *client) {
	room, err := that.manager.Disconnect(c.ctx, c.id)
	if err != nil {
		c.logger.Error("failed to process disconnect", "error", err)
	}

	if room != nil {
		that.broadcast(room.ID, ActionPlayerLeft, struct{}{})
		that.removeGroup(room.ID)
	}

	that.mu.Lock()
	delete(that.clients, c.id)
	that.mu.Unlock()

	close(c.send)
	that.metrics.ActiveConnections.Dec()

	c.logger.Info("connection closed")
}

// joinGroup associates the connection with a room's broadcast group.
func (that *Server) joinGroup(roomID string, c *client) {
	that.mu.Lock()
	defer that.mu.Unlock()

	group, ok := that.rooms[roomID]
	if !ok {
		group = make(map[string]*client)
		that.rooms[roomID] = group
	}

	group[c.id] = c
}

func (that *Server) removeGroup(roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.rooms, roomID)
}

// broadcast sends an event to every connection grouped under the room.
func (that *Server) broadcast(roomID, action string, payload any) {
	raw, err := marshalMessage(action, payload)
	if err != nil {
		that.logger.Error("failed to marshal broadcast", "action", action, "error", err)
		return
	}

	that.mu.RLock()
	defer that.mu.RUnlock()

	for _, member := range that.rooms[roomID] {
		member.enqueue(raw)
	}
}

// sendTo replies to a single connection.
func (that *Server) sendTo(c *client, action string, payload any) {
	raw, err := marshalMessage(action, payload)
	if err != nil {
		that.logger.Error("failed to marshal message", "action", action, "error", err)
		return
	}

	c.enqueue(raw)
}

func (that *Server) sendError(c *client, action, reason string) {
	that.sendTo(c, ActionError, ErrorPayload{Action: action, Message: reason})
}

func marshalMessage(action string, payload any) ([]byte, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return json.Marshal(Message{Action: action, Payload: payloadJSON})
}

// isRejection tells a client's invalid action apart from a server fault.
func isRejection(err error) bool {
	for _, sentinel := range []error{
		apperror.ErrNotYourTurn,
		apperror.ErrCellOccupied,
		apperror.ErrInvalidCell,
		apperror.ErrGameFinished,
		apperror.ErrGameIsNotStarted,
		apperror.ErrRoomIsFull,
		apperror.ErrAlreadyInRoom,
		apperror.ErrNotInRoom,
		repository.ErrRoomNotFound,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	return false
}

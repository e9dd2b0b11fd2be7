package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/playgrid/tictactoe-server/internal/apperror"
	"github.com/playgrid/tictactoe-server/internal/entity"
	"github.com/playgrid/tictactoe-server/internal/monitor"
	"github.com/playgrid/tictactoe-server/internal/pkg"
	"github.com/playgrid/tictactoe-server/internal/repository"
)

// how many times CreateRoom retries the id generator before giving up.
const maxRoomIDAttempts = 5

var ErrRoomIDExhausted = errors.New("could not generate a unique room id")

type roomRepo interface {
	Save(ctx context.Context, room *entity.Room) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	DeleteByID(ctx context.Context, id string) error
}

// RoomManager is the game session state machine. It owns the connection
// registry and serializes every inbound event with a single mutex, so no
// two handlers ever interleave mid-mutation and the replay rendezvous
// needs no further synchronization. Every room it returns is a snapshot
// detached from the stored state: transports can marshal it after the
// lock is released without racing the next event.
type RoomManager struct {
	logger  *slog.Logger
	rooms   roomRepo
	metrics *monitor.Metrics

	mu      sync.Mutex
	players map[string]*entity.Player
}

func NewRoomManager(logger *slog.Logger, rooms roomRepo, metrics *monitor.Metrics) *RoomManager {
	return &RoomManager{
		logger:  logger.With("component", "room_manager"),
		rooms:   rooms,
		metrics: metrics,

		players: make(map[string]*entity.Player),
	}
}

// Connect registers a new connection identity.
func (that *RoomManager) Connect(connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.players[connID] = &entity.Player{ID: connID}
}

// SetNickname stores the nickname on the connection's identity and, when
// the connection already sits in a room, on its stored participant entry,
// so later room payloads carry it. The caller replies to the requester
// only.
func (that *RoomManager) SetNickname(ctx context.Context, connID, nickname string) (*entity.Player, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player := that.playerByID(connID)
	player.Nickname = nickname

	if player.RoomID == "" {
		return player, nil
	}

	room, err := that.rooms.GetByID(ctx, player.RoomID)
	if errors.Is(err, repository.ErrRoomNotFound) {
		player.RoomID = ""
		return player, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	for _, member := range room.Players {
		if member.ID == connID {
			member.Nickname = nickname
		}
	}

	if err = that.rooms.Save(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to save room: %w", err)
	}

	return player, nil
}

// CreateRoom creates a single-participant room owned by the connection
// and associates the room with it.
func (that *RoomManager) CreateRoom(ctx context.Context, connID string) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player := that.playerByID(connID)
	if err := that.confirmNotInRoom(ctx, player); err != nil {
		return nil, err
	}

	roomID, err := that.generateUniqueRoomID(ctx)
	if err != nil {
		return nil, err
	}

	room := entity.NewRoom(roomID)
	if err = room.AddPlayer(player); err != nil {
		return nil, fmt.Errorf("failed to add owner to room: %w", err)
	}

	if err = that.rooms.Save(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to save room: %w", err)
	}

	that.metrics.ActiveRooms.Inc()
	that.logger.Info("room created", "room", room.ID, "player", connID)

	// the local room still aliases the live player identity; hand the
	// transport a snapshot it can read without holding the manager lock
	return room.Clone(), nil
}

// JoinRoom appends the connection as the second participant and starts
// the game: the room creator always moves first.
func (that *RoomManager) JoinRoom(ctx context.Context, connID, roomID string) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player := that.playerByID(connID)
	if err := that.confirmNotInRoom(ctx, player); err != nil {
		return nil, err
	}

	room, err := that.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	if room.IsFull() {
		return nil, fmt.Errorf("%w: room %s", apperror.ErrRoomIsFull, roomID)
	}

	if err = room.AddPlayer(player); err != nil {
		return nil, err
	}

	if err = that.rooms.Save(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to save room: %w", err)
	}

	that.metrics.GamesStarted.Inc()
	that.logger.Info("game started", "room", room.ID, "player", connID)

	return room.Clone(), nil
}

// MakeMove applies a move to the connection's room. Any precondition
// failure (not the mover, occupied cell, out-of-range index, game
// already over) is a rejection that leaves the room untouched.
func (that *RoomManager) MakeMove(ctx context.Context, connID string, cell int) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, err := that.roomOf(ctx, connID)
	if err != nil {
		return nil, err
	}

	if err = room.MakeTurn(connID, cell); err != nil {
		return nil, err
	}

	if err = that.rooms.Save(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to save room: %w", err)
	}

	if room.IsFinished() {
		that.metrics.GamesFinished.Inc()
		that.logger.Info("game finished", "room", room.ID, "winner", room.Winner)
	}

	return room, nil
}

// RequestReplay records a rematch request. When both participants have
// requested one the shared state resets in place: board cleared, player
// order reversed, the former second player moving first. The returned
// flag reports whether the reset fired.
func (that *RoomManager) RequestReplay(ctx context.Context, connID string) (*entity.Room, bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, err := that.roomOf(ctx, connID)
	if err != nil {
		return nil, false, err
	}

	room.MarkReadyForReplay(connID)

	restarted := room.BothReadyForReplay()
	if restarted {
		room.ResetForReplay()
		that.logger.Info("game restarted", "room", room.ID, "first_mover", room.CurrentPlayer)
	}

	if err = that.rooms.Save(ctx, room); err != nil {
		return nil, false, fmt.Errorf("failed to save room: %w", err)
	}

	return room, restarted, nil
}

// Disconnect tears down the connection's room entirely: the surviving
// participant is left without a room and must create or join anew. The
// deleted room is returned so the transport can notify its members.
func (that *RoomManager) Disconnect(ctx context.Context, connID string) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.players[connID]
	delete(that.players, connID)

	if !ok || player.RoomID == "" {
		return nil, nil
	}

	room, err := that.rooms.GetByID(ctx, player.RoomID)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	room.RemoveReadyForReplay(connID)

	if err = that.rooms.DeleteByID(ctx, room.ID); err != nil {
		return nil, fmt.Errorf("failed to delete room: %w", err)
	}

	// the survivor's identity outlives the room
	for _, member := range room.Players {
		if survivor, exists := that.players[member.ID]; exists {
			survivor.RoomID = ""
		}
	}

	that.metrics.ActiveRooms.Dec()
	that.logger.Info("room deleted", "room", room.ID, "player", connID)

	return room, nil
}

func (that *RoomManager) playerByID(connID string) *entity.Player {
	player, ok := that.players[connID]
	if !ok {
		player = &entity.Player{ID: connID}
		that.players[connID] = player
	}

	return player
}

// confirmNotInRoom enforces the one-room-per-connection invariant. A
// room id pointing at a reaped room is stale, not a violation: it is
// cleared and the action proceeds.
func (that *RoomManager) confirmNotInRoom(ctx context.Context, player *entity.Player) error {
	if player.RoomID == "" {
		return nil
	}

	if _, err := that.rooms.GetByID(ctx, player.RoomID); errors.Is(err, repository.ErrRoomNotFound) {
		player.RoomID = ""
		return nil
	}

	return fmt.Errorf("%w: room %s", apperror.ErrAlreadyInRoom, player.RoomID)
}

func (that *RoomManager) roomOf(ctx context.Context, connID string) (*entity.Room, error) {
	player, ok := that.players[connID]
	if !ok || player.RoomID == "" {
		return nil, apperror.ErrNotInRoom
	}

	room, err := that.rooms.GetByID(ctx, player.RoomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return room, nil
}

func (that *RoomManager) generateUniqueRoomID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxRoomIDAttempts; attempt++ {
		roomID := pkg.GenerateRoomID()
		if roomID == "" {
			continue
		}

		_, err := that.rooms.GetByID(ctx, roomID)
		if errors.Is(err, repository.ErrRoomNotFound) {
			return roomID, nil
		}

		if err != nil {
			return "", fmt.Errorf("failed to check room id: %w", err)
		}
	}

	return "", ErrRoomIDExhausted
}

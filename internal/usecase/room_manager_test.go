package usecase

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playgrid/tictactoe-server/internal/apperror"
	"github.com/playgrid/tictactoe-server/internal/entity"
	"github.com/playgrid/tictactoe-server/internal/monitor"
	"github.com/playgrid/tictactoe-server/internal/repository"
)

func newTestManager(t *testing.T) *RoomManager {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	repo := repository.NewMemoryRoomRepository(0, 0)
	t.Cleanup(repo.Stop)

	return NewRoomManager(logger, repo, monitor.New("test"))
}

// createStartedGame wires two connections into one ongoing room.
func createStartedGame(t *testing.T, manager *RoomManager) *entity.Room {
	t.Helper()
	ctx := context.Background()

	manager.Connect("alice-conn")
	manager.Connect("bob-conn")
	_, err := manager.SetNickname(ctx, "alice-conn", "alice")
	require.NoError(t, err)
	_, err = manager.SetNickname(ctx, "bob-conn", "bob")
	require.NoError(t, err)

	room, err := manager.CreateRoom(ctx, "alice-conn")
	require.NoError(t, err)

	room, err = manager.JoinRoom(ctx, "bob-conn", room.ID)
	require.NoError(t, err)

	return room
}

func TestRoomManager_SetNickname(t *testing.T) {
	ctx := context.Background()

	t.Run("Stores the nickname on the connection identity", func(t *testing.T) {
		// Given: a registered connection
		manager := newTestManager(t)
		manager.Connect("alice-conn")

		// When: the connection claims a nickname
		player, err := manager.SetNickname(ctx, "alice-conn", "alice")

		// Then: the nickname is stored on the connection identity
		require.NoError(t, err)
		assert.Equal(t, "alice", player.Nickname)
		assert.Equal(t, "alice-conn", player.ID)
	})

	t.Run("Nickname claimed mid-game reaches the stored room", func(t *testing.T) {
		// Given: an ongoing game
		manager := newTestManager(t)
		createStartedGame(t, manager)

		// When: the creator claims a new nickname after the game started
		_, err := manager.SetNickname(ctx, "alice-conn", "alice2")
		require.NoError(t, err)

		// Then: the next room payload carries the new nickname
		room, err := manager.MakeMove(ctx, "alice-conn", 0)
		require.NoError(t, err)
		assert.Equal(t, "alice2", room.Players[0].Nickname)
	})
}

func TestRoomManager_CreateRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates a single-participant room", func(t *testing.T) {
		// Given: a connection with a nickname
		manager := newTestManager(t)
		manager.Connect("alice-conn")
		_, err := manager.SetNickname(ctx, "alice-conn", "alice")
		require.NoError(t, err)

		// When: it creates a room
		room, err := manager.CreateRoom(ctx, "alice-conn")

		// Then: the room waits with one participant, the owner
		require.NoError(t, err)
		assert.NotEmpty(t, room.ID)
		require.Len(t, room.Players, 1)
		assert.Equal(t, "alice-conn", room.Players[0].ID)
		assert.Equal(t, "alice", room.Players[0].Nickname)
		assert.True(t, room.IsWaiting())
	})

	t.Run("Sequential creations never collide", func(t *testing.T) {
		// Given: two connections
		manager := newTestManager(t)
		manager.Connect("alice-conn")
		manager.Connect("bob-conn")

		// When: each creates a room
		first, err := manager.CreateRoom(ctx, "alice-conn")
		require.NoError(t, err)
		second, err := manager.CreateRoom(ctx, "bob-conn")
		require.NoError(t, err)

		// Then: the identifiers differ
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("A connection already in a room is rejected", func(t *testing.T) {
		// Given: a connection that owns a live room
		manager := newTestManager(t)
		manager.Connect("alice-conn")
		_, err := manager.CreateRoom(ctx, "alice-conn")
		require.NoError(t, err)

		// When: it tries to create another
		_, err = manager.CreateRoom(ctx, "alice-conn")

		// Then: it should return ErrAlreadyInRoom
		require.ErrorIs(t, err, apperror.ErrAlreadyInRoom)
	})
}

func TestRoomManager_JoinRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("Second join starts the game with the creator moving first", func(t *testing.T) {
		// Given: two connections and a waiting room
		manager := newTestManager(t)

		// When: the second connection joins
		room := createStartedGame(t, manager)

		// Then: the game is ongoing, creator is Players[0] and first mover
		assert.True(t, room.IsOngoing())
		require.Len(t, room.Players, 2)
		assert.Equal(t, "alice-conn", room.Players[0].ID)
		assert.Equal(t, "bob-conn", room.Players[1].ID)
		assert.Equal(t, "alice-conn", room.CurrentPlayer)
	})

	t.Run("Joining an unknown room id is rejected", func(t *testing.T) {
		// Given: a connection and no rooms
		manager := newTestManager(t)
		manager.Connect("bob-conn")

		// When: it joins a made-up id
		_, err := manager.JoinRoom(ctx, "bob-conn", "nope42")

		// Then: it should return ErrRoomNotFound
		require.ErrorIs(t, err, repository.ErrRoomNotFound)
	})

	t.Run("Joining a full room is rejected", func(t *testing.T) {
		// Given: an ongoing two-player room
		manager := newTestManager(t)
		room := createStartedGame(t, manager)

		// When: a third connection tries to join
		manager.Connect("carol-conn")
		_, err := manager.JoinRoom(ctx, "carol-conn", room.ID)

		// Then: it should return ErrRoomIsFull and the room keeps two players
		require.ErrorIs(t, err, apperror.ErrRoomIsFull)
		assert.Len(t, room.Players, 2)
	})
}

func TestRoomManager_MakeMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Moves alternate and update the board", func(t *testing.T) {
		// Given: an ongoing game
		manager := newTestManager(t)
		createStartedGame(t, manager)

		// When: both players trade opening moves
		room, err := manager.MakeMove(ctx, "alice-conn", 0)
		require.NoError(t, err)
		assert.Equal(t, "bob-conn", room.CurrentPlayer)

		room, err = manager.MakeMove(ctx, "bob-conn", 4)
		require.NoError(t, err)

		// Then: both marks are on the board and the turn is back with X
		assert.Equal(t, entity.MarkX, room.Board[0])
		assert.Equal(t, entity.MarkO, room.Board[4])
		assert.Equal(t, "alice-conn", room.CurrentPlayer)
	})

	t.Run("Out-of-turn move does not alter the board", func(t *testing.T) {
		// Given: an ongoing game with the creator to move
		manager := newTestManager(t)
		room := createStartedGame(t, manager)

		// When: the second player moves out of turn
		_, err := manager.MakeMove(ctx, "bob-conn", 0)

		// Then: it should return ErrNotYourTurn and leave the board empty
		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Equal(t, [9]string{}, room.Board)
	})

	t.Run("A connection outside any room is rejected", func(t *testing.T) {
		manager := newTestManager(t)
		manager.Connect("carol-conn")

		_, err := manager.MakeMove(ctx, "carol-conn", 0)

		require.ErrorIs(t, err, apperror.ErrNotInRoom)
	})

	t.Run("Winning line finishes the game", func(t *testing.T) {
		// Given: an ongoing game
		manager := newTestManager(t)
		createStartedGame(t, manager)

		// When: X completes the left column while O plays elsewhere
		var room *entity.Room
		var err error
		for _, move := range []struct {
			conn string
			cell int
		}{
			{"alice-conn", 0}, {"bob-conn", 1}, {"alice-conn", 3}, {"bob-conn", 2}, {"alice-conn", 6},
		} {
			room, err = manager.MakeMove(ctx, move.conn, move.cell)
			require.NoError(t, err)
		}

		// Then: the room is finished with X as the winner
		assert.True(t, room.IsFinished())
		assert.Equal(t, entity.MarkX, room.Winner)

		// And: further moves are rejected
		_, err = manager.MakeMove(ctx, "bob-conn", 8)
		require.ErrorIs(t, err, apperror.ErrGameFinished)
	})
}

func TestRoomManager_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()

	t.Run("Returned room is detached from subsequent events", func(t *testing.T) {
		// Given: an ongoing game
		manager := newTestManager(t)
		createStartedGame(t, manager)

		// When: the opponent moves after the first mover's event returned
		snapshot, err := manager.MakeMove(ctx, "alice-conn", 0)
		require.NoError(t, err)
		_, err = manager.MakeMove(ctx, "bob-conn", 4)
		require.NoError(t, err)

		// Then: the first mover's payload still shows the board as of its
		// own move
		assert.Equal(t, entity.MarkX, snapshot.Board[0])
		assert.Equal(t, entity.EmptyCell, snapshot.Board[4])
		assert.Equal(t, "bob-conn", snapshot.CurrentPlayer)
	})

	t.Run("Mutating a returned room does not alter the stored state", func(t *testing.T) {
		// Given: an ongoing game and a caller scribbling on its copy
		manager := newTestManager(t)
		room := createStartedGame(t, manager)
		room.Board[0] = entity.MarkO
		room.CurrentPlayer = "bob-conn"

		// When: the creator plays the cell the caller scribbled on
		_, err := manager.MakeMove(ctx, "alice-conn", 0)

		// Then: the stored room never saw the scribble
		require.NoError(t, err)
	})

	t.Run("Snapshots can be read while later moves are applied", func(t *testing.T) {
		// Given: an ongoing game
		manager := newTestManager(t)
		createStartedGame(t, manager)

		// When: each accepted move's snapshot is read by its own goroutine
		// while the players keep trading moves
		var wg sync.WaitGroup
		moves := []struct {
			conn string
			cell int
		}{
			{"alice-conn", 0}, {"bob-conn", 4}, {"alice-conn", 1}, {"bob-conn", 8}, {"alice-conn", 2},
		}

		for i, move := range moves {
			snapshot, err := manager.MakeMove(ctx, move.conn, move.cell)
			require.NoError(t, err)

			wantFilled := i + 1
			wg.Add(1)
			go func(room *entity.Room) {
				defer wg.Done()

				filled := 0
				for _, cell := range room.Board {
					if cell != entity.EmptyCell {
						filled++
					}
				}

				// Then: every snapshot is frozen at its own move
				assert.Equal(t, wantFilled, filled)
			}(snapshot)
		}

		wg.Wait()
	})
}

func TestRoomManager_RequestReplay(t *testing.T) {
	ctx := context.Background()

	t.Run("First requester produces a progress update", func(t *testing.T) {
		// Given: an ongoing game
		manager := newTestManager(t)
		createStartedGame(t, manager)

		// When: one player requests a replay
		room, restarted, err := manager.RequestReplay(ctx, "alice-conn")

		// Then: no reset yet, one participant ready
		require.NoError(t, err)
		assert.False(t, restarted)
		assert.Len(t, room.ReadyForReplay, 1)
	})

	t.Run("Second distinct requester fires the reset", func(t *testing.T) {
		// Given: a game where the creator already requested a replay
		manager := newTestManager(t)
		createStartedGame(t, manager)
		_, _, err := manager.RequestReplay(ctx, "alice-conn")
		require.NoError(t, err)

		// When: the second player requests one as well
		room, restarted, err := manager.RequestReplay(ctx, "bob-conn")

		// Then: the board resets, the order reverses, B moves first
		require.NoError(t, err)
		assert.True(t, restarted)
		assert.Equal(t, [9]string{}, room.Board)
		assert.Equal(t, "bob-conn", room.Players[0].ID)
		assert.Equal(t, "alice-conn", room.Players[1].ID)
		assert.Equal(t, "bob-conn", room.CurrentPlayer)
		assert.Empty(t, room.ReadyForReplay)
	})

	t.Run("A connection outside any room is rejected", func(t *testing.T) {
		manager := newTestManager(t)
		manager.Connect("carol-conn")

		_, _, err := manager.RequestReplay(ctx, "carol-conn")

		require.ErrorIs(t, err, apperror.ErrNotInRoom)
	})
}

func TestRoomManager_Disconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("Disconnect tears the whole room down", func(t *testing.T) {
		// Given: an ongoing game
		manager := newTestManager(t)
		room := createStartedGame(t, manager)

		// When: the creator disconnects
		gone, err := manager.Disconnect(ctx, "alice-conn")

		// Then: the deleted room is reported for the playerLeft broadcast
		require.NoError(t, err)
		require.NotNil(t, gone)
		assert.Equal(t, room.ID, gone.ID)

		// And: joining the dead room id is rejected as not found
		manager.Connect("carol-conn")
		_, err = manager.JoinRoom(ctx, "carol-conn", room.ID)
		require.ErrorIs(t, err, repository.ErrRoomNotFound)
	})

	t.Run("Survivor can create a fresh room afterwards", func(t *testing.T) {
		// Given: a game whose creator dropped
		manager := newTestManager(t)
		createStartedGame(t, manager)
		_, err := manager.Disconnect(ctx, "alice-conn")
		require.NoError(t, err)

		// When: the survivor starts over
		room, err := manager.CreateRoom(ctx, "bob-conn")

		// Then: a new single-participant room exists
		require.NoError(t, err)
		require.Len(t, room.Players, 1)
		assert.Equal(t, "bob-conn", room.Players[0].ID)
	})

	t.Run("Disconnect without a room is a no-op", func(t *testing.T) {
		manager := newTestManager(t)
		manager.Connect("alice-conn")

		room, err := manager.Disconnect(ctx, "alice-conn")

		require.NoError(t, err)
		assert.Nil(t, room)
	})

	t.Run("Unknown connection is a no-op", func(t *testing.T) {
		manager := newTestManager(t)

		room, err := manager.Disconnect(ctx, "ghost-conn")

		require.NoError(t, err)
		assert.Nil(t, room)
	})
}

package entity

import (
	"fmt"
	"time"

	"github.com/playgrid/tictactoe-server/internal/apperror"
)

const (
	StatusFinished = "finished"
	StatusOngoing  = "ongoing"
	StatusWaiting  = "waiting"

	MarkX   = "X"
	MarkO   = "O"
	MarkTie = "-"

	EmptyCell = ""

	MaxPlayers = 2
)

// WinCombos are the 8 winning lines over the flattened 3x3 board:
// 3 rows, 3 columns, 2 diagonals.
var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Room groups the two connections playing one match together with the
// board and turn state. Player order is meaningful: Players[0] always
// plays X and Players[1] always O; the order only changes on a rematch
// reset, which is how the first mover alternates between rounds.
type Room struct {
	ID             string    `json:"id"`
	Players        []*Player `json:"players,omitempty"`
	Board          [9]string `json:"board"`
	CurrentPlayer  string    `json:"current_player,omitempty"`
	Status         string    `json:"status"`
	Winner         string    `json:"winner,omitempty"`
	ReadyForReplay []string  `json:"ready_for_replay,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

func NewRoom(id string) *Room {
	now := time.Now()

	return &Room{
		ID:           id,
		Board:        [9]string{},
		Status:       StatusWaiting,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Clone returns a deep copy of the room. Repositories hand out clones so
// a caller can read its copy without synchronizing against later events
// mutating the stored state.
func (that *Room) Clone() *Room {
	clone := *that

	if that.Players != nil {
		clone.Players = make([]*Player, len(that.Players))
		for i, player := range that.Players {
			copied := *player
			clone.Players[i] = &copied
		}
	}

	if that.ReadyForReplay != nil {
		clone.ReadyForReplay = append([]string(nil), that.ReadyForReplay...)
	}

	return &clone
}

// AddPlayer appends a player to the room. When the second player arrives
// the game starts and the room creator moves first.
func (that *Room) AddPlayer(player *Player) error {
	if len(that.Players) >= MaxPlayers {
		return fmt.Errorf("%w: room %s", apperror.ErrRoomIsFull, that.ID)
	}

	player.RoomID = that.ID
	that.Players = append(that.Players, player)

	if len(that.Players) == MaxPlayers {
		that.Status = StatusOngoing
		that.CurrentPlayer = that.Players[0].ID
	}

	that.Touch()

	return nil
}

// MarkOf derives a player's mark from its position: Players[0] is X,
// Players[1] is O. Recomputed on every move rather than stored.
func (that *Room) MarkOf(playerID string) string {
	if len(that.Players) > 0 && that.Players[0].ID == playerID {
		return MarkX
	}

	return MarkO
}

// Opponent returns the other participant, or nil if there is none.
func (that *Room) Opponent(playerID string) *Player {
	for _, player := range that.Players {
		if player.ID != playerID {
			return player
		}
	}

	return nil
}

func (that *Room) HasPlayer(playerID string) bool {
	for _, player := range that.Players {
		if player.ID == playerID {
			return true
		}
	}

	return false
}

// MakeTurn validates and applies a move by the given player. On a valid
// move the cell receives the player's mark and the turn passes to the
// opponent; a terminal board flips the room into StatusFinished.
func (that *Room) MakeTurn(playerID string, cell int) error {
	if that.IsFinished() {
		return apperror.ErrGameFinished
	}

	if that.IsWaiting() {
		return apperror.ErrGameIsNotStarted
	}

	if that.CurrentPlayer != playerID {
		return apperror.ErrNotYourTurn
	}

	if cell < 0 || cell >= len(that.Board) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if that.Board[cell] != EmptyCell {
		return fmt.Errorf("%w: cell %d", apperror.ErrCellOccupied, cell)
	}

	that.Board[cell] = that.MarkOf(playerID)

	if opponent := that.Opponent(playerID); opponent != nil {
		that.CurrentPlayer = opponent.ID
	}

	that.updateGameState()
	that.Touch()

	return nil
}

// DetermineGameResult returns the winning mark, MarkTie for a full board
// without a winner, or an empty string while the game is still open.
func (that *Room) DetermineGameResult() string {
	for _, combo := range WinCombos {
		a, b, c := that.Board[combo[0]], that.Board[combo[1]], that.Board[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return a
		}
	}

	for _, cell := range that.Board {
		if cell == EmptyCell {
			return ""
		}
	}

	return MarkTie
}

func (that *Room) updateGameState() {
	winner := that.DetermineGameResult()
	if winner == "" {
		return
	}

	that.Winner = winner
	that.Status = StatusFinished
	that.CurrentPlayer = ""
}

// MarkReadyForReplay records a participant's rematch request and returns
// how many participants are ready so far.
func (that *Room) MarkReadyForReplay(playerID string) int {
	if that.HasPlayer(playerID) && !that.isReadyForReplay(playerID) {
		that.ReadyForReplay = append(that.ReadyForReplay, playerID)
	}

	that.Touch()

	return len(that.ReadyForReplay)
}

func (that *Room) RemoveReadyForReplay(playerID string) {
	for i, id := range that.ReadyForReplay {
		if id == playerID {
			that.ReadyForReplay = append(that.ReadyForReplay[:i], that.ReadyForReplay[i+1:]...)
			return
		}
	}
}

func (that *Room) BothReadyForReplay() bool {
	return len(that.ReadyForReplay) == MaxPlayers
}

// ResetForReplay clears the board and reverses the player order, so the
// previous second player becomes Players[0], plays X and moves first.
func (that *Room) ResetForReplay() {
	that.Board = [9]string{}
	that.Players[0], that.Players[1] = that.Players[1], that.Players[0]
	that.CurrentPlayer = that.Players[0].ID
	that.Winner = ""
	that.Status = StatusOngoing
	that.ReadyForReplay = nil
	that.Touch()
}

func (that *Room) IsFull() bool {
	return len(that.Players) >= MaxPlayers
}

func (that *Room) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *Room) IsOngoing() bool {
	return that.Status == StatusOngoing
}

func (that *Room) IsWaiting() bool {
	return that.Status == StatusWaiting
}

// Touch refreshes the activity timestamp consulted by the idle reaper.
func (that *Room) Touch() {
	that.LastActivity = time.Now()
}

// IdleSince reports whether the room has seen no activity for at least ttl.
func (that *Room) IdleSince(now time.Time, ttl time.Duration) bool {
	return now.Sub(that.LastActivity) >= ttl
}

func (that *Room) isReadyForReplay(playerID string) bool {
	for _, id := range that.ReadyForReplay {
		if id == playerID {
			return true
		}
	}

	return false
}

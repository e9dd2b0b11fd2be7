package websocket

import (
	"encoding/json"

	"github.com/playgrid/tictactoe-server/internal/entity"
)

// Inbound actions (client -> server).
const (
	ActionSetNickname   = "setNickname"
	ActionCreateRoom    = "createRoom"
	ActionJoinRoom      = "joinRoom"
	ActionMakeMove      = "makeMove"
	ActionRequestReplay = "requestReplay"
)

// Outbound actions (server -> client/room).
const (
	ActionConnected   = "connected"
	ActionNicknameSet = "nicknameSet"
	ActionRoomCreated = "roomCreated"
	ActionGameStart   = "gameStart"
	ActionUpdateBoard = "updateBoard"
	ActionGameEnd     = "gameEnd"
	ActionPlayerReady = "playerReadyForReplay"
	ActionGameRestart = "gameRestart"
	ActionPlayerLeft  = "playerLeft"
	ActionError       = "error"
)

// Message is the wire envelope for both directions.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SetNicknamePayload struct {
	Nickname string `json:"nickname"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type MakeMovePayload struct {
	Index int `json:"index"`
}

type ConnectedPayload struct {
	ID string `json:"id"`
}

type NicknameSetPayload struct {
	Nickname string `json:"nickname"`
}

type RoomCreatedPayload struct {
	RoomID string `json:"roomId"`
}

// PlayerInfo is the participant view shared with both room members.
type PlayerInfo struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname,omitempty"`
}

type GameStartPayload struct {
	Players       []PlayerInfo `json:"players"`
	CurrentPlayer string       `json:"currentPlayer"`
}

type UpdateBoardPayload struct {
	Board         [9]string `json:"board"`
	CurrentPlayer string    `json:"currentPlayer,omitempty"`
}

// GameEndPayload carries the winning mark; an absent winner means a draw.
type GameEndPayload struct {
	Winner string `json:"winner,omitempty"`
}

type PlayerReadyPayload struct {
	ReadyPlayerID string `json:"readyPlayerId"`
	TotalReady    int    `json:"totalReady"`
}

type GameRestartPayload struct {
	Board         [9]string    `json:"board"`
	CurrentPlayer string       `json:"currentPlayer"`
	Players       []PlayerInfo `json:"players"`
}

type ErrorPayload struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

func playerInfos(room *entity.Room) []PlayerInfo {
	infos := make([]PlayerInfo, 0, len(room.Players))
	for _, player := range room.Players {
		infos = append(infos, PlayerInfo{ID: player.ID, Nickname: player.Nickname})
	}

	return infos
}

// gameEndPayload maps the internal draw mark to an absent winner on the
// wire, so clients distinguish a draw by the missing field.
func gameEndPayload(room *entity.Room) GameEndPayload {
	if room.Winner == entity.MarkTie {
		return GameEndPayload{}
	}

	return GameEndPayload{Winner: room.Winner}
}

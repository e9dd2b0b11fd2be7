package websocket

import (
	"context"
	"encoding/json"
	"fmt"
)

func (that *Server) handleSetNickname(ctx context.Context, c *client, payload json.RawMessage) error {
	var req SetNicknamePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	player, err := that.manager.SetNickname(ctx, c.id, req.Nickname)
	if err != nil {
		return fmt.Errorf("failed to set nickname: %w", err)
	}

	that.sendTo(c, ActionNicknameSet, NicknameSetPayload{Nickname: player.Nickname})

	return nil
}

func (that *Server) handleCreateRoom(ctx context.Context, c *client, _ json.RawMessage) error {
	room, err := that.manager.CreateRoom(ctx, c.id)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	that.joinGroup(room.ID, c)
	that.sendTo(c, ActionRoomCreated, RoomCreatedPayload{RoomID: room.ID})

	return nil
}

func (that *Server) handleJoinRoom(ctx context.Context, c *client, payload json.RawMessage) error {
	var req JoinRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	room, err := that.manager.JoinRoom(ctx, c.id, req.RoomID)
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	that.joinGroup(room.ID, c)
	that.broadcast(room.ID, ActionGameStart, GameStartPayload{
		Players:       playerInfos(room),
		CurrentPlayer: room.CurrentPlayer,
	})

	return nil
}

func (that *Server) handleMakeMove(ctx context.Context, c *client, payload json.RawMessage) error {
	var req MakeMovePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	room, err := that.manager.MakeMove(ctx, c.id, req.Index)
	if err != nil {
		return fmt.Errorf("failed to make move: %w", err)
	}

	that.broadcast(room.ID, ActionUpdateBoard, UpdateBoardPayload{
		Board:         room.Board,
		CurrentPlayer: room.CurrentPlayer,
	})

	if room.IsFinished() {
		that.broadcast(room.ID, ActionGameEnd, gameEndPayload(room))
	}

	return nil
}

func (that *Server) handleRequestReplay(ctx context.Context, c *client, _ json.RawMessage) error {
	room, restarted, err := that.manager.RequestReplay(ctx, c.id)
	if err != nil {
		return fmt.Errorf("failed to request replay: %w", err)
	}

	if restarted {
		that.broadcast(room.ID, ActionGameRestart, GameRestartPayload{
			Board:         room.Board,
			CurrentPlayer: room.CurrentPlayer,
			Players:       playerInfos(room),
		})

		return nil
	}

	that.broadcast(room.ID, ActionPlayerReady, PlayerReadyPayload{
		ReadyPlayerID: c.id,
		TotalReady:    len(room.ReadyForReplay),
	})

	return nil
}

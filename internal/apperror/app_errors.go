package apperror

import "errors"

var (
	ErrGameFinished     = errors.New("game is already finished")
	ErrGameIsNotStarted = errors.New("game is not started")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrCellOccupied     = errors.New("cell is already occupied")
	ErrInvalidCell      = errors.New("invalid cell index")
	ErrRoomIsFull       = errors.New("room already has two players")
	ErrAlreadyInRoom    = errors.New("player is already in a room")
	ErrNotInRoom        = errors.New("player is not in any room")
)

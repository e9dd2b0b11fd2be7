package entity

// Player is the identity of one websocket connection: its connection id,
// the nickname it claimed, and the single room it is associated with.
type Player struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname,omitempty"`
	RoomID   string `json:"room_id,omitempty"`
}

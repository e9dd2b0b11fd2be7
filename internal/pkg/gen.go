package pkg

import (
	"crypto/rand"
	"math/big"
)

// Alphabet without look-alike characters (0/O, 1/l/I) so room ids stay
// easy to read out loud to an opponent.
const (
	roomIDAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	roomIDLength   = 6
)

// GenerateRoomID - generates a short random identifier for a room.
func GenerateRoomID() string {
	id := make([]byte, roomIDLength)

	for i := range id {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomIDAlphabet))))
		if err != nil {
			return ""
		}

		id[i] = roomIDAlphabet[n.Int64()]
	}

	return string(id)
}

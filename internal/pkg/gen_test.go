package pkg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoomID(t *testing.T) {
	t.Run("Uses only the unambiguous alphabet", func(t *testing.T) {
		id := GenerateRoomID()

		require.Len(t, id, roomIDLength)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(roomIDAlphabet, r), "unexpected character %q", r)
		}
	})

	t.Run("Sequential ids do not collide", func(t *testing.T) {
		seen := make(map[string]struct{})

		for i := 0; i < 1000; i++ {
			id := GenerateRoomID()
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %q after %d draws", id, i)
			seen[id] = struct{}{}
		}
	})
}

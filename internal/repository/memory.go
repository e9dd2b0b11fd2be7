package repository

import (
	"context"
	"sync"
	"time"

	"github.com/playgrid/tictactoe-server/internal/entity"
)

// MemoryRoomRepository is the default registry backend: a mutex-guarded
// map with a janitor goroutine that evicts rooms idle longer than ttl, so
// abandoned rooms do not accumulate for the lifetime of the process.
//
// Rooms are cloned on both Save and GetByID, mirroring the JSON
// round-trip of the redis backend: the stored state is only ever touched
// under the repository lock, and callers own the copies they get back.
type MemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*entity.Room

	ttl  time.Duration
	done chan struct{}
	once sync.Once
}

func NewMemoryRoomRepository(ttl, reapInterval time.Duration) *MemoryRoomRepository {
	repo := &MemoryRoomRepository{
		rooms: make(map[string]*entity.Room),
		ttl:   ttl,
		done:  make(chan struct{}),
	}

	if ttl > 0 && reapInterval > 0 {
		go repo.janitor(reapInterval)
	}

	return repo
}

func (that *MemoryRoomRepository) Save(_ context.Context, room *entity.Room) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.rooms[room.ID] = room.Clone()

	return nil
}

func (that *MemoryRoomRepository) GetByID(_ context.Context, id string) (*entity.Room, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	room, ok := that.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room.Clone(), nil
}

func (that *MemoryRoomRepository) DeleteByID(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.rooms, id)

	return nil
}

// Len reports the number of live rooms.
func (that *MemoryRoomRepository) Len() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.rooms)
}

// Stop halts the janitor goroutine. Safe to call more than once.
func (that *MemoryRoomRepository) Stop() {
	that.once.Do(func() {
		close(that.done)
	})
}

func (that *MemoryRoomRepository) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-that.done:
			return
		case now := <-ticker.C:
			that.reapIdle(now)
		}
	}
}

func (that *MemoryRoomRepository) reapIdle(now time.Time) int {
	that.mu.Lock()
	defer that.mu.Unlock()

	reaped := 0

	for id, room := range that.rooms {
		if room.IdleSince(now, that.ttl) {
			delete(that.rooms, id)
			reaped++
		}
	}

	return reaped
}

// Package prefs persists small per-user client preferences, such as the
// last visited room, in a durable key-value store.
package prefs

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func LastVisitedRoomKey(userId string) string {
	return "lastVisitedRoom_" + userId
}

// Preferences is the typed view over a KeyValueStore.
type Preferences struct {
	kv KeyValueStore
}

func New(kv KeyValueStore) *Preferences {
	return &Preferences{kv: kv}
}

func (p *Preferences) LastVisitedRoom(ctx context.Context, userId string) (string, error) {
	if userId == "" {
		return "", nil
	}

	v, ok, err := p.kv.Get(ctx, LastVisitedRoomKey(userId))
	if err != nil {
		return "", fmt.Errorf("get last visited room: %w", err)
	}
	if !ok {
		return "", nil
	}

	return v, nil
}

func (p *Preferences) SetLastVisitedRoom(ctx context.Context, userId, roomId string) error {
	if userId == "" {
		return nil
	}

	if roomId == "" {
		return p.kv.Delete(ctx, LastVisitedRoomKey(userId))
	}

	if err := p.kv.Set(ctx, LastVisitedRoomKey(userId), roomId); err != nil {
		return fmt.Errorf("set last visited room: %w", err)
	}

	return nil
}

func (p *Preferences) Close() error {
	return p.kv.Close()
}

// Open picks a backend from dsn: "memory", "redis://..." or a SQLite path.
func Open(ctx context.Context, dsn string) (KeyValueStore, error) {
	switch {
	case dsn == "" || dsn == "memory":
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return NewRedisStore(ctx, dsn)
	default:
		return NewSQLiteStore(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	}
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

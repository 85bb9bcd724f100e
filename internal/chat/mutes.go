// internal/chat/mutes.go
package chat

import (
	"context"
	"slices"
	"sync"
)

// MuteStore persists each user's mute list, keyed by display name. Load returns
// an empty list and a nil error when the owner has no record. Save replaces the
// whole record.
type MuteStore interface {
	Load(ctx context.Context, owner string) ([]string, error)
	Save(ctx context.Context, owner string, muted []string) error
}

// MemoryMuteStore keeps mute lists in process memory. Used by tests and by
// MUTE_STORE=memory deployments where mutes only need to outlive a reconnect.
type MemoryMuteStore struct {
	mu    sync.Mutex
	lists map[string][]string
}

// NewMemoryMuteStore returns an empty in-memory store.
func NewMemoryMuteStore() *MemoryMuteStore {
	return &MemoryMuteStore{lists: make(map[string][]string)}
}

func (m *MemoryMuteStore) Load(_ context.Context, owner string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.lists[owner]), nil
}

func (m *MemoryMuteStore) Save(_ context.Context, owner string, muted []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[owner] = slices.Clone(muted)
	return nil
}

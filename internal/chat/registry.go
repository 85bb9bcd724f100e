// internal/chat/registry.go
package chat

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// LobbyName is the permanent room every session lands in after its handshake.
const LobbyName = "lobby"

const defaultStoreTimeout = 5 * time.Second

// Registry is the process-wide directory of rooms. It is built once at startup
// and shared by every Room; it always contains the lobby.
type Registry struct {
	store        MuteStore
	storeTimeout time.Duration
	log          logrus.FieldLogger
	lastID       atomic.Int64

	mu    sync.Mutex
	rooms map[string]*Room
	lobby *Room
}

// Option customizes a Registry.
type Option func(*Registry)

// WithStoreTimeout bounds every mute-list load and save.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

// NewRegistry creates the registry and its lobby.
func NewRegistry(store MuteStore, logger logrus.FieldLogger, opts ...Option) *Registry {
	r := &Registry{
		store:        store,
		storeTimeout: defaultStoreTimeout,
		log:          logger,
		rooms:        make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lobby = newRoom(LobbyName, r, logger)
	r.rooms[LobbyName] = r.lobby
	return r
}

// Lobby returns the permanent lobby room.
func (r *Registry) Lobby() *Room {
	return r.lobby
}

// Room looks a room up by its exact name.
func (r *Registry) Room(name string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	return room, ok
}

// CreateRoom adds an empty running room. It returns false if the name is empty
// or already taken. Names are compared case-sensitively.
func (r *Registry) CreateRoom(name string) bool {
	if name == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[name]; exists {
		return false
	}
	r.rooms[name] = newRoom(name, r, r.log)
	return true
}

// JoinRoom moves s from its current room into the room called name. It returns
// false if no such room exists. If the target closes before s gets in, s is
// parked in the lobby so it is never left without a room.
func (r *Registry) JoinRoom(name string, s *Session) bool {
	target, ok := r.Room(name)
	if !ok {
		return false
	}

	current := s.CurrentRoom()
	if current == target && target.hasMember(s) {
		return true
	}
	if current != nil {
		current.RemoveMember(s)
	}
	if target.AddMember(s) {
		return true
	}
	if target != r.lobby {
		r.lobby.AddMember(s)
	}
	return false
}

// RemoveRoom unregisters room. Absent rooms and the lobby are ignored.
func (r *Registry) RemoveRoom(room *Room) {
	if room == r.lobby {
		r.log.Warn("refusing to remove the lobby")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room.Name()] == room {
		delete(r.rooms, room.Name())
		r.log.Infof("room %s removed", room.Name())
	}
}

// ListRooms returns the sorted names of all rooms whose name contains query.
// An empty query lists every room.
func (r *Registry) ListRooms(query string) []string {
	r.mu.Lock()
	names := lo.Keys(r.rooms)
	r.mu.Unlock()

	names = lo.Filter(names, func(name string, _ int) bool {
		return strings.Contains(name, query)
	})
	slices.Sort(names)
	return names
}

// NewSession wraps a freshly accepted transport. The session joins the lobby
// once its handshake sets a display name.
func (r *Registry) NewSession(t Transport, logger logrus.FieldLogger) *Session {
	return newSession(t, r.store, r.storeTimeout, logger, r.SessionReady)
}

// SessionReady issues s its id, tells the client, and puts s in the lobby.
func (r *Registry) SessionReady(s *Session) {
	s.assignID(r.lastID.Add(1))
	s.SendClientID()
	r.JoinRoom(LobbyName, s)
}

// Shutdown disconnects every session in every room, the lobby last.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	rooms := lo.Values(r.rooms)
	r.mu.Unlock()

	for _, room := range rooms {
		if room != r.lobby {
			room.DisconnectAll()
		}
	}
	r.lobby.DisconnectAll()
	r.log.Info("registry shut down")
}

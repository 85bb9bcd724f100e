// internal/chat/session.go
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jason-s-yu/parley/internal/payload"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// ErrInvalidArgument is returned when a required identity field is missing.
var ErrInvalidArgument = errors.New("invalid argument")

// Transport is the duplex channel to one client. Send must not block; false
// means the peer is gone.
type Transport interface {
	Send(p payload.Payload) bool
	Close()
}

// Session is the server-side handle of one connected client: its identity, its
// mute list and the room it is currently in.
type Session struct {
	transport    Transport
	store        MuteStore
	storeTimeout time.Duration
	onReady      func(*Session)
	readyOnce    sync.Once
	log          logrus.FieldLogger

	mu     sync.Mutex
	id     int64
	name   string
	room   *Room
	muted  map[string]struct{}
	closed bool
}

func newSession(t Transport, store MuteStore, storeTimeout time.Duration, logger logrus.FieldLogger, onReady func(*Session)) *Session {
	return &Session{
		transport:    t,
		store:        store,
		storeTimeout: storeTimeout,
		onReady:      onReady,
		log:          logger,
		id:           payload.SystemID,
		muted:        make(map[string]struct{}),
	}
}

// ID returns the server-issued id, or payload.SystemID before the handshake completes.
func (s *Session) ID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Name returns the display name, empty before the handshake.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// CurrentRoom returns the room the session is in, or nil.
func (s *Session) CurrentRoom() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) logger() logrus.FieldLogger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.WithFields(logrus.Fields{"client_id": s.id, "client_name": s.name})
}

func (s *Session) assignID(id int64) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// SetDisplayName records the client's name, loads its persisted mute list and
// fires the ready callback. The name can only be set once.
func (s *Session) SetDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: display name is empty", ErrInvalidArgument)
	}

	s.mu.Lock()
	if s.name != "" {
		current := s.name
		s.mu.Unlock()
		return fmt.Errorf("%w: display name already set to %q", ErrInvalidArgument, current)
	}
	s.name = name
	s.mu.Unlock()

	s.loadMutes(name)

	s.readyOnce.Do(func() {
		if s.onReady != nil {
			s.onReady(s)
		}
	})
	return nil
}

// SetCurrentRoom points the session at room. It keeps no history.
func (s *Session) SetCurrentRoom(room *Room) error {
	if room == nil {
		return fmt.Errorf("%w: room is nil", ErrInvalidArgument)
	}
	s.setRoom(room)
	return nil
}

func (s *Session) setRoom(room *Room) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
}

// Disconnect clears the room reference and closes the transport. Safe to call
// more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.room = nil
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()

	if !alreadyClosed {
		s.logger().Info("session disconnected")
	}
	s.transport.Close()
}

// --- mute list ---

func (s *Session) loadMutes(owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()

	names, err := s.store.Load(ctx, owner)
	if err != nil {
		s.logger().Warnf("failed to load mute list, starting empty: %v", err)
		names = nil
	}

	s.mu.Lock()
	s.muted = make(map[string]struct{}, len(names))
	for _, n := range names {
		s.muted[n] = struct{}{}
	}
	s.mu.Unlock()

	s.logger().Debugf("loaded %d muted names", len(names))
}

// MuteByName adds name to the mute list. It returns false if name was already
// muted. On success the list is persisted and the muted user is told.
func (s *Session) MuteByName(name string) bool {
	return s.updateMute(name, true)
}

// UnmuteByName removes name from the mute list. It returns false if name was not muted.
func (s *Session) UnmuteByName(name string) bool {
	return s.updateMute(name, false)
}

func (s *Session) updateMute(name string, mute bool) bool {
	s.mu.Lock()
	_, present := s.muted[name]
	if present == mute {
		s.mu.Unlock()
		return false
	}
	if mute {
		s.muted[name] = struct{}{}
	} else {
		delete(s.muted, name)
	}
	owner := s.name
	room := s.room
	snapshot := lo.Keys(s.muted)
	s.mu.Unlock()

	slices.Sort(snapshot)
	s.saveMutes(owner, snapshot)

	verb := "unmuted"
	if mute {
		verb = "muted"
	}
	s.logger().Infof("%s %s", verb, name)
	if room != nil {
		room.SendPrivateSystemMessage(name, fmt.Sprintf("%s %s you", owner, verb))
	}
	return true
}

func (s *Session) saveMutes(owner string, names []string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()
	if err := s.store.Save(ctx, owner, names); err != nil {
		s.logger().Errorf("failed to save mute list: %v", err)
	}
}

// IsMuted reports whether broadcasts from name are ignored by this session.
func (s *Session) IsMuted(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.muted[name]
	return ok
}

// MutedNames returns the mute list in ascending order.
func (s *Session) MutedNames() []string {
	s.mu.Lock()
	names := lo.Keys(s.muted)
	s.mu.Unlock()
	slices.Sort(names)
	return names
}

// --- inbound dispatch ---

// ProcessPayload routes one decoded client payload. Invalid or unexpected
// payloads are logged and dropped without closing the connection.
func (s *Session) ProcessPayload(p payload.Payload) {
	if err := payload.Validate(p); err != nil {
		s.logger().Warnf("dropping payload: %v", err)
		s.SendSystemMessage("Invalid payload")
		return
	}

	if c, ok := p.(*payload.Connect); ok {
		if err := s.SetDisplayName(c.ClientName); err != nil {
			s.logger().Warnf("rejected handshake: %v", err)
			s.SendSystemMessage("Invalid handshake")
		}
		return
	}

	room := s.CurrentRoom()
	if room == nil {
		s.logger().Warnf("dropping %s payload received outside of a room", p.Kind())
		return
	}

	switch v := p.(type) {
	case *payload.Message:
		room.Broadcast(s, v.Message)
	case *payload.PrivateMessage:
		room.PrivateMessage(s, targetOf(v.Header()), v.Message)
	case *payload.RoomCreate:
		room.HandleCreateRoom(s, v.Message)
	case *payload.RoomJoin:
		room.HandleJoinRoom(s, v.Message)
	case *payload.RoomList:
		room.HandleListRooms(s, v.Message)
	case *payload.Disconnect:
		room.DisconnectMember(s)
		s.Disconnect()
	case *payload.Mute:
		room.HandleMute(s, targetOf(v.Header()))
	case *payload.Unmute:
		room.HandleUnmute(s, targetOf(v.Header()))
	case *payload.Roll:
		room.HandleRoll(s, v)
	case *payload.Flip:
		room.HandleFlip(s)
	case *payload.RoomAction, *payload.ClientSync, *payload.ClientID, *payload.RoomResults:
		s.logger().Warnf("dropping server-only %s payload from client", p.Kind())
	default:
		s.logger().Warnf("dropping unhandled %s payload", p.Kind())
	}
}

func targetOf(c *payload.Common) int64 {
	if id, ok := c.Target(); ok {
		return id
	}
	return payload.SystemID
}

// --- outbound helpers ---

// SendMessage delivers text attributed to senderID.
func (s *Session) SendMessage(senderID int64, text string) bool {
	return s.transport.Send(&payload.Message{Common: payload.Common{SenderID: senderID, Message: text}})
}

// SendSystemMessage delivers a server-originated message.
func (s *Session) SendSystemMessage(text string) bool {
	return s.SendMessage(payload.SystemID, text)
}

// SendRoomAction tells the client that clientID joined or left room.
func (s *Session) SendRoomAction(clientID int64, clientName, room string, joined bool) bool {
	return s.transport.Send(&payload.RoomAction{
		Common:     payload.Common{SenderID: clientID, Message: room},
		ClientName: clientName,
		Room:       room,
		Joined:     joined,
	})
}

// SendClientSync describes an existing member of room to the client.
func (s *Session) SendClientSync(clientID int64, clientName, room string) bool {
	return s.transport.Send(&payload.ClientSync{
		Common:     payload.Common{SenderID: payload.SystemID},
		ClientID:   clientID,
		ClientName: clientName,
		Room:       room,
	})
}

// SendClientID tells the client its own id.
func (s *Session) SendClientID() bool {
	s.mu.Lock()
	id, name := s.id, s.name
	s.mu.Unlock()
	return s.transport.Send(&payload.ClientID{
		Common:     payload.Common{SenderID: payload.SystemID},
		ClientID:   id,
		ClientName: name,
	})
}

// SendDisconnect tells the client that clientID was disconnected.
func (s *Session) SendDisconnect(clientID int64, clientName string) bool {
	return s.transport.Send(&payload.Disconnect{
		Common:     payload.Common{SenderID: payload.SystemID},
		ClientID:   clientID,
		ClientName: clientName,
	})
}

// SendRooms answers a room listing.
func (s *Session) SendRooms(rooms []string) bool {
	return s.transport.Send(&payload.RoomResults{
		Common: payload.Common{SenderID: payload.SystemID},
		Rooms:  rooms,
	})
}

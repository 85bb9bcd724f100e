// internal/chat/room.go
package chat

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/jason-s-yu/parley/internal/markup"
	"github.com/jason-s-yu/parley/internal/payload"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// intN draws a uniform integer in [0, n). Swapped out by tests.
var intN = rand.IntN

// Room is a named group of sessions sharing a broadcast scope.
//
// Every membership change and every delivery runs under mu. Methods suffixed
// Locked assume mu is held; cleanup triggered by a failed delivery goes through
// them so the lock is never taken twice.
type Room struct {
	name     string
	registry *Registry
	log      logrus.FieldLogger

	mu      sync.Mutex
	running bool
	members map[int64]*Session
}

func newRoom(name string, registry *Registry, logger logrus.FieldLogger) *Room {
	r := &Room{
		name:     name,
		registry: registry,
		log:      logger.WithField("room", name),
		running:  true,
		members:  make(map[int64]*Session),
	}
	r.log.Info("created")
	return r
}

// Name returns the room's unique name.
func (r *Room) Name() string { return r.name }

// Running reports whether the room still accepts operations.
func (r *Room) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Size returns the number of members.
func (r *Room) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Members returns a snapshot of the current members.
func (r *Room) Members() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Values(r.members)
}

func (r *Room) member(id int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.members[id]
	return s, ok
}

func (r *Room) hasMember(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[s.ID()] == s
}

// --- membership ---

// AddMember registers s, announces it to the existing members and then sends s
// a snapshot of everyone else. It returns false when the room is closed or s is
// not a fully initialized session.
func (r *Room) AddMember(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return false
	}
	id, name := s.ID(), s.Name()
	if id == payload.SystemID || name == "" || s.Closed() {
		r.log.Warnf("refusing uninitialized or closed session %d", id)
		return false
	}
	if _, exists := r.members[id]; exists {
		r.log.Warnf("attempted to add client %s[%d] that is already in the room", name, id)
		return true
	}

	r.members[id] = s
	s.setRoom(r)

	failed := r.deliverLocked(func(m *Session) bool {
		if m == s {
			return true
		}
		return m.SendRoomAction(id, name, r.name, true)
	})

	for _, m := range r.members {
		if m == s {
			continue
		}
		if !s.SendClientSync(m.ID(), m.Name(), r.name) {
			failed = append(failed, s)
			break
		}
	}

	r.log.Infof("%s[%d] joined", name, id)
	r.dropLocked(failed)
	return true
}

// RemoveMember takes s out of the room for a normal room switch. Everyone,
// including s, is told before the entry is removed.
func (r *Room) RemoveMember(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	id, name := s.ID(), s.Name()
	if r.members[id] != s {
		return
	}

	failed := r.deliverLocked(func(m *Session) bool {
		return m.SendRoomAction(id, name, r.name, false)
	})
	delete(r.members, id)
	r.log.Infof("%s[%d] left, %d remaining", name, id, len(r.members))

	r.dropLocked(failed)
	r.autoCloseLocked()
}

// DisconnectMember tears s down: the room is told, the session closes its
// transport and its entry is removed whether or not the notice got through.
func (r *Room) DisconnectMember(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.disconnectLocked(s)
	r.autoCloseLocked()
}

// DisconnectAll disconnects every member. Used when the process shuts down.
func (r *Room) DisconnectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.log.Info("disconnect all triggered")
	for _, m := range lo.Values(r.members) {
		r.disconnectLocked(m)
	}
	r.autoCloseLocked()
	r.log.Info("disconnect all finished")
}

func (r *Room) disconnectLocked(s *Session) {
	id, name := s.ID(), s.Name()
	failed := r.deliverLocked(func(m *Session) bool {
		return m.SendDisconnect(id, name)
	})
	s.Disconnect()
	delete(r.members, id)
	r.log.Infof("%s[%d] disconnected, %d remaining", name, id, len(r.members))
	r.dropLocked(failed)
}

// Close shuts the room down. Remaining members are told and moved to the
// lobby; nobody is dropped. The lobby itself cannot be closed.
func (r *Room) Close() {
	if r.name == LobbyName {
		r.log.Warn("refusing to close the lobby")
		return
	}

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	var migrating []*Session
	if len(r.members) > 0 {
		r.broadcastLocked(nil, "Room is shutting down, migrating to lobby")
		migrating = lo.Values(r.members)
	}
	r.running = false
	clear(r.members)
	r.mu.Unlock()

	if len(migrating) > 0 {
		r.log.Infof("migrating %d clients", len(migrating))
	}
	for _, s := range migrating {
		r.registry.JoinRoom(LobbyName, s)
	}
	r.registry.RemoveRoom(r)
	r.log.Info("closed")
}

// autoCloseLocked closes an empty room other than the lobby. Nobody is left to
// migrate, so it only has to flip the state and unregister.
func (r *Room) autoCloseLocked() {
	if !r.running || r.name == LobbyName || len(r.members) > 0 {
		return
	}
	r.running = false
	r.registry.RemoveRoom(r)
	r.log.Info("empty, closed")
}

// --- delivery ---

// deliverLocked calls send for every member and returns the members whose delivery failed.
func (r *Room) deliverLocked(send func(m *Session) bool) []*Session {
	var failed []*Session
	for _, m := range lo.Values(r.members) {
		if !send(m) {
			failed = append(failed, m)
		}
	}
	return failed
}

// dropLocked treats every failed member as disconnected. Announcing a drop can
// itself fail, so the queue grows until every peer left is reachable.
func (r *Room) dropLocked(failed []*Session) {
	for len(failed) > 0 {
		m := failed[0]
		failed = failed[1:]

		id, name := m.ID(), m.Name()
		if r.members[id] != m {
			continue
		}
		delete(r.members, id)
		m.Disconnect()
		r.log.Infof("removing disconnected client %s[%d]", name, id)

		failed = append(failed, r.deliverLocked(func(o *Session) bool {
			return o.SendDisconnect(id, name)
		})...)
	}
	r.autoCloseLocked()
}

// Broadcast formats text once and delivers it to every member that does not
// mute the sender. A nil sender marks a system message.
func (r *Room) Broadcast(sender *Session, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(sender, text)
}

func (r *Room) broadcastLocked(sender *Session, text string) {
	if !r.running {
		return
	}

	formatted := markup.Format(text)
	senderID, senderName := payload.SystemID, ""
	if sender != nil {
		senderID, senderName = sender.ID(), sender.Name()
	}

	r.log.Debugf("sending message to %d recipients: %s", len(r.members), formatted)
	failed := r.deliverLocked(func(m *Session) bool {
		if sender != nil && m.IsMuted(senderName) {
			r.log.Debugf("message from %s skipped for %s due to mute", senderName, m.Name())
			return true
		}
		return m.SendMessage(senderID, formatted)
	})
	r.dropLocked(failed)
}

// PrivateMessage sends text from sender to the member targetID. The sender
// always gets the echo; the target does not receive it while muting the sender.
func (r *Room) PrivateMessage(sender *Session, targetID int64, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	target, ok := r.members[targetID]
	if !ok {
		sender.SendSystemMessage("User not found in this room.")
		return
	}

	senderID, senderName := sender.ID(), sender.Name()
	msg := fmt.Sprintf("[Private] %s: %s", senderName, markup.Format(text))

	var failed []*Session
	if !sender.SendMessage(senderID, msg) {
		failed = append(failed, sender)
	}
	switch {
	case target == sender:
	case target.IsMuted(senderName):
		r.log.Debugf("private message from %s to %s skipped due to mute", senderName, target.Name())
	case !target.SendMessage(senderID, msg):
		failed = append(failed, target)
	}
	r.dropLocked(failed)
}

// SendPrivateSystemMessage delivers a system message to the member named targetName, if present.
func (r *Room) SendPrivateSystemMessage(targetName, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	target, ok := lo.Find(lo.Values(r.members), func(m *Session) bool {
		return m.Name() == targetName
	})
	if !ok {
		return
	}
	if !target.SendSystemMessage(text) {
		r.dropLocked([]*Session{target})
	}
}

// --- commands ---

// HandleCreateRoom creates the room and moves sender into it.
func (r *Room) HandleCreateRoom(sender *Session, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		sender.SendSystemMessage("Room name can't be empty")
		return
	}
	if !r.registry.CreateRoom(name) {
		sender.SendSystemMessage(fmt.Sprintf("Room %s already exists", name))
		return
	}
	r.enterCreated(sender, name)
}

// enterCreated moves sender into the room it just created. The room can close
// before sender gets in; sender is then told and stays in (or falls back to) the lobby.
func (r *Room) enterCreated(sender *Session, name string) {
	if !r.registry.JoinRoom(name, sender) {
		sender.SendSystemMessage(fmt.Sprintf("Room %s closed before you could join", name))
	}
}

// HandleJoinRoom moves sender into an existing room.
func (r *Room) HandleJoinRoom(sender *Session, name string) {
	name = strings.TrimSpace(name)
	if !r.registry.JoinRoom(name, sender) {
		sender.SendSystemMessage(fmt.Sprintf("Room %s doesn't exist", name))
	}
}

// HandleListRooms sends sender the room names containing query.
func (r *Room) HandleListRooms(sender *Session, query string) {
	sender.SendRooms(r.registry.ListRooms(query))
}

// HandleRoll fills in roll.Result and announces it to the room.
func (r *Room) HandleRoll(sender *Session, roll *payload.Roll) {
	var announcement string
	switch roll.RollKind {
	case payload.RollSingle:
		if roll.Sides < 1 {
			sender.SendSystemMessage("Invalid roll: a die needs at least 1 side")
			return
		}
		roll.Result = rollDie(roll.Sides)
		announcement = fmt.Sprintf("%s rolled %d and got %d", sender.Name(), roll.Sides, roll.Result)
	case payload.RollMulti:
		if roll.Sides < 1 || roll.Quantity < 1 {
			sender.SendSystemMessage("Invalid roll: use at least 1 die with at least 1 side")
			return
		}
		total := 0
		for i := 0; i < roll.Quantity; i++ {
			total += rollDie(roll.Sides)
		}
		roll.Result = total
		announcement = fmt.Sprintf("%s rolled %dd%d and got %d", sender.Name(), roll.Quantity, roll.Sides, roll.Result)
	default:
		sender.SendSystemMessage(fmt.Sprintf("Invalid roll: unknown kind %q", roll.RollKind))
		return
	}
	r.Broadcast(sender, markup.RollPrefix+" "+announcement)
}

func rollDie(sides int) int {
	return intN(sides) + 1
}

// HandleFlip announces a fair coin flip.
func (r *Room) HandleFlip(sender *Session) {
	result := "tails"
	if intN(2) == 0 {
		result = "heads"
	}
	r.Broadcast(sender, fmt.Sprintf("%s %s flipped a coin and got %s", markup.FlipPrefix, sender.Name(), result))
}

// HandleMute mutes the member targetID for sender.
func (r *Room) HandleMute(sender *Session, targetID int64) {
	target, ok := r.member(targetID)
	if !ok {
		sender.SendSystemMessage("User not found in this room.")
		return
	}
	if target == sender {
		sender.SendSystemMessage("You can't mute yourself")
		return
	}
	name := target.Name()
	if sender.MuteByName(name) {
		sender.SendSystemMessage("You have muted " + name)
	} else {
		sender.SendSystemMessage(name + " is already muted")
	}
}

// HandleUnmute unmutes the member targetID for sender.
func (r *Room) HandleUnmute(sender *Session, targetID int64) {
	target, ok := r.member(targetID)
	if !ok {
		sender.SendSystemMessage("User not found in this room.")
		return
	}
	name := target.Name()
	if sender.UnmuteByName(name) {
		sender.SendSystemMessage("You have unmuted " + name)
	} else {
		sender.SendSystemMessage(name + " was not muted")
	}
}

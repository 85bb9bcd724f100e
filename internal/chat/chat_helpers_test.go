package chat

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/jason-s-yu/parley/internal/payload"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// journal records deliveries across every transport, in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// fakeTransport collects payloads instead of writing them to a socket.
type fakeTransport struct {
	owner   string
	journal *journal

	mu     sync.Mutex
	sent   []payload.Payload
	fail   bool
	closed bool
}

func (f *fakeTransport) Send(p payload.Payload) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return false
	}
	f.sent = append(f.sent, p)
	if f.journal != nil {
		f.journal.add(fmt.Sprintf("%s:%s", f.owner, p.Kind()))
	}
	return true
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

func (f *fakeTransport) all() []payload.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]payload.Payload(nil), f.sent...)
}

func (f *fakeTransport) ofKind(kind payload.Kind) []payload.Payload {
	var out []payload.Payload
	for _, p := range f.all() {
		if p.Kind() == kind {
			out = append(out, p)
		}
	}
	return out
}

// messages returns the text of every chat message received.
func (f *fakeTransport) messages() []string {
	var out []string
	for _, p := range f.ofKind(payload.KindMessage) {
		out = append(out, p.(*payload.Message).Message)
	}
	return out
}

func (f *fakeTransport) lastMessage() string {
	msgs := f.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRegistry(t *testing.T) (*Registry, *MemoryMuteStore) {
	t.Helper()
	store := NewMemoryMuteStore()
	return NewRegistry(store, newTestLogger()), store
}

// connect performs the handshake for a new client, which lands it in the lobby.
func connect(t *testing.T, reg *Registry, name string) (*Session, *fakeTransport) {
	t.Helper()
	return connectWithJournal(t, reg, name, nil)
}

func connectWithJournal(t *testing.T, reg *Registry, name string, j *journal) (*Session, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{owner: name, journal: j}
	s := reg.NewSession(ft, newTestLogger())
	require.NoError(t, s.SetDisplayName(name))
	require.Equal(t, reg.Lobby(), s.CurrentRoom(), "%s should start in the lobby", name)
	return s, ft
}

func stubIntN(t *testing.T, fn func(n int) int) {
	t.Helper()
	orig := intN
	intN = fn
	t.Cleanup(func() { intN = orig })
}

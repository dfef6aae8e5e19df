package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-rooms/internal/model"
	"github.com/Tyrowin/gochat-rooms/internal/store"
)

type fakeConn struct {
	id       string
	identity model.Identity

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeConn(id, userID, username string) *fakeConn {
	return &fakeConn{id: id, identity: model.Identity{ID: userID, Username: username, Avatar: username + ".png"}}
}

func (c *fakeConn) ID() string               { return c.id }
func (c *fakeConn) Identity() model.Identity { return c.identity }

func (c *fakeConn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return true
}

func (c *fakeConn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// events decodes every frame received so far, optionally filtered by type.
func (c *fakeConn) events(t *testing.T, types ...string) []Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Frame
	for _, raw := range c.frames {
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		if len(types) == 0 || contains(types, f.Type) {
			out = append(out, f)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func payloadOf[T any](t *testing.T, f Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Payload, &v))
	return v
}

func frame(t *testing.T, typ, requestID string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(Frame{Type: typ, RequestID: requestID, Payload: data})
	require.NoError(t, err)
	return raw
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, userID string, notification model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	notification.UserID = userID
	n.sent = append(n.sent, notification)
	return n.err
}

func (n *recordingNotifier) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		ids = append(ids, s.UserID)
	}
	return ids
}

// failingStore fails the operations switched on in its flags and delegates
// the rest.
type failingStore struct {
	*store.MemoryStore
	failCreateMessage bool
	failLastMessage   bool
	failFindMessage   bool
}

var errBoom = errors.New("boom")

func (s *failingStore) CreateMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if s.failCreateMessage {
		return model.Message{}, store.Wrap("create message", errBoom)
	}
	return s.MemoryStore.CreateMessage(ctx, msg)
}

func (s *failingStore) UpdateRoomLastMessage(ctx context.Context, roomID, messageID string) error {
	if s.failLastMessage {
		return store.Wrap("update room last message", errBoom)
	}
	return s.MemoryStore.UpdateRoomLastMessage(ctx, roomID, messageID)
}

func (s *failingStore) FindMessageByID(ctx context.Context, messageID string) (model.Message, error) {
	if s.failFindMessage {
		return model.Message{}, store.Wrap("find message", errBoom)
	}
	return s.MemoryStore.FindMessageByID(ctx, messageID)
}

type fixture struct {
	engine   *Engine
	store    *store.MemoryStore
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	return newFixtureWithStore(t, st, st, opts)
}

func newFixtureWithStore(t *testing.T, mem *store.MemoryStore, st Store, opts Options) *fixture {
	t.Helper()
	for _, u := range []model.User{
		{ID: "u1", Username: "alice", Avatar: "alice.png"},
		{ID: "u2", Username: "bob", Avatar: "bob.png"},
		{ID: "u3", Username: "carol", Avatar: "carol.png"},
	} {
		mem.PutUser(u)
	}
	notifier := &recordingNotifier{}
	e := NewEngine(st, notifier, opts)
	t.Cleanup(e.Close)
	return &fixture{engine: e, store: mem, notifier: notifier}
}

func (f *fixture) room(t *testing.T, name string, members ...string) model.Room {
	t.Helper()
	room, err := f.store.CreateRoom(context.Background(), model.Room{Name: name, Members: members, CreatedBy: "u1"})
	require.NoError(t, err)
	return room
}

func (f *fixture) connect(conns ...*fakeConn) {
	for _, c := range conns {
		f.engine.Connect(context.Background(), c)
	}
}

func (f *fixture) join(t *testing.T, roomID string, conns ...*fakeConn) {
	t.Helper()
	for _, c := range conns {
		require.NoError(t, f.engine.JoinRoom(context.Background(), c, "", JoinRoom{RoomID: roomID}))
	}
}

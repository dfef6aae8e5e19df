package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-rooms/internal/model"
	"github.com/Tyrowin/gochat-rooms/internal/store"
)

func seedMessage(t *testing.T, f *fixture, roomID string) model.Message {
	t.Helper()
	msg, err := f.store.CreateMessage(context.Background(), model.Message{SenderID: "u1", RoomID: roomID, Content: "hi", Type: model.MessageText})
	require.NoError(t, err)
	return msg
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	a := newFakeConn("a", "u1", "alice")
	b := newFakeConn("b", "u2", "bob")
	f.connect(a, b)
	general := f.room(t, "general")
	f.join(t, general.ID, a, b)
	msg := seedMessage(t, f, general.ID)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		f.engine.Handle(ctx, b, frame(t, TypeMarkRead, "", MarkRead{MessageID: msg.ID, RoomID: general.ID}))
	}

	stored, err := f.store.FindMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, stored.ReadBy, 1)
	assert.Equal(t, "u2", stored.ReadBy[0].UserID)
	assert.False(t, stored.ReadBy[0].ReadAt.IsZero())

	updates := a.events(t, EventReadUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, ReadUpdatePayload{MessageID: msg.ID, UserID: "u2"}, payloadOf[ReadUpdatePayload](t, updates[1]))
	assert.Len(t, b.events(t, EventReadUpdate), 2)
}

func TestReactIsLastWriteWins(t *testing.T) {
	f := newFixture(t, Options{})
	a := newFakeConn("a", "u1", "alice")
	b := newFakeConn("b", "u2", "bob")
	f.connect(a, b)
	general := f.room(t, "general")
	f.join(t, general.ID, a, b)
	msg := seedMessage(t, f, general.ID)

	ctx := context.Background()
	require.NoError(t, f.engine.React(ctx, a, React{MessageID: msg.ID, Emoji: "👍", RoomID: general.ID}))
	require.NoError(t, f.engine.React(ctx, b, React{MessageID: msg.ID, Emoji: "🎉", RoomID: general.ID}))
	require.NoError(t, f.engine.React(ctx, a, React{MessageID: msg.ID, Emoji: "❤️", RoomID: general.ID}))

	stored, err := f.store.FindMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Reaction{{UserID: "u1", Emoji: "❤️"}, {UserID: "u2", Emoji: "🎉"}}, stored.Reactions)

	updates := b.events(t, EventReactionUpdate)
	require.Len(t, updates, 3)
	last := payloadOf[ReactionUpdatePayload](t, updates[2])
	assert.Equal(t, msg.ID, last.MessageID)
	assert.Equal(t, stored.Reactions, last.Reactions)
}

func TestReconcilerSwallowsMissingMessage(t *testing.T) {
	f := newFixture(t, Options{})
	a := newFakeConn("a", "u1", "alice")
	f.connect(a)
	general := f.room(t, "general")
	f.join(t, general.ID, a)

	ctx := context.Background()
	f.engine.Handle(ctx, a, frame(t, TypeMarkRead, "", MarkRead{MessageID: "missing", RoomID: general.ID}))
	f.engine.Handle(ctx, a, frame(t, TypeReact, "", React{MessageID: "missing", Emoji: "👍", RoomID: general.ID}))

	assert.Empty(t, a.events(t, EventError))
	assert.Empty(t, a.events(t, EventReadUpdate, EventReactionUpdate))
}

func TestReconcilerSurfacesStorageErrors(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &failingStore{MemoryStore: mem, failFindMessage: true}
	f := newFixtureWithStore(t, mem, st, Options{})
	a := newFakeConn("a", "u1", "alice")
	f.connect(a)

	f.engine.Handle(context.Background(), a, frame(t, TypeReact, "req", React{MessageID: "m1", Emoji: "👍"}))

	errs := a.events(t, EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Failed to add reaction", payloadOf[ErrorPayload](t, errs[0]).Message)
}

func TestReconcilerBroadcastsToStoredRoom(t *testing.T) {
	f := newFixture(t, Options{})
	a := newFakeConn("a", "u1", "alice")
	b := newFakeConn("b", "u2", "bob")
	f.connect(a, b)
	general := f.room(t, "general")
	other := f.room(t, "other")
	f.join(t, general.ID, a)
	f.join(t, other.ID, b)
	msg := seedMessage(t, f, general.ID)

	require.NoError(t, f.engine.MarkRead(context.Background(), b, MarkRead{MessageID: msg.ID, RoomID: other.ID}))

	assert.Len(t, a.events(t, EventReadUpdate), 1)
	assert.Empty(t, b.events(t, EventReadUpdate))
}

func TestConcurrentReactionsAreNotLost(t *testing.T) {
	f := newFixture(t, Options{})
	general := f.room(t, "general")
	msg := seedMessage(t, f, general.ID)

	const users = 20
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		c := newFakeConn(fmt.Sprintf("c%d", i), fmt.Sprintf("user-%d", i), "user")
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.engine.React(context.Background(), c, React{MessageID: msg.ID, Emoji: "👍"}))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.engine.MarkRead(context.Background(), c, MarkRead{MessageID: msg.ID}))
		}()
	}
	wg.Wait()

	stored, err := f.store.FindMessageByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Reactions, users)
	assert.Len(t, stored.ReadBy, users)
}

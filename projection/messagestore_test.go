package projection

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-sync/backend/badgerstore"
	"chat-sync/domain"
	"chat-sync/domain/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (c *captureSink) Consume(e event.DomainEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) all() []event.DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.DomainEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func testMessage(i int, at time.Time) domain.Message {
	return domain.Message{
		ID:           uuid.New(),
		AuthorID:     "author@example.com",
		AuthorName:   "Author",
		Kind:         domain.KindText,
		Content:      fmt.Sprintf("message %d", i),
		CreatedAt:    at,
		InsertionKey: fmt.Sprintf("messages/%019d-%s", at.UnixNano(), uuid.New()),
	}
}

func TestMessageStore_OrdersShuffledArrival(t *testing.T) {
	req := require.New(t)
	store := New(testLogger(), nil, 100, nil)

	base := time.Now().Truncate(time.Second)
	msgs := make([]domain.Message, 20)
	for i := range msgs {
		msgs[i] = testMessage(i, base.Add(time.Duration(i)*time.Millisecond))
	}

	// When messages arrive in a shuffled order, as happens on reconnect
	shuffled := make([]domain.Message, len(msgs))
	copy(shuffled, msgs)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	for _, m := range shuffled {
		store.merge(m)
	}

	// Then the snapshot is in (timestamp, insertion key) order
	snapshot := store.Snapshot()
	req.Len(snapshot, len(msgs))
	req.True(sort.SliceIsSorted(snapshot, func(i, j int) bool { return less(snapshot[i], snapshot[j]) }))
	for i := range msgs {
		req.Equal(msgs[i].ID, snapshot[i].ID)
	}
}

func TestMessageStore_TimestampTiesBreakByInsertionKey(t *testing.T) {
	req := require.New(t)
	store := New(testLogger(), nil, 100, nil)

	at := time.Now()
	a := testMessage(0, at)
	b := testMessage(1, at)
	a.InsertionKey = "messages/0000000000000000002-a"
	b.InsertionKey = "messages/0000000000000000001-b"

	store.merge(a)
	store.merge(b)

	snapshot := store.Snapshot()
	req.Equal(b.ID, snapshot[0].ID)
	req.Equal(a.ID, snapshot[1].ID)
}

func TestMessageStore_DuplicateDeliveryCollapses(t *testing.T) {
	req := require.New(t)
	store := New(testLogger(), nil, 100, nil)
	sink := &captureSink{}
	store.AddSink(sink)

	msg := testMessage(0, time.Now())
	store.merge(msg)
	// The store replay after a reconnect redelivers the same record
	store.merge(msg)
	store.merge(msg)

	req.Equal(1, store.Len())
	req.Equal(1, sink.count())
}

func TestMessageStore_WindowEvictsOldest(t *testing.T) {
	req := require.New(t)
	store := New(testLogger(), nil, 3, nil)

	base := time.Now()
	var msgs []domain.Message
	for i := 0; i < 5; i++ {
		m := testMessage(i, base.Add(time.Duration(i)*time.Second))
		msgs = append(msgs, m)
		store.merge(m)
	}

	// Only the newest three remain
	snapshot := store.Snapshot()
	req.Len(snapshot, 3)
	req.Equal(msgs[2].ID, snapshot[0].ID)
	req.Equal(msgs[4].ID, snapshot[2].ID)

	// Evicted entries are fully forgotten
	_, ok := store.Get(msgs[0].ID)
	req.False(ok)

	latest, ok := store.Latest()
	req.True(ok)
	req.Equal(msgs[4].ID, latest.ID)
}

func TestMessageStore_RetractionIsOneWay(t *testing.T) {
	req := require.New(t)
	store := New(testLogger(), nil, 100, nil)

	msg := testMessage(0, time.Now())
	store.merge(msg)

	retracted := msg
	retracted.IsRetracted = true
	store.merge(retracted)

	got, ok := store.Get(msg.ID)
	req.True(ok)
	req.True(got.IsRetracted)

	// A stale echo carrying the pre-retraction state must not undo it
	store.merge(msg)
	got, ok = store.Get(msg.ID)
	req.True(ok)
	req.True(got.IsRetracted)
}

func TestMessageStore_RemoveUnknownIsNoOp(t *testing.T) {
	req := require.New(t)
	store := New(testLogger(), nil, 100, nil)
	sink := &captureSink{}
	store.AddSink(sink)

	store.remove(testMessage(0, time.Now()))
	req.Equal(0, store.Len())
	req.Equal(0, sink.count())
}

func TestMessageStore_PinnedFilter(t *testing.T) {
	req := require.New(t)
	store := New(testLogger(), nil, 100, nil)

	plain := testMessage(0, time.Now())
	pinned := testMessage(1, time.Now().Add(time.Second))
	pinned.Pinned = true
	store.merge(plain)
	store.merge(pinned)

	got := store.Pinned()
	req.Len(got, 1)
	req.Equal(pinned.ID, got[0].ID)
}

func TestMessageStore_AtTailSignal(t *testing.T) {
	req := require.New(t)
	store := New(testLogger(), nil, 100, nil)

	// Stick-to-bottom is the default for a fresh view
	req.True(store.IsAtTail())
	store.SetAtTail(false)
	req.False(store.IsAtTail())
	store.SetAtTail(true)
	req.True(store.IsAtTail())
}

func TestMessageStore_ReplayAndLiveEvents(t *testing.T) {
	req := require.New(t)
	backend, err := badgerstore.Open(t.TempDir(), testLogger())
	req.NoError(err)
	defer backend.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given two records persisted before the worker starts
	history := []domain.Message{
		testMessage(0, time.Now().Add(-2*time.Minute)),
		testMessage(1, time.Now().Add(-time.Minute)),
	}
	for _, m := range history {
		req.NoError(backend.Put(ctx, m.InsertionKey, m))
	}

	store := New(testLogger(), backend, 100, nil)
	sink := &captureSink{}
	store.AddSink(sink)

	go func() { _ = store.Run(ctx) }()
	req.Eventually(func() bool { return store.Len() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// The pre-existing window arrives flagged as replayed
	for _, e := range sink.all() {
		added, ok := e.(event.MessageAdded)
		req.True(ok)
		req.True(added.Replayed)
	}

	// A live mutation arrives unflagged
	live := testMessage(2, time.Now())
	req.NoError(backend.Put(ctx, live.InsertionKey, live))

	events := sink.all()
	added, ok := events[len(events)-1].(event.MessageAdded)
	req.True(ok)
	req.False(added.Replayed)
	req.Equal(live.ID, added.Message.ID)

	// An edit to a known record surfaces as MessageChanged
	live.IsRetracted = true
	req.NoError(backend.Put(ctx, live.InsertionKey, live))

	events = sink.all()
	changed, ok := events[len(events)-1].(event.MessageChanged)
	req.True(ok)
	req.True(changed.Message.IsRetracted)

	// A hard delete surfaces as MessageRemoved and shrinks the window
	req.NoError(backend.Delete(ctx, live.InsertionKey))
	events = sink.all()
	_, ok = events[len(events)-1].(event.MessageRemoved)
	req.True(ok)
	req.Equal(2, store.Len())
}

// Package projection builds the locally materialized message log from
// the live subscription. Handles ordering, deduplication, the bounded
// retention window, and the stick-to-bottom signal. Does not mutate the
// backing store and does not talk to the UI directly.
package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
)

// MessagesPrefix is where log entries live in the record store. The
// store's key generator appends a padded timestamp plus a collision
// disconnector, so keys sort in creation order.
const MessagesPrefix = "messages/"

// PinnedPrefix holds pinned copies of messages. Copies survive
// retraction and deletion of the source entry.
const PinnedPrefix = "pinned/"

// MessageStore materializes the most recent window of the shared log.
// It implements contract.Worker; the supervisor restarts the
// subscription with backoff after transient failures, and every restart
// replays the full current window (the merge is idempotent by message
// id, so replays and duplicate deliveries collapse).
type MessageStore struct {
	log    *slog.Logger
	store  contract.RecordStore
	window int
	index  *Index

	mu      sync.RWMutex
	byID    map[uuid.UUID]int // position in entries
	entries []domain.Message
	atTail  bool
	live    bool

	sinks []contract.EventSink
}

// New builds a message store holding at most window entries. index may
// be nil when history search is not wanted.
func New(log *slog.Logger, store contract.RecordStore, window int, index *Index) *MessageStore {
	return &MessageStore{
		log:    log,
		store:  store,
		window: window,
		index:  index,
		byID:   make(map[uuid.UUID]int),
		atTail: true,
	}
}

// AddSink registers a consumer of message events. Must be called before
// the worker starts.
func (m *MessageStore) AddSink(sinks ...contract.EventSink) {
	m.sinks = append(m.sinks, sinks...)
}

// Run subscribes to the message collection and blocks until ctx is done.
// The subscription replay arrives before Run returns control to the
// event loop, so a consumer attached beforehand sees the full window.
func (m *MessageStore) Run(ctx context.Context) error {
	m.mu.Lock()
	m.live = false
	m.mu.Unlock()

	cancel, err := m.store.Watch(ctx, MessagesPrefix, m.consume)
	if err != nil {
		return fmt.Errorf("message subscription: %w", err)
	}
	defer cancel()

	m.mu.Lock()
	m.live = true
	m.mu.Unlock()

	<-ctx.Done()
	return nil
}

func (m *MessageStore) consume(c contract.Change) {
	if c.Kind == contract.ChangeRemoved {
		var msg domain.Message
		if err := c.Decode(&msg); err != nil {
			m.log.Error("undecodable removed message", "key", c.Key, "error", err)
			return
		}
		m.remove(msg)
		return
	}

	var msg domain.Message
	if err := c.Decode(&msg); err != nil {
		m.log.Error("undecodable message", "key", c.Key, "error", err)
		return
	}
	if msg.InsertionKey == "" {
		msg.InsertionKey = c.Key
	}
	m.merge(msg)
}

// less orders by creation timestamp, ties broken by the store-assigned
// insertion key.
func less(a, b domain.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.InsertionKey < b.InsertionKey
}

// merge applies an added or modified entry. Duplicate deliveries of the
// same message collapse by id; out-of-order arrival during reconnect is
// repaired by sorted insertion.
func (m *MessageStore) merge(msg domain.Message) {
	m.mu.Lock()

	if pos, known := m.byID[msg.ID]; known {
		prev := m.entries[pos]
		if prev.IsRetracted && !msg.IsRetracted {
			// Retraction is one-way; ignore a stale un-retract echo.
			msg.IsRetracted = true
		}
		if prev == msg {
			m.mu.Unlock()
			return
		}
		m.entries[pos] = msg
		replay := !m.live
		m.mu.Unlock()

		m.reindex(msg)
		if !replay {
			m.emit(event.MessageChanged{Message: msg})
		}
		return
	}

	pos := sort.Search(len(m.entries), func(i int) bool { return less(msg, m.entries[i]) })
	m.entries = append(m.entries, domain.Message{})
	copy(m.entries[pos+1:], m.entries[pos:])
	m.entries[pos] = msg
	m.rebuildPositions()

	var evicted []domain.Message
	for len(m.entries) > m.window {
		evicted = append(evicted, m.entries[0])
		m.entries = m.entries[1:]
	}
	if evicted != nil {
		m.rebuildPositions()
		for _, old := range evicted {
			delete(m.byID, old.ID)
		}
	}
	replay := !m.live
	m.mu.Unlock()

	m.reindex(msg)
	for _, old := range evicted {
		m.unindex(old)
	}
	m.emit(event.MessageAdded{Message: msg, Replayed: replay})
}

func (m *MessageStore) remove(msg domain.Message) {
	m.mu.Lock()
	pos, known := m.byID[msg.ID]
	if !known {
		m.mu.Unlock()
		return
	}
	last := m.entries[pos]
	m.entries = append(m.entries[:pos], m.entries[pos+1:]...)
	delete(m.byID, msg.ID)
	m.rebuildPositions()
	m.mu.Unlock()

	m.unindex(last)
	m.emit(event.MessageRemoved{Message: last})
}

// rebuildPositions refreshes the id index. Callers hold the lock.
func (m *MessageStore) rebuildPositions() {
	for i, e := range m.entries {
		m.byID[e.ID] = i
	}
}

func (m *MessageStore) reindex(msg domain.Message) {
	if m.index == nil {
		return
	}
	if err := m.index.Update(msg); err != nil {
		m.log.Error("search index update failed", "id", msg.ID, "error", err)
	}
}

func (m *MessageStore) unindex(msg domain.Message) {
	if m.index == nil {
		return
	}
	if err := m.index.Remove(msg.ID); err != nil {
		m.log.Error("search index removal failed", "id", msg.ID, "error", err)
	}
}

func (m *MessageStore) emit(e event.DomainEvent) {
	for _, sink := range m.sinks {
		sink.Consume(e)
	}
}

// Snapshot returns the current window in non-decreasing
// (timestamp, insertion key) order. The slice is a copy; a fresh
// consumer replays the whole window from it, then follows live events.
func (m *MessageStore) Snapshot() []domain.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Message, len(m.entries))
	copy(out, m.entries)
	return out
}

// Get returns one entry of the window by id.
func (m *MessageStore) Get(id uuid.UUID) (domain.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.byID[id]
	if !ok {
		return domain.Message{}, false
	}
	return m.entries[pos], true
}

// Latest returns the newest entry of the window.
func (m *MessageStore) Latest() (domain.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.entries) == 0 {
		return domain.Message{}, false
	}
	return m.entries[len(m.entries)-1], true
}

// Pinned returns the pinned entries of the current window.
func (m *MessageStore) Pinned() []domain.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Message
	for _, e := range m.entries {
		if e.Pinned {
			out = append(out, e)
		}
	}
	return out
}

// SetAtTail records whether the viewport currently sits at the bottom of
// the log. The presentation layer feeds this on scroll; the store only
// derives the signal, it never scrolls anything itself.
func (m *MessageStore) SetAtTail(atTail bool) {
	m.mu.Lock()
	m.atTail = atTail
	m.mu.Unlock()
}

// IsAtTail reports whether auto-scroll-to-latest should run on the next
// update.
func (m *MessageStore) IsAtTail() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.atTail
}

// Len returns the number of materialized entries.
func (m *MessageStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ contract.Worker = (*MessageStore)(nil)

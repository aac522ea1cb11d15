// Package presence publishes the local user's online state and watches
// all peers' presence sub-records, exposing a live roster partitioned
// into online and offline users.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/gate"
)

// Tracker implements contract.Worker. On start it registers the
// store-side disconnect action, flips the local user online, and follows
// every user record to keep the roster current.
type Tracker struct {
	log      *slog.Logger
	store    contract.RecordStore
	identity string

	mu       sync.RWMutex
	users    map[string]domain.User
	snapshot domain.PresenceSnapshot
	signedIn bool

	sinks []contract.EventSink
}

func New(log *slog.Logger, store contract.RecordStore, identity string) *Tracker {
	return &Tracker{
		log:      log,
		store:    store,
		identity: identity,
		users:    make(map[string]domain.User),
	}
}

// AddSink registers a consumer of RosterChanged events. Must be called
// before the worker starts.
func (t *Tracker) AddSink(sinks ...contract.EventSink) {
	t.sinks = append(t.sinks, sinks...)
}

// Run registers the on-disconnect action before going online, so there
// is no window where a crash would leave the user stuck online. The
// backing service stamps last-seen when it applies the action.
func (t *Tracker) Run(ctx context.Context) error {
	key := gate.UserKey(t.identity)

	var user domain.User
	if err := t.store.Get(ctx, key, &user); err != nil {
		return fmt.Errorf("presence record for %s: %w", t.identity, err)
	}

	offline := user
	offline.Presence = domain.Presence{Online: false, LastSeen: time.Now()}
	if err := t.store.OnDisconnect(ctx, key, offline); err != nil {
		return fmt.Errorf("register disconnect action: %w", err)
	}

	user.Presence.Online = true
	if err := t.store.Put(ctx, key, user); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}

	t.mu.Lock()
	t.signedIn = true
	t.mu.Unlock()

	cancel, err := t.store.Watch(ctx, gate.UsersPrefix, t.consume)
	if err != nil {
		return fmt.Errorf("roster subscription: %w", err)
	}
	defer cancel()

	<-ctx.Done()
	return nil
}

func (t *Tracker) consume(c contract.Change) {
	if c.Kind == contract.ChangeRemoved {
		// User records are never deleted; ignore.
		return
	}
	var user domain.User
	if err := c.Decode(&user); err != nil {
		t.log.Error("undecodable user record", "key", c.Key, "error", err)
		return
	}

	t.mu.Lock()
	t.users[user.Identity] = user
	t.rebuild()
	snapshot := t.snapshot
	t.mu.Unlock()

	t.emit(event.RosterChanged{Snapshot: snapshot})
}

// rebuild partitions and sorts the roster. Callers hold the lock.
// Online users come first, ordered by display name then identity;
// offline users follow, most recently seen first, with never-seen users
// (zero last-seen) at the end. The boundary is deterministic for any
// input order.
func (t *Tracker) rebuild() {
	all := lo.Values(t.users)

	online := lo.Filter(all, func(u domain.User, _ int) bool { return u.Presence.Online })
	offline := lo.Filter(all, func(u domain.User, _ int) bool { return !u.Presence.Online })

	sort.Slice(online, func(i, j int) bool {
		if online[i].DisplayName != online[j].DisplayName {
			return online[i].DisplayName < online[j].DisplayName
		}
		return online[i].Identity < online[j].Identity
	})
	sort.Slice(offline, func(i, j int) bool {
		a, b := offline[i].Presence.LastSeen, offline[j].Presence.LastSeen
		if !a.Equal(b) {
			return a.After(b)
		}
		return offline[i].Identity < offline[j].Identity
	})

	t.snapshot = domain.PresenceSnapshot{Online: online, Offline: offline}
}

func (t *Tracker) emit(e event.DomainEvent) {
	for _, sink := range t.sinks {
		sink.Consume(e)
	}
}

// SignOut performs the offline transition synchronously before the
// session terminates, so a voluntary sign-out is never mistaken for a
// crash, then drops the disconnect action.
func (t *Tracker) SignOut(ctx context.Context) error {
	t.mu.Lock()
	if !t.signedIn {
		t.mu.Unlock()
		return errors.ErrSessionClosed
	}
	t.signedIn = false
	t.mu.Unlock()

	key := gate.UserKey(t.identity)
	var user domain.User
	if err := t.store.Get(ctx, key, &user); err != nil {
		return fmt.Errorf("sign-out of %s: %w", t.identity, err)
	}
	user.Presence = domain.Presence{Online: false, LastSeen: time.Now()}
	if err := t.store.Put(ctx, key, user); err != nil {
		return fmt.Errorf("mark offline: %w", err)
	}
	if err := t.store.ClearDisconnect(ctx, key); err != nil {
		return fmt.Errorf("clear disconnect action: %w", err)
	}
	return nil
}

// Roster returns the current partitioned snapshot.
func (t *Tracker) Roster() domain.PresenceSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot
}

// OnlineCount is the scalar emitted for display.
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot.OnlineCount()
}

var _ contract.Worker = (*Tracker)(nil)

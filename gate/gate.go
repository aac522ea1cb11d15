// Package gate resolves and watches the current user's permission flags
// and enforces them reactively: a mid-session read revocation tears the
// session down on the same subscription tick, not on the next user
// action.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
)

// UsersPrefix is where user records live in the record store, keyed by
// the encoded identity.
const UsersPrefix = "users/"

// UserKey returns the storage key of a user record.
func UserKey(identity string) string {
	return UsersPrefix + domain.EncodeIdentity(identity)
}

// Gate watches one user's permission record. It implements
// contract.Worker so the supervisor can restart the subscription with
// backoff; an exhausted retry budget is fatal to the session.
type Gate struct {
	log      *slog.Logger
	store    contract.RecordStore
	identity string

	// Profile fields stamped on first sign-in when the record is created.
	uid         string
	displayName string
	avatarURL   string

	mu       sync.RWMutex
	perms    domain.Permissions
	resolved bool
	revoked  bool

	sinks []contract.EventSink

	// OnRevoke runs synchronously inside the subscription callback when
	// canRead transitions to false. The session uses it to force
	// sign-out within one tick.
	OnRevoke func(reason string)
}

func New(log *slog.Logger, store contract.RecordStore, identity, uid, displayName, avatarURL string) *Gate {
	return &Gate{
		log:         log,
		store:       store,
		identity:    identity,
		uid:         uid,
		displayName: displayName,
		avatarURL:   avatarURL,
	}
}

// AddSink registers a consumer of PermissionsChanged and SessionRevoked
// events. Must be called before Run.
func (g *Gate) AddSink(sinks ...contract.EventSink) {
	g.sinks = append(g.sinks, sinks...)
}

// Run ensures the user record exists, subscribes to it, and blocks until
// ctx is done. A subscribe failure is returned to the supervisor, which
// retries with backoff.
func (g *Gate) Run(ctx context.Context) error {
	if err := g.ensureRecord(ctx); err != nil {
		return fmt.Errorf("permission record for %s: %w", g.identity, err)
	}

	cancel, err := g.store.Watch(ctx, UserKey(g.identity), g.consume)
	if err != nil {
		return fmt.Errorf("permission subscription for %s: %w", g.identity, err)
	}
	defer cancel()

	<-ctx.Done()
	return nil
}

// ensureRecord creates an all-false permission record for a newly
// authenticated identity. Create is atomic; losing the race to another
// session of the same user is fine.
func (g *Gate) ensureRecord(ctx context.Context) error {
	var existing domain.User
	err := g.store.Get(ctx, UserKey(g.identity), &existing)
	if err == nil {
		return nil
	}
	if err != errors.ErrNotFound {
		return err
	}

	user := domain.User{
		Identity:    g.identity,
		UID:         g.uid,
		DisplayName: g.displayName,
		AvatarURL:   g.avatarURL,
	}
	err = g.store.Create(ctx, UserKey(g.identity), user)
	if err == errors.ErrAlreadyExists {
		return nil
	}
	return err
}

func (g *Gate) consume(c contract.Change) {
	if c.Kind == contract.ChangeRemoved {
		// User records are never deleted; treat a removal like a full
		// revocation anyway.
		g.revoke("account record removed")
		return
	}

	var user domain.User
	if err := c.Decode(&user); err != nil {
		g.log.Error("undecodable permission record", "key", c.Key, "error", err)
		return
	}

	g.mu.Lock()
	wasResolved := g.resolved
	hadRead := g.perms.Read
	g.perms = user.Permissions
	g.resolved = true
	g.mu.Unlock()

	g.emit(event.PermissionsChanged{Identity: g.identity, Permissions: user.Permissions})

	if wasResolved && hadRead && !user.Permissions.Read {
		g.revoke("read permission revoked")
	}
}

func (g *Gate) revoke(reason string) {
	g.mu.Lock()
	if g.revoked {
		g.mu.Unlock()
		return
	}
	g.revoked = true
	g.perms = domain.Permissions{}
	g.mu.Unlock()

	g.log.Warn("Session revoked", "identity", g.identity, "reason", reason)
	g.emit(event.SessionRevoked{Identity: g.identity, Reason: reason, At: time.Now()})
	if g.OnRevoke != nil {
		g.OnRevoke(reason)
	}
}

func (g *Gate) emit(e event.DomainEvent) {
	for _, sink := range g.sinks {
		sink.Consume(e)
	}
}

// Terminate is called by the session when a terminal subscription
// failure forces sign-out. It flips the gate into its revoked state so
// later permission checks fail closed.
func (g *Gate) Terminate(reason string) {
	g.revoke(reason)
}

func (g *Gate) snapshot() (domain.Permissions, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.perms, g.revoked
}

func (g *Gate) CanRead() bool {
	p, revoked := g.snapshot()
	return p.Read && !revoked
}

func (g *Gate) CanWrite() bool {
	p, revoked := g.snapshot()
	return p.Write && !revoked
}

func (g *Gate) IsAdmin() bool {
	p, revoked := g.snapshot()
	return p.Admin && !revoked
}

// RequireWrite is the submission-time check: a stale canWrite cached by
// the presentation layer cannot let a write through once the gate has
// started its sign-out sequence.
func (g *Gate) RequireWrite() error {
	if g.CanWrite() {
		return nil
	}
	return errors.ErrWriteNotAllowed
}

func (g *Gate) Identity() string { return g.identity }

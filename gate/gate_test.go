package gate

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-sync/backend/badgerstore"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBackend(t *testing.T) *badgerstore.Store {
	t.Helper()
	store, err := badgerstore.Open(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// startGate runs the gate worker until the test ends and waits for the
// initial permission resolution.
func startGate(t *testing.T, g *Gate) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = g.Run(ctx) }()

	require.Eventually(t, func() bool {
		g.mu.RLock()
		defer g.mu.RUnlock()
		return g.resolved
	}, time.Second, 5*time.Millisecond)
	// The live registration follows the replay by a hair; give it time
	// so mutations issued by the test are guaranteed to be observed.
	time.Sleep(50 * time.Millisecond)
}

func TestGate_FirstSignInCreatesLockedRecord(t *testing.T) {
	req := require.New(t)
	store := newTestBackend(t)

	g := New(testLogger(), store, "newbie@example.com", "uid-1", "Newbie", "avatar.png")
	startGate(t, g)

	// Then the record exists with every flag false
	var user domain.User
	req.NoError(store.Get(context.Background(), UserKey("newbie@example.com"), &user))
	req.Equal("newbie@example.com", user.Identity)
	req.Equal("Newbie", user.DisplayName)
	req.False(user.Permissions.Read)
	req.False(user.Permissions.Write)
	req.False(user.Permissions.Admin)

	// And the gate fails closed
	req.False(g.CanRead())
	req.ErrorIs(g.RequireWrite(), errors.ErrWriteNotAllowed)
}

func TestGate_GrantPropagatesLive(t *testing.T) {
	req := require.New(t)
	store := newTestBackend(t)
	ctx := context.Background()

	g := New(testLogger(), store, "alice@example.com", "uid-1", "Alice", "")

	var granted atomic.Bool
	g.AddSink(contract.SinkFunc(func(e event.DomainEvent) {
		if c, ok := e.(event.PermissionsChanged); ok && c.Permissions.Write {
			granted.Store(true)
		}
	}))
	startGate(t, g)
	req.False(g.CanWrite())

	// When an admin grants read and write on the stored record
	var user domain.User
	req.NoError(store.Get(ctx, UserKey("alice@example.com"), &user))
	user.Permissions = domain.Permissions{Read: true, Write: true}
	req.NoError(store.Put(ctx, UserKey("alice@example.com"), user))

	// Then the gate reflects it without any user action
	req.True(g.CanRead())
	req.True(g.CanWrite())
	req.False(g.IsAdmin())
	req.NoError(g.RequireWrite())
	req.True(granted.Load())
}

func TestGate_ReadRevocationFiresOnSameDispatch(t *testing.T) {
	req := require.New(t)
	store := newTestBackend(t)
	ctx := context.Background()

	// Given a signed-in reader
	user := domain.User{
		Identity:    "bob@example.com",
		UID:         "uid-2",
		Permissions: domain.Permissions{Read: true, Write: true},
	}
	req.NoError(store.Put(ctx, UserKey("bob@example.com"), user))

	g := New(testLogger(), store, "bob@example.com", "uid-2", "Bob", "")
	var revokedReason atomic.Value
	g.OnRevoke = func(reason string) { revokedReason.Store(reason) }

	var sawRevokedEvent atomic.Bool
	g.AddSink(contract.SinkFunc(func(e event.DomainEvent) {
		if _, ok := e.(event.SessionRevoked); ok {
			sawRevokedEvent.Store(true)
		}
	}))

	startGate(t, g)
	req.True(g.CanRead())

	// When read is revoked
	user.Permissions.Read = false
	req.NoError(store.Put(ctx, UserKey("bob@example.com"), user))

	// Then the hook already ran on the mutation's dispatch, and every
	// later check fails closed, write flag included.
	req.Equal("read permission revoked", revokedReason.Load())
	req.True(sawRevokedEvent.Load())
	req.False(g.CanRead())
	req.False(g.CanWrite())
	req.ErrorIs(g.RequireWrite(), errors.ErrWriteNotAllowed)
}

func TestGate_InitialDeniedStateIsNotARevocation(t *testing.T) {
	req := require.New(t)
	store := newTestBackend(t)

	g := New(testLogger(), store, "locked@example.com", "uid-3", "Locked", "")
	var revoked atomic.Bool
	g.OnRevoke = func(string) { revoked.Store(true) }

	// A brand new all-false record resolves without firing the
	// revocation path: denied-from-the-start is not a mid-session loss.
	startGate(t, g)
	req.False(revoked.Load())
	req.False(g.CanRead())
}

func TestGate_TerminateFailsClosed(t *testing.T) {
	req := require.New(t)
	store := newTestBackend(t)
	ctx := context.Background()

	user := domain.User{
		Identity:    "carol@example.com",
		Permissions: domain.Permissions{Read: true, Write: true, Admin: true},
	}
	req.NoError(store.Put(ctx, UserKey("carol@example.com"), user))

	g := New(testLogger(), store, "carol@example.com", "uid-4", "Carol", "")
	startGate(t, g)
	req.True(g.IsAdmin())

	g.Terminate("subscription lost")

	req.False(g.CanRead())
	req.False(g.CanWrite())
	req.False(g.IsAdmin())

	// A permission echo arriving after termination cannot reopen the gate
	req.NoError(store.Put(ctx, UserKey("carol@example.com"), user))
	req.False(g.CanRead())
}

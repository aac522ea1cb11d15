package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-sync/backend/badgerstore"
	"chat-sync/domain"
	"chat-sync/errors"
)

func startAdmin(t *testing.T, store *badgerstore.Store, identity string) *Admin {
	t.Helper()
	user := domain.User{
		Identity:    identity,
		Permissions: domain.Permissions{Read: true, Write: true, Admin: true},
	}
	require.NoError(t, store.Put(context.Background(), UserKey(identity), user))

	g := New(testLogger(), store, identity, "uid-admin", "Admin", "")
	startGate(t, g)
	require.True(t, g.IsAdmin())
	return NewAdmin(store, g)
}

func TestAdmin_ProvisionUserAheadOfSignIn(t *testing.T) {
	req := require.New(t)
	store := newTestBackend(t)
	ctx := context.Background()
	admin := startAdmin(t, store, "root@example.com")

	// When provisioning a user who has never signed in
	req.NoError(admin.ProvisionUser(ctx, "invitee@example.com", true, false))

	var user domain.User
	req.NoError(store.Get(ctx, UserKey("invitee@example.com"), &user))
	req.True(user.Permissions.Read)
	req.False(user.Permissions.Write)
	req.False(user.HasEverConnected())

	// Provisioning the same identity twice fails, the record is owned
	err := admin.ProvisionUser(ctx, "invitee@example.com", false, false)
	req.ErrorIs(err, errors.ErrAlreadyExists)
}

func TestAdmin_SetPermissions(t *testing.T) {
	req := require.New(t)
	store := newTestBackend(t)
	ctx := context.Background()
	admin := startAdmin(t, store, "root@example.com")

	req.NoError(admin.ProvisionUser(ctx, "member@example.com", true, true))
	req.NoError(admin.SetPermissions(ctx, "member@example.com", true, false))

	var user domain.User
	req.NoError(store.Get(ctx, UserKey("member@example.com"), &user))
	req.True(user.Permissions.Read)
	req.False(user.Permissions.Write)
}

func TestAdmin_CannotRevokeOwnRead(t *testing.T) {
	req := require.New(t)
	store := newTestBackend(t)
	ctx := context.Background()
	admin := startAdmin(t, store, "root@example.com")

	// Locking yourself out of a session you administrate is refused
	err := admin.SetPermissions(ctx, "root@example.com", false, true)
	req.ErrorIs(err, errors.ErrPermissionDenied)

	// Revoking your own write flag stays allowed
	req.NoError(admin.SetPermissions(ctx, "root@example.com", true, false))
}

func TestAdmin_DeactivateUser(t *testing.T) {
	req := require.New(t)
	store := newTestBackend(t)
	ctx := context.Background()
	admin := startAdmin(t, store, "root@example.com")

	req.NoError(admin.ProvisionUser(ctx, "leaver@example.com", true, true))
	req.NoError(admin.Deactivate(ctx, "leaver@example.com"))

	// The record survives with every flag dropped
	var user domain.User
	req.NoError(store.Get(ctx, UserKey("leaver@example.com"), &user))
	req.True(user.Deactivated)
	req.Equal(domain.Permissions{}, user.Permissions)

	// Self-deactivation is refused like self-revocation
	err := admin.Deactivate(ctx, "root@example.com")
	req.ErrorIs(err, errors.ErrPermissionDenied)
}

func TestAdmin_NonAdminIsDenied(t *testing.T) {
	req := require.New(t)
	store := newTestBackend(t)
	ctx := context.Background()

	user := domain.User{
		Identity:    "plain@example.com",
		Permissions: domain.Permissions{Read: true, Write: true},
	}
	req.NoError(store.Put(ctx, UserKey("plain@example.com"), user))

	g := New(testLogger(), store, "plain@example.com", "uid-p", "Plain", "")
	startGate(t, g)
	admin := NewAdmin(store, g)

	req.ErrorIs(admin.ProvisionUser(ctx, "x@example.com", true, true), errors.ErrPermissionDenied)
	req.ErrorIs(admin.SetPermissions(ctx, "plain@example.com", true, true), errors.ErrPermissionDenied)
	req.ErrorIs(admin.Deactivate(ctx, "plain@example.com"), errors.ErrPermissionDenied)
}

package gate

import (
	"context"
	"fmt"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
)

// Admin edits the permission overlay. Every operation re-checks the
// caller's admin flag against the live gate, not a cached copy.
type Admin struct {
	store contract.RecordStore
	gate  *Gate
}

func NewAdmin(store contract.RecordStore, g *Gate) *Admin {
	return &Admin{store: store, gate: g}
}

// ProvisionUser pre-creates a user record by identity with the chosen
// read/write flags, ahead of the user's first sign-in. Profile fields
// are filled in by the gate when the user actually connects.
func (a *Admin) ProvisionUser(ctx context.Context, identity string, read, write bool) error {
	if !a.gate.IsAdmin() {
		return errors.ErrPermissionDenied
	}
	user := domain.User{
		Identity:    identity,
		Permissions: domain.Permissions{Read: read, Write: write},
	}
	if err := a.store.Create(ctx, UserKey(identity), user); err != nil {
		return fmt.Errorf("provision %s: %w", identity, err)
	}
	return nil
}

// SetPermissions replaces a user's read/write flags. The admin flag can
// only be altered by the store owner, never through this client, and an
// admin cannot revoke their own read flag: locking yourself out of a
// live session you administrate is always a mistake.
func (a *Admin) SetPermissions(ctx context.Context, identity string, read, write bool) error {
	if !a.gate.IsAdmin() {
		return errors.ErrPermissionDenied
	}
	if identity == a.gate.Identity() && !read {
		return fmt.Errorf("%w: cannot revoke own read permission", errors.ErrPermissionDenied)
	}

	key := UserKey(identity)
	var user domain.User
	if err := a.store.Get(ctx, key, &user); err != nil {
		return fmt.Errorf("permissions of %s: %w", identity, err)
	}
	user.Permissions.Read = read
	user.Permissions.Write = write
	if err := a.store.Put(ctx, key, user); err != nil {
		return fmt.Errorf("update permissions of %s: %w", identity, err)
	}
	return nil
}

// Deactivate marks a user record inactive and drops every flag. Records
// are never deleted.
func (a *Admin) Deactivate(ctx context.Context, identity string) error {
	if !a.gate.IsAdmin() {
		return errors.ErrPermissionDenied
	}
	if identity == a.gate.Identity() {
		return fmt.Errorf("%w: cannot deactivate own account", errors.ErrPermissionDenied)
	}

	key := UserKey(identity)
	var user domain.User
	if err := a.store.Get(ctx, key, &user); err != nil {
		return fmt.Errorf("deactivate %s: %w", identity, err)
	}
	user.Permissions = domain.Permissions{}
	user.Deactivated = true
	if err := a.store.Put(ctx, key, user); err != nil {
		return fmt.Errorf("deactivate %s: %w", identity, err)
	}
	return nil
}

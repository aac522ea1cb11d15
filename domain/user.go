// Package domain contains core concepts of the synchronization core.
// This file defines User entities and their permission flags.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// Permissions are the three gatekeeper flags attached to every user.
// A brand new user has all flags false until an admin grants access.
type Permissions struct {
	Read  bool `cbor:"read"`
	Write bool `cbor:"write"`
	Admin bool `cbor:"admin"`
}

// Presence is the live sub-record of a user. Online is flipped by the
// user's own session only; LastSeen is stamped on every offline
// transition. A user who has never connected has a zero LastSeen.
type Presence struct {
	Online   bool      `cbor:"online"`
	LastSeen time.Time `cbor:"lastSeen,omitempty"`
}

// User is the account record. Identity is the natural identity string
// (an email address); the storage key is EncodeIdentity(Identity).
// Users are never deleted, only deactivated by revoking Read.
type User struct {
	Identity    string      `cbor:"identity"`
	UID         string      `cbor:"uid"`
	DisplayName string      `cbor:"displayName"`
	AvatarURL   string      `cbor:"avatarUrl"`
	Permissions Permissions `cbor:"permissions"`
	Presence    Presence    `cbor:"presence"`
	Deactivated bool        `cbor:"deactivated,omitempty"`
}

// HasEverConnected reports whether the user has a known last-seen time.
func (u User) HasEverConnected() bool {
	return u.Presence.Online || !u.Presence.LastSeen.IsZero()
}

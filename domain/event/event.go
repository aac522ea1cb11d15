// Package event defines the domain events flowing between the live
// subscriptions and the components that materialize local state.
package event

import (
	"time"

	"chat-sync/domain"
)

// DomainEvent is implemented by every event the core emits.
type DomainEvent interface {
	EventName() string
}

// MessageAdded is emitted when a log entry enters the local window,
// either live or during a replay after reconnect.
type MessageAdded struct {
	Message domain.Message
	// Replayed is true when the entry arrived through a window replay
	// rather than a live append.
	Replayed bool
}

func (MessageAdded) EventName() string { return "message.added" }

// MessageChanged is emitted when a field of an already known entry
// changes. In practice this is the retraction or pin flag.
type MessageChanged struct {
	Message domain.Message
}

func (MessageChanged) EventName() string { return "message.changed" }

// MessageRemoved is emitted when an entry leaves the store entirely
// (hard delete), carrying the last known state.
type MessageRemoved struct {
	Message domain.Message
}

func (MessageRemoved) EventName() string { return "message.removed" }

// PermissionsChanged is emitted by the gate when the watched user's
// flags change, including the initial resolution.
type PermissionsChanged struct {
	Identity    string
	Permissions domain.Permissions
}

func (PermissionsChanged) EventName() string { return "permissions.changed" }

// SessionRevoked is emitted when canRead transitions to false or the
// permission subscription fails terminally. The session must terminate.
type SessionRevoked struct {
	Identity string
	Reason   string
	At       time.Time
}

func (SessionRevoked) EventName() string { return "session.revoked" }

// RosterChanged carries a freshly partitioned presence snapshot.
type RosterChanged struct {
	Snapshot domain.PresenceSnapshot
}

func (RosterChanged) EventName() string { return "roster.changed" }

// UnseenChanged is emitted when the unseen-message indicator flips.
type UnseenChanged struct {
	HasUnseen bool
}

func (UnseenChanged) EventName() string { return "unseen.changed" }

package domain

// PresenceSnapshot is a derived, ephemeral view over all users' presence
// sub-records. It is never persisted; PresenceTracker rebuilds it on every
// roster change.
type PresenceSnapshot struct {
	Online  []User
	Offline []User
}

// OnlineCount is the scalar emitted for display next to the roster.
func (s PresenceSnapshot) OnlineCount() int {
	return len(s.Online)
}

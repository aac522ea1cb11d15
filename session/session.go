// Package session ties the permission gate, the presence tracker, and
// the message subscription into one lifecycle. Teardown always runs,
// whether the user signs out, an admin revokes access mid-session, or a
// subscription fails terminally.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/gate"
	"chat-sync/presence"
	"chat-sync/projection"
	"chat-sync/runtime"
)

const signOutTimeout = 5 * time.Second

// Profile is what the sign-in provider hands over for the current user.
type Profile struct {
	Identity    string
	UID         string
	DisplayName string
	AvatarURL   string
}

// Options tunes the session lifecycle.
type Options struct {
	// MaxSubscriptionRetries bounds consecutive subscription failures
	// before the session gives up and signs out. <= 0 retries forever.
	MaxSubscriptionRetries int
	// TokenSecret signs the local session token.
	TokenSecret []byte
	// TokenLifetime bounds the session token validity.
	TokenLifetime time.Duration
}

// Session is one signed-in user's live synchronization state.
type Session struct {
	log      *slog.Logger
	profile  Profile
	gate     *gate.Gate
	tracker  *presence.Tracker
	messages *projection.MessageStore
	sup      *runtime.Supervisor
	token    string

	cancel context.CancelFunc
	done   chan struct{}

	mu             sync.Mutex
	closed         bool
	reason         string
	messagesWired  bool
	supervisingCtx context.Context

	sinks []contract.EventSink
}

// Start wires the components together and launches the subscription
// workers. The message subscription only starts once the gate resolves
// canRead true; until then the user sees an empty log.
func Start(ctx context.Context, log *slog.Logger, profile Profile, g *gate.Gate, tracker *presence.Tracker, messages *projection.MessageStore, opts Options) (*Session, error) {
	token, err := auth.GenerateToken(opts.TokenSecret, profile.Identity, profile.UID, profile.DisplayName, opts.TokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}

	supCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		log:            log,
		profile:        profile,
		gate:           g,
		tracker:        tracker,
		messages:       messages,
		token:          token,
		cancel:         cancel,
		done:           make(chan struct{}),
		supervisingCtx: supCtx,
	}

	s.sup = runtime.NewSupervisor(log, opts.MaxSubscriptionRetries)
	s.sup.OnExhausted = func(name string, err error) {
		s.ForceSignOut(fmt.Sprintf("%s: %v", name, err))
	}
	g.OnRevoke = func(reason string) {
		s.ForceSignOut(reason)
	}
	g.AddSink(contract.SinkFunc(s.onGateEvent))

	s.sup.Add(g, tracker)

	go func() {
		s.sup.Run(supCtx)
		close(s.done)
	}()
	return s, nil
}

// onGateEvent starts the message subscription on the dispatch that
// resolves or grants read access. Revocations are handled by the gate's
// OnRevoke hook, on the same tick they land.
func (s *Session) onGateEvent(e event.DomainEvent) {
	changed, ok := e.(event.PermissionsChanged)
	if !ok || !changed.Permissions.Read {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.messagesWired {
		return
	}
	s.messagesWired = true
	s.sup.Start(s.supervisingCtx, s.messages)
}

// AddSink registers a consumer of session-level events (SessionRevoked).
func (s *Session) AddSink(sinks ...contract.EventSink) {
	s.sinks = append(s.sinks, sinks...)
}

// Token returns the signed session token for the presentation layer.
func (s *Session) Token() string { return s.token }

// SignOut performs a voluntary sign-out: the offline presence transition
// runs synchronously before the subscriptions are torn down, so the
// departure is never mistaken for a crash.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrSessionClosed
	}
	s.closed = true
	s.reason = "signed out"
	s.mu.Unlock()

	err := s.tracker.SignOut(ctx)
	s.cancel()
	<-s.done
	if err != nil && err != errors.ErrSessionClosed {
		return fmt.Errorf("sign-out: %w", err)
	}
	return nil
}

// ForceSignOut terminates the session with a reason the shell displays.
// Called by the gate on read revocation and by the supervisor when a
// subscription is lost for good. Safe to call from subscription
// callbacks and idempotent.
func (s *Session) ForceSignOut(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.reason = reason
	s.mu.Unlock()

	s.log.Warn("Forcing sign-out", "identity", s.profile.Identity, "reason", reason)
	s.gate.Terminate(reason)

	// Best effort: stamp the offline transition before the workers die.
	offCtx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
	defer cancel()
	if err := s.tracker.SignOut(offCtx); err != nil && err != errors.ErrSessionClosed {
		s.log.Error("offline transition during forced sign-out failed", "error", err)
	}

	s.cancel()
	s.emit(event.SessionRevoked{Identity: s.profile.Identity, Reason: reason, At: time.Now()})
}

// Done is closed once every worker has drained.
func (s *Session) Done() <-chan struct{} { return s.done }

// Closed reports whether the session has ended, and why.
func (s *Session) Closed() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.reason
}

func (s *Session) emit(e event.DomainEvent) {
	for _, sink := range s.sinks {
		sink.Consume(e)
	}
}

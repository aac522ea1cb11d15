// Package notify derives the "unseen new message" signal from the
// message log and the viewport's foreground state, and exposes the
// title/icon pair the host shell applies.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"chat-sync/contract"
	"chat-sync/domain/event"
)

// Shell is the (title, icon) pair presented by the host shell.
type Shell struct {
	Title string
	Icon  string
}

// Coordinator consumes message events. A message that arrives while the
// viewport is in the background, with a timestamp past the last seen
// one, flips hasUnseen; foregrounding clears it and advances the
// watermark. The viewer's own messages never alert: the author id is
// compared, not just the timestamp.
type Coordinator struct {
	log    *slog.Logger
	selfID string
	normal Shell
	alert  Shell

	mu         sync.Mutex
	foreground bool
	lastSeen   time.Time
	hasUnseen  bool

	sinks []contract.EventSink
}

func NewCoordinator(log *slog.Logger, selfID string, normal, alert Shell) *Coordinator {
	return &Coordinator{
		log:        log,
		selfID:     selfID,
		normal:     normal,
		alert:      alert,
		foreground: true,
	}
}

// AddSink registers a consumer of UnseenChanged events.
func (c *Coordinator) AddSink(sinks ...contract.EventSink) {
	c.sinks = append(c.sinks, sinks...)
}

// Consume implements contract.EventSink over the message store's events.
func (c *Coordinator) Consume(e event.DomainEvent) {
	added, ok := e.(event.MessageAdded)
	if !ok {
		return
	}
	msg := added.Message

	c.mu.Lock()
	if c.foreground {
		if msg.CreatedAt.After(c.lastSeen) {
			c.lastSeen = msg.CreatedAt
		}
		c.mu.Unlock()
		return
	}
	if msg.AuthorID == c.selfID {
		// Own just-sent message; advance the watermark silently.
		if msg.CreatedAt.After(c.lastSeen) {
			c.lastSeen = msg.CreatedAt
		}
		c.mu.Unlock()
		return
	}
	if added.Replayed || !msg.CreatedAt.After(c.lastSeen) {
		c.mu.Unlock()
		return
	}
	flipped := !c.hasUnseen
	c.hasUnseen = true
	c.mu.Unlock()

	if flipped {
		c.emit(event.UnseenChanged{HasUnseen: true})
	}
}

// SetForeground records the viewport state. Foregrounding clears the
// unseen flag and advances lastSeen to the newest known message time.
func (c *Coordinator) SetForeground(foreground bool, newest time.Time) {
	c.mu.Lock()
	c.foreground = foreground
	cleared := false
	if foreground {
		if newest.After(c.lastSeen) {
			c.lastSeen = newest
		}
		cleared = c.hasUnseen
		c.hasUnseen = false
	}
	c.mu.Unlock()

	if cleared {
		c.emit(event.UnseenChanged{HasUnseen: false})
	}
}

// HasUnseen reports whether an unseen message is pending.
func (c *Coordinator) HasUnseen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasUnseen
}

// Shell returns the title/icon pair matching the current unseen state.
func (c *Coordinator) Shell() Shell {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasUnseen {
		return c.alert
	}
	return c.normal
}

// LastSeen returns the watermark, exposed for the inspector tooling.
func (c *Coordinator) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Coordinator) emit(e event.DomainEvent) {
	for _, sink := range c.sinks {
		sink.Consume(e)
	}
}

var _ contract.EventSink = (*Coordinator)(nil)

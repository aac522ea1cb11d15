// Package moderation executes the retract and delete workflow with
// permission checks, attachment cleanup, and an explicit two-step
// confirmation for every irreversible action.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/gate"
	"chat-sync/projection"
)

// Action is a moderation operation on one message.
type Action string

const (
	ActionRetract Action = "retract"
	ActionDelete  Action = "delete"
	ActionPin     Action = "pin"
)

const defaultConfirmTTL = 2 * time.Minute

type pending struct {
	action    Action
	messageID uuid.UUID
	expires   time.Time
}

// Controller mutates log entries on behalf of the signed-in user. All
// mutating operations go through Request/Confirm: Request validates
// permissions and returns a token, Confirm executes. The two steps keep
// the irreversible-action safeguard without coupling to any dialog
// implementation.
type Controller struct {
	log     *slog.Logger
	records contract.RecordStore
	blobs   contract.BlobStore
	window  *projection.MessageStore
	gate    *gate.Gate

	mu         sync.Mutex
	pendings   map[uuid.UUID]pending
	confirmTTL time.Duration
}

func NewController(log *slog.Logger, records contract.RecordStore, blobs contract.BlobStore, window *projection.MessageStore, g *gate.Gate) *Controller {
	return &Controller{
		log:        log,
		records:    records,
		blobs:      blobs,
		window:     window,
		gate:       g,
		pendings:   make(map[uuid.UUID]pending),
		confirmTTL: defaultConfirmTTL,
	}
}

func (c *Controller) isAuthor(msg domain.Message) bool {
	return msg.AuthorID == c.gate.Identity()
}

// PermittedActions returns the action set the presentation layer may
// offer for one message. Retract disappears once used: retraction is
// permanent in this design.
func (c *Controller) PermittedActions(msg domain.Message) []Action {
	var actions []Action
	if (c.isAuthor(msg) || c.gate.IsAdmin()) && !msg.IsRetracted {
		actions = append(actions, ActionRetract)
	}
	if c.gate.IsAdmin() {
		actions = append(actions, ActionDelete)
	}
	actions = append(actions, ActionPin)
	return actions
}

func (c *Controller) authorize(action Action, msg domain.Message) error {
	switch action {
	case ActionRetract:
		if !c.isAuthor(msg) && !c.gate.IsAdmin() {
			return errors.ErrPermissionDenied
		}
	case ActionDelete:
		if !c.gate.IsAdmin() {
			return errors.ErrPermissionDenied
		}
	case ActionPin:
		// Any reader may pin.
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

// Request validates the action and returns a confirmation token. Nothing
// is executed until Confirm; an abandoned token simply expires.
func (c *Controller) Request(action Action, messageID uuid.UUID) (uuid.UUID, error) {
	msg, ok := c.window.Get(messageID)
	if !ok {
		return uuid.Nil, fmt.Errorf("%s %s: %w", action, messageID, errors.ErrNotFound)
	}
	if err := c.authorize(action, msg); err != nil {
		return uuid.Nil, fmt.Errorf("%s %s: %w", action, messageID, err)
	}

	token := uuid.New()
	c.mu.Lock()
	c.pendings[token] = pending{action: action, messageID: messageID, expires: time.Now().Add(c.confirmTTL)}
	c.mu.Unlock()
	return token, nil
}

// Confirm executes a previously requested action. Permissions are
// re-checked at execution time: a token requested before a revocation
// must not let the action through afterwards.
func (c *Controller) Confirm(ctx context.Context, token uuid.UUID) error {
	c.mu.Lock()
	p, ok := c.pendings[token]
	delete(c.pendings, token)
	c.mu.Unlock()

	if !ok {
		return errors.ErrConfirmationUnknown
	}
	if time.Now().After(p.expires) {
		return errors.ErrConfirmationExpired
	}

	msg, found := c.window.Get(p.messageID)
	if !found {
		if p.action == ActionDelete {
			// Delete of a missing record is a success, idempotent.
			return nil
		}
		return fmt.Errorf("%s %s: %w", p.action, p.messageID, errors.ErrNotFound)
	}
	if err := c.authorize(p.action, msg); err != nil {
		return fmt.Errorf("%s %s: %w", p.action, p.messageID, err)
	}

	switch p.action {
	case ActionRetract:
		return c.retract(ctx, msg)
	case ActionDelete:
		return c.delete(ctx, msg)
	case ActionPin:
		return c.pin(ctx, msg)
	}
	return fmt.Errorf("unknown action %q", p.action)
}

// retract flips the one-way flag. Retracting an already retracted
// message is a no-op, never an error. The original content stays in the
// record for the admin metadata view.
func (c *Controller) retract(ctx context.Context, msg domain.Message) error {
	var current domain.Message
	if err := c.records.Get(ctx, msg.InsertionKey, &current); err != nil {
		return fmt.Errorf("retract %s: %w", msg.ID, err)
	}
	if current.IsRetracted {
		return nil
	}
	current.IsRetracted = true
	if err := c.records.Put(ctx, msg.InsertionKey, current); err != nil {
		return fmt.Errorf("retract %s: %w", msg.ID, err)
	}
	c.log.Info("message retracted", "id", msg.ID, "by", c.gate.Identity())
	return nil
}

// delete removes the record and, for attachment messages, the owned
// blob. The blob goes first: if the blob delete fails the record delete
// is aborted, so no record is ever left referencing a missing blob. A
// record-delete failure after a successful blob delete is the one
// partial-cascade case left; it surfaces as ErrInconsistentState for
// manual remediation.
func (c *Controller) delete(ctx context.Context, msg domain.Message) error {
	if msg.Kind == domain.KindAttachment {
		if name := msg.BlobName(); name != "" {
			if err := c.blobs.Delete(ctx, name); err != nil {
				return fmt.Errorf("delete blob of %s, record kept: %w", msg.ID, err)
			}
		}
	}
	if err := c.records.Delete(ctx, msg.InsertionKey); err != nil {
		if msg.Kind == domain.KindAttachment {
			return fmt.Errorf("record delete of %s failed after blob delete: %w", msg.ID, errors.ErrInconsistentState)
		}
		return fmt.Errorf("delete %s: %w", msg.ID, err)
	}
	c.log.Info("message deleted", "id", msg.ID, "by", c.gate.Identity())
	return nil
}

// pin marks the live record and writes a standalone copy that survives
// retraction and deletion of the source entry.
func (c *Controller) pin(ctx context.Context, msg domain.Message) error {
	var current domain.Message
	if err := c.records.Get(ctx, msg.InsertionKey, &current); err != nil {
		return fmt.Errorf("pin %s: %w", msg.ID, err)
	}
	copyKey := projection.PinnedPrefix + current.ID.String()
	if err := c.records.Put(ctx, copyKey, current); err != nil {
		return fmt.Errorf("pin copy of %s: %w", msg.ID, err)
	}
	current.Pinned = true
	if err := c.records.Put(ctx, msg.InsertionKey, current); err != nil {
		return fmt.Errorf("pin flag of %s: %w", msg.ID, err)
	}
	return nil
}

// ViewMetadata returns the full record including retracted content.
// Admin only.
func (c *Controller) ViewMetadata(ctx context.Context, messageID uuid.UUID) (domain.Message, error) {
	if !c.gate.IsAdmin() {
		return domain.Message{}, errors.ErrPermissionDenied
	}
	msg, ok := c.window.Get(messageID)
	if !ok {
		return domain.Message{}, fmt.Errorf("metadata of %s: %w", messageID, errors.ErrNotFound)
	}
	var current domain.Message
	if err := c.records.Get(ctx, msg.InsertionKey, &current); err != nil {
		return domain.Message{}, fmt.Errorf("metadata of %s: %w", messageID, err)
	}
	return current, nil
}

// CopyContent returns the message text, or the resolved URL for an
// attachment. Authors and admins only; retracted content is only
// released to admins.
func (c *Controller) CopyContent(messageID uuid.UUID) (string, error) {
	msg, ok := c.window.Get(messageID)
	if !ok {
		return "", fmt.Errorf("copy of %s: %w", messageID, errors.ErrNotFound)
	}
	if !c.isAuthor(msg) && !c.gate.IsAdmin() {
		return "", errors.ErrPermissionDenied
	}
	if msg.IsRetracted && !c.gate.IsAdmin() {
		return "", fmt.Errorf("copy of retracted %s: %w", messageID, errors.ErrPermissionDenied)
	}
	if msg.Kind == domain.KindAttachment {
		_, url := msg.SplitContent()
		return url, nil
	}
	return msg.Content, nil
}

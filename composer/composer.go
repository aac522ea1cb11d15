// Package composer validates and submits new text and attachment
// messages. Write permission is enforced at the submission boundary, not
// in the UI: a revoked flag rejects the send here no matter what the
// presentation layer still displays.
package composer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/gate"
	"chat-sync/moderation"
	"chat-sync/projection"
)

// MaxMessageRunes is the hard length limit for text messages. Exceeding
// it yields a trim prompt, never a silent truncation or rejection.
const MaxMessageRunes = 4000

const detectHeaderSize = 3072

var validate = validator.New()

// Author is the denormalized profile snapshot stamped on every message
// at creation time. Later profile edits do not touch existing messages.
type Author struct {
	UID      string
	Identity string
	Name     string
	Avatar   string
}

// Composer submits messages for one signed-in author.
type Composer struct {
	log     *slog.Logger
	records contract.RecordStore
	blobs   contract.BlobStore
	gate    *gate.Gate
	censor  *moderation.Censor
	author  Author

	maxBlobBytes int64
}

// New builds a composer. censor may be nil to disable the profanity
// scrub; it only ever applies to text content, never attachment URLs.
func New(log *slog.Logger, records contract.RecordStore, blobs contract.BlobStore, g *gate.Gate, censor *moderation.Censor, author Author, maxBlobBytes int64) *Composer {
	return &Composer{
		log:          log,
		records:      records,
		blobs:        blobs,
		gate:         g,
		censor:       censor,
		author:       author,
		maxBlobBytes: maxBlobBytes,
	}
}

// TrimPrompt is the pending confirmation returned when a text exceeds
// MaxMessageRunes. Accept submits the truncated text; dropping the
// prompt abandons the send.
type TrimPrompt struct {
	composer *Composer
	text     string
}

// Trimmed returns the text as it would be submitted.
func (p *TrimPrompt) Trimmed() string {
	runes := []rune(p.text)
	return string(runes[:MaxMessageRunes])
}

// Accept submits the trimmed text. Permission is re-checked; the prompt
// may have outlived a revocation.
func (p *TrimPrompt) Accept(ctx context.Context) (domain.Message, error) {
	return p.composer.submitText(ctx, p.Trimmed())
}

// SendText validates and submits a text message. An over-limit text
// returns a TrimPrompt together with ErrMessageTooLong; no record is
// created for the over-limit text itself.
func (c *Composer) SendText(ctx context.Context, text string) (domain.Message, *TrimPrompt, error) {
	if err := c.gate.RequireWrite(); err != nil {
		return domain.Message{}, nil, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, nil, errors.ErrMessageEmpty
	}
	if len([]rune(text)) > MaxMessageRunes {
		return domain.Message{}, &TrimPrompt{composer: c, text: text}, errors.ErrMessageTooLong
	}
	msg, err := c.submitText(ctx, text)
	return msg, nil, err
}

func (c *Composer) submitText(ctx context.Context, text string) (domain.Message, error) {
	if err := c.gate.RequireWrite(); err != nil {
		return domain.Message{}, err
	}
	if c.censor != nil {
		text = c.censor.Scrub(text)
	}
	return c.create(ctx, domain.KindText, text)
}

// UploadRequest is the validated shape of an attachment submission.
type UploadRequest struct {
	FileName string `validate:"required,max=255"`
	Size     int64  `validate:"gte=0"`
}

// SendAttachment uploads the blob and creates the message only after the
// blob URL is resolved: no placeholder entry is ever visible before the
// upload completes. Canceling ctx aborts the transfer and the partial
// blob, and no record is created.
func (c *Composer) SendAttachment(ctx context.Context, fileName string, r io.Reader, size int64, progress contract.UploadProgress) (domain.Message, error) {
	if err := c.gate.RequireWrite(); err != nil {
		return domain.Message{}, err
	}
	req := UploadRequest{FileName: fileName, Size: size}
	if err := validate.Struct(req); err != nil {
		return domain.Message{}, fmt.Errorf("attachment request: %w", err)
	}
	if c.maxBlobBytes > 0 && size > c.maxBlobBytes {
		return domain.Message{}, fmt.Errorf("%d bytes: %w", size, errors.ErrBlobTooLarge)
	}

	// Sniff the media type from the leading bytes, then stitch the
	// reader back together for the upload.
	header := make([]byte, detectHeaderSize)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return domain.Message{}, fmt.Errorf("attachment read: %w", err)
	}
	header = header[:n]
	mtype := mimetype.Detect(header)
	body := io.MultiReader(bytes.NewReader(header), r)

	name := uniqueBlobName(fileName)
	url, err := c.blobs.Upload(ctx, name, body, size, progress)
	if err != nil {
		return domain.Message{}, fmt.Errorf("upload %q: %w", fileName, err)
	}

	return c.create(ctx, domain.KindAttachment, domain.AttachmentContent(mtype.String(), url))
}

func (c *Composer) create(ctx context.Context, kind domain.MessageKind, content string) (domain.Message, error) {
	key := c.records.NewKey(projection.MessagesPrefix)
	msg := domain.Message{
		ID:           uuid.New(),
		AuthorUID:    c.author.UID,
		AuthorID:     c.author.Identity,
		AuthorName:   c.author.Name,
		AuthorAvatar: c.author.Avatar,
		Kind:         kind,
		Content:      content,
		CreatedAt:    time.Now(),
		InsertionKey: key,
	}
	if err := c.records.Create(ctx, key, msg); err != nil {
		return domain.Message{}, fmt.Errorf("submit message: %w", err)
	}
	return msg, nil
}

// uniqueBlobName keeps the original base name and extension, with a
// random infix so two concurrent uploads of the same file name never
// collide.
func uniqueBlobName(fileName string) string {
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(filepath.Base(fileName), ext)
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("%s_%s%s", base, suffix, ext)
}

// Package domain contains core concepts of the synchronization core.
// This file defines Message entities and related rules.
// Author, content, and timestamp are immutable once created.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageKind distinguishes plain text messages from attachment messages.
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindAttachment MessageKind = "attachment"
)

// Message is one entry of the shared log.
//
// AuthorName and AuthorAvatar are snapshots taken at creation time and are
// intentionally never re-synced with later profile edits.
//
// For KindAttachment the Content holds "mediatype:url"; use SplitContent.
// IsRetracted is a one-way flag: once true it never goes back, the only
// further transition is a hard delete removing the record entirely.
type Message struct {
	ID           uuid.UUID   `cbor:"id"`
	AuthorUID    string      `cbor:"authorUid"`
	AuthorID     string      `cbor:"authorId"`
	AuthorName   string      `cbor:"authorName"`
	AuthorAvatar string      `cbor:"authorAvatar"`
	Kind         MessageKind `cbor:"kind"`
	Content      string      `cbor:"content"`
	CreatedAt    time.Time   `cbor:"createdAt"`
	IsRetracted  bool        `cbor:"isRetracted"`
	Pinned       bool        `cbor:"pinned,omitempty"`

	// InsertionKey is the store-assigned, order-preserving record key.
	// It breaks timestamp ties deterministically.
	InsertionKey string `cbor:"insertionKey"`
}

// AttachmentContent joins a detected media type and a resolved blob URL
// into the stored content form.
func AttachmentContent(mediaType, url string) string {
	return mediaType + ":" + url
}

// SplitContent returns the media type and URL of an attachment message.
// Text messages return an empty type and the content unchanged.
func (m Message) SplitContent() (mediaType, url string) {
	if m.Kind != KindAttachment {
		return "", m.Content
	}
	idx := strings.Index(m.Content, ":")
	if idx < 0 {
		return "", m.Content
	}
	return m.Content[:idx], m.Content[idx+1:]
}

// BlobName extracts the owned blob's storage name from an attachment URL.
// The URL form is "blob://<name>"; anything else returns empty.
func (m Message) BlobName() string {
	_, url := m.SplitContent()
	const scheme = "blob://"
	if !strings.HasPrefix(url, scheme) {
		return ""
	}
	return url[len(scheme):]
}

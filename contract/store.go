//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package contract

import (
	"context"
	"io"
)

// ChangeKind classifies a record change delivered to a watcher.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	}
	return "unknown"
}

// Change is one record mutation observed by a watcher. Decode unmarshals
// the record value into out; for ChangeRemoved it decodes the last known
// value before removal.
type Change struct {
	Kind   ChangeKind
	Key    string
	Decode func(out any) error
}

// WatchFunc receives changes in arrival order within one subscription.
// No ordering is guaranteed across distinct subscriptions.
type WatchFunc func(c Change)

// CancelFunc detaches a watcher. Safe to call more than once.
type CancelFunc func()

// RecordStore is the structured half of the backing store. All mutations
// are single-record atomic; there are no multi-record transactions.
type RecordStore interface {
	// Put creates or fully replaces the record at key.
	Put(ctx context.Context, key string, value any) error
	// Create stores the record only if key is absent, atomically.
	// Returns errors.ErrAlreadyExists otherwise.
	Create(ctx context.Context, key string, value any) error
	// Get decodes the record at key into out, or errors.ErrNotFound.
	Get(ctx context.Context, key string, out any) error
	// Delete removes the record. Deleting a missing key is a success.
	Delete(ctx context.Context, key string) error
	// Watch subscribes to every record under prefix. The current
	// contents are replayed as ChangeAdded before live changes flow.
	Watch(ctx context.Context, prefix string, fn WatchFunc) (CancelFunc, error)
	// OnDisconnect registers a record replacement the store applies by
	// itself when the connection drops abruptly.
	OnDisconnect(ctx context.Context, key string, value any) error
	// ClearDisconnect drops a previously registered disconnect action.
	ClearDisconnect(ctx context.Context, key string) error
	// NewKey returns a fresh order-preserving key under prefix: keys
	// generated later sort lexicographically after earlier ones.
	NewKey(prefix string) string
}

// UploadProgress reports transferred bytes. total is -1 when unknown.
type UploadProgress func(done, total int64)

// BlobStore is the binary half of the backing store. Blobs are owned by
// the message that references them.
type BlobStore interface {
	// Upload streams r into a blob called name and returns its URL.
	// Canceling ctx aborts the transfer and removes the partial blob.
	Upload(ctx context.Context, name string, r io.Reader, size int64, progress UploadProgress) (string, error)
	// Delete removes a blob by name. Missing blobs are a success.
	Delete(ctx context.Context, name string) error
}

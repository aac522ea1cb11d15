package projection

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-sync/domain"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	index, err := OpenIndex(filepath.Join(t.TempDir(), "bluge"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func TestIndex_SearchFindsTextMessages(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := context.Background()

	hit := testMessage(0, time.Now())
	hit.Content = "deployment schedule for friday"
	other := testMessage(1, time.Now())
	other.Content = "lunch plans"

	req.NoError(index.Update(hit))
	req.NoError(index.Update(other))

	results, err := index.Search(ctx, "deployment", 10)
	req.NoError(err)
	req.Len(results, 1)
	req.Equal(hit.ID, results[0].ID)
	req.Equal(hit.AuthorID, results[0].Author)
	req.Equal(hit.Content, results[0].Content)

	results, err = index.Search(ctx, "weekend", 10)
	req.NoError(err)
	req.Empty(results)
}

func TestIndex_RetractionRemovesFromIndex(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := context.Background()

	msg := testMessage(0, time.Now())
	msg.Content = "secret handshake details"
	req.NoError(index.Update(msg))

	results, err := index.Search(ctx, "handshake", 10)
	req.NoError(err)
	req.Len(results, 1)

	// Retracted content must not stay discoverable through search
	msg.IsRetracted = true
	req.NoError(index.Update(msg))

	results, err = index.Search(ctx, "handshake", 10)
	req.NoError(err)
	req.Empty(results)
}

func TestIndex_AttachmentsAreNotIndexed(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	msg := testMessage(0, time.Now())
	msg.Kind = domain.KindAttachment
	msg.Content = domain.AttachmentContent("image/png", "blob://searchable.png")
	req.NoError(index.Update(msg))

	results, err := index.Search(context.Background(), "searchable", 10)
	req.NoError(err)
	req.Empty(results)
}

func TestMessageStore_WindowIsSearchable(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	store := New(testLogger(), nil, 2, index)

	base := time.Now()
	for i, content := range []string{"ancient history", "middle entry", "fresh news"} {
		m := testMessage(i, base.Add(time.Duration(i)*time.Second))
		m.Content = content
		store.merge(m)
	}

	// The evicted entry left the index with the window
	results, err := index.Search(context.Background(), "ancient", 10)
	req.NoError(err)
	req.Empty(results)

	results, err = index.Search(context.Background(), "fresh", 10)
	req.NoError(err)
	req.Len(results, 1)
}

package projection

import (
	"context"
	"fmt"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	"chat-sync/domain"
)

// Index is the full-text index over the materialized window, used by the
// moderation workflow to find messages by content. Retracted entries are
// dropped from the index so hidden content is not discoverable through
// search.
type Index struct {
	writer *bluge.Writer
}

// OpenIndex opens or creates a Bluge index at path.
func OpenIndex(path string) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return &Index{writer: writer}, nil
}

func (ix *Index) Close() error {
	return ix.writer.Close()
}

// Update indexes a message's searchable text. Attachment URLs and
// retracted content are excluded: retracting a message also removes it
// from the index.
func (ix *Index) Update(msg domain.Message) error {
	if msg.Kind != domain.KindText || msg.IsRetracted {
		return ix.Remove(msg.ID)
	}
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewKeywordField("author", msg.AuthorID).StoreValue())
	return ix.writer.Update(doc.ID(), doc)
}

// Remove drops a message from the index.
func (ix *Index) Remove(id uuid.UUID) error {
	doc := bluge.NewDocument(id.String())
	return ix.writer.Delete(doc.ID())
}

// SearchResult is one hit of a window search.
type SearchResult struct {
	ID      uuid.UUID
	Author  string
	Content string
}

// Search runs a match query over message text and returns up to limit
// hits.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	reader, err := ix.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewMatchQuery(query).SetField("content")
	req := bluge.NewTopNSearch(limit, q)
	dmi, err := reader.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var results []SearchResult
	for {
		match, err := dmi.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		var res SearchResult
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				if id, err := uuid.Parse(string(value)); err == nil {
					res.ID = id
				}
			case "author":
				res.Author = string(value)
			case "content":
				res.Content = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

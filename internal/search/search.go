package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meilisearch/meilisearch-go"
)

// primaryKey identifies track documents in the index. Tracks are indexed
// per friend, so the composite id is "<track_id>_<friend_id>".
const primaryKey = "id"

// documentUpdater is the slice of meilisearch.IndexManager the client
// uses; tests substitute a stub.
type documentUpdater interface {
	UpdateDocumentsWithContext(ctx context.Context, documentsPtr interface{}, primaryKey ...string) (*meilisearch.TaskInfo, error)
}

// Indexer is what the track store depends on for the best-effort index
// write.
type Indexer interface {
	UpdateDocuments(ctx context.Context, documents any) error
}

// Client wraps one Meilisearch index.
type Client struct {
	index documentUpdater
}

// New connects to Meilisearch and binds the named index. The index is
// created lazily by Meilisearch on first document write.
func New(url, apiKey, indexName string) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("search url required")
	}
	indexName = strings.TrimSpace(indexName)
	if indexName == "" {
		return nil, errors.New("search index name required")
	}
	var opts []meilisearch.Option
	if apiKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(apiKey))
	}
	manager := meilisearch.New(url, opts...)
	return &Client{index: manager.Index(indexName)}, nil
}

// UpdateDocuments upserts documents into the index. The write is
// acknowledged as a task; task completion is not awaited because callers
// only need the submission to succeed.
func (c *Client) UpdateDocuments(ctx context.Context, documents any) error {
	if _, err := c.index.UpdateDocumentsWithContext(ctx, documents, primaryKey); err != nil {
		return fmt.Errorf("update search documents: %w", err)
	}
	return nil
}

// Disabled is an Indexer that drops every write. Used when search is
// turned off in configuration.
type Disabled struct{}

func (Disabled) UpdateDocuments(context.Context, any) error { return nil }

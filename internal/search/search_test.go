package search

import (
	"context"
	"errors"
	"testing"

	"github.com/meilisearch/meilisearch-go"
)

type stubIndex struct {
	documents  any
	primaryKey []string
	err        error
}

func (s *stubIndex) UpdateDocumentsWithContext(ctx context.Context, documentsPtr interface{}, primaryKey ...string) (*meilisearch.TaskInfo, error) {
	s.documents = documentsPtr
	s.primaryKey = primaryKey
	if s.err != nil {
		return nil, s.err
	}
	return &meilisearch.TaskInfo{TaskUID: 7}, nil
}

func TestUpdateDocumentsUsesCompositePrimaryKey(t *testing.T) {
	stub := &stubIndex{}
	client := &Client{index: stub}

	docs := []map[string]any{{"id": "42_3", "bpm": 120}}
	if err := client.UpdateDocuments(context.Background(), docs); err != nil {
		t.Fatalf("UpdateDocuments: %v", err)
	}
	if len(stub.primaryKey) != 1 || stub.primaryKey[0] != "id" {
		t.Fatalf("unexpected primary key %v", stub.primaryKey)
	}
	if stub.documents == nil {
		t.Fatal("documents not forwarded")
	}
}

func TestUpdateDocumentsWrapsError(t *testing.T) {
	stub := &stubIndex{err: errors.New("index_not_found")}
	client := &Client{index: stub}

	err := client.UpdateDocuments(context.Background(), []map[string]any{{"id": "1_1"}})
	if err == nil || !errors.Is(err, stub.err) {
		t.Fatalf("expected wrapped stub error, got %v", err)
	}
}

func TestDisabledSwallowsWrites(t *testing.T) {
	if err := (Disabled{}).UpdateDocuments(context.Background(), nil); err != nil {
		t.Fatalf("Disabled must never fail: %v", err)
	}
}

func TestNewValidatesInputs(t *testing.T) {
	if _, err := New("", "", "tracks"); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := New("http://localhost:7700", "", ""); err == nil {
		t.Fatal("expected error for empty index name")
	}
}

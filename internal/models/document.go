// Package models holds the shared data model: collections, documents,
// query matches and the request/response shapes of the API layer.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document is a single retrievable unit of text belonging to one collection.
// The embedding is owned by the collection store and never mutated after
// insertion.
type Document struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	Metadata  DocumentMeta `json:"metadata"`
	Embedding []float32    `json:"-"`
}

// NewDocument creates a document with a generated id and stamped metadata.
func NewDocument(text string, meta DocumentMeta) Document {
	if meta.AddedAt == "" {
		meta.AddedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if meta.Source == "" {
		meta.Source = "api"
	}
	meta.Length = len(text)
	return Document{
		ID:       fmt.Sprintf("doc-%s", uuid.New()),
		Text:     text,
		Metadata: meta,
	}
}

// CollectionInfo describes a collection as seen by callers of the store:
// its name, structured metadata and document count.
type CollectionInfo struct {
	Name     string         `json:"name"`
	Metadata CollectionMeta `json:"metadata"`
	Count    int            `json:"document_count"`
}

// QueryMatch is one ranked federated search result. Distance is the raw
// store distance (lower is more similar, not bounded to [0,1]); the wire
// name "similarity" is kept for compatibility with existing consumers.
type QueryMatch struct {
	Text               string         `json:"text"`
	Collection         string         `json:"collection"`
	Distance           float32        `json:"similarity"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CollectionMetadata map[string]any `json:"collection_metadata,omitempty"`
}

// Citation is the source reference attached to a composed answer.
type Citation struct {
	Collection string         `json:"collection"`
	Document   string         `json:"document"`
	Similarity float32        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Excerpt returns at most n runes of s, with an ellipsis when truncated.
func Excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

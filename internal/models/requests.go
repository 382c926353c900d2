package models

// Request and response shapes for the HTTP surface. Field names mirror the
// wire format expected by existing clients.

// CreateCollectionRequest creates (or fetches) a named collection.
type CreateCollectionRequest struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// CollectionResponse is returned by collection create/get endpoints.
type CollectionResponse struct {
	Success    bool           `json:"success"`
	Collection CollectionInfo `json:"collection"`
}

// CollectionListResponse lists collections with their document counts.
type CollectionListResponse struct {
	Success          bool             `json:"success"`
	TotalCollections int              `json:"total_collections"`
	Collections      []CollectionInfo `json:"collections"`
}

// AddDocumentsRequest inserts a batch of documents into a collection.
// Metadatas and IDs are optional and positional; missing entries are
// defaulted server-side.
type AddDocumentsRequest struct {
	Documents []string         `json:"documents"`
	Metadatas []map[string]any `json:"metadatas,omitempty"`
	IDs       []string         `json:"ids,omitempty"`
}

// AddDocumentsResponse reports how many documents were stored.
type AddDocumentsResponse struct {
	Success    bool   `json:"success"`
	Collection string `json:"collection"`
	Added      int    `json:"added"`
	Message    string `json:"message"`
}

// ProcessTextRequest ingests raw text (chunked server-side) or pre-chunked
// text into a collection.
type ProcessTextRequest struct {
	CollectionName string         `json:"collection_name"`
	Text           string         `json:"text,omitempty"`
	Chunks         []string       `json:"chunks,omitempty"`
	ChunkSize      int            `json:"chunk_size,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ProcessTextResponse reports the chunking outcome.
type ProcessTextResponse struct {
	Success     bool   `json:"success"`
	Collection  string `json:"collection"`
	TotalChunks int    `json:"total_chunks"`
	Message     string `json:"message"`
}

// CollectionQueryRequest is a single-collection nearest-neighbor query.
type CollectionQueryRequest struct {
	Question string `json:"question"`
	UserID   any    `json:"user_id,omitempty"`
	NResults int    `json:"n_results,omitempty"`
}

// CollectionQueryResponse carries the ranked chunks of one collection.
type CollectionQueryResponse struct {
	Success        bool             `json:"success"`
	Question       string           `json:"question"`
	Answer         string           `json:"answer"`
	RelevantChunks []string         `json:"relevant_chunks"`
	Similarities   []float32        `json:"similarities"`
	Metadata       []map[string]any `json:"metadata"`
}

// SearchRequest is a federated search across collections. UserID may arrive
// as either a JSON string or number; both address the same owner.
type SearchRequest struct {
	Query  string `json:"query"`
	UserID any    `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// SearchResponse is the globally ranked federated result list.
type SearchResponse struct {
	Success      bool         `json:"success"`
	Query        string       `json:"query"`
	TotalResults int          `json:"total_results"`
	Results      []QueryMatch `json:"results"`
}

// ChatRequest asks a question against the owner's collections, optionally
// continuing an existing conversation.
type ChatRequest struct {
	Question       string `json:"question"`
	UserID         any    `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// ChatResponse is a composed answer with its supporting citations.
type ChatResponse struct {
	Success        bool       `json:"success"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
	Sources        []Citation `json:"sources"`
	TotalSources   int        `json:"total_sources"`
}

// StatsResponse summarizes an owner's (or the whole store's) collections.
type StatsResponse struct {
	Success bool            `json:"success"`
	UserID  string          `json:"user_id,omitempty"`
	Stats   CollectionStats `json:"stats"`
}

// CollectionStats aggregates document counts across collections.
type CollectionStats struct {
	TotalCollections int              `json:"total_collections"`
	TotalDocuments   int              `json:"total_documents"`
	Collections      []CollectionInfo `json:"collections"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

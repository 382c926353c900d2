package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"docqa/internal/catalog"
	"docqa/internal/chat"
	"docqa/internal/composer"
	"docqa/internal/config"
	"docqa/internal/conversation"
	"docqa/internal/embeddings"
	apperrors "docqa/internal/errors"
	"docqa/internal/federation"
	"docqa/internal/ingest"
	"docqa/internal/models"
	"docqa/internal/ownership"
	"docqa/internal/storage"
)

// memStore is an in-memory Store with real distance ranking, so handler
// tests exercise retrieval end to end with the deterministic hash embedder.
type memStore struct {
	mu          sync.Mutex
	order       []string
	collections map[string]*memCollection
}

type memCollection struct {
	meta models.CollectionMeta
	docs []models.Document
}

func newMemStore() *memStore {
	return &memStore{collections: make(map[string]*memCollection)}
}

func (m *memStore) ListCollections(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...), nil
}

func (m *memStore) GetOrCreateCollection(_ context.Context, name string, meta models.CollectionMeta) (models.CollectionInfo, error) {
	if name == "" {
		return models.CollectionInfo{}, apperrors.InvalidInput("collection name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, exists := m.collections[name]
	if !exists {
		col = &memCollection{meta: meta}
		m.collections[name] = col
		m.order = append(m.order, name)
	}
	return models.CollectionInfo{Name: name, Metadata: col.meta, Count: len(col.docs)}, nil
}

func (m *memStore) AddDocuments(_ context.Context, collection string, docs []models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, exists := m.collections[collection]
	if !exists {
		col = &memCollection{}
		m.collections[collection] = col
		m.order = append(m.order, collection)
	}
	col.docs = append(col.docs, docs...)
	return nil
}

func (m *memStore) Query(_ context.Context, collection string, embedding []float32, topK int) ([]storage.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, exists := m.collections[collection]
	if !exists {
		return nil, apperrors.NotFound("collection", collection)
	}

	matches := make([]storage.Match, len(col.docs))
	for i, doc := range col.docs {
		matches[i] = storage.Match{
			ID:       doc.ID,
			Text:     doc.Text,
			Distance: l2Distance(embedding, doc.Embedding),
			Metadata: doc.Metadata.ToMap(),
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *memStore) GetCollectionInfo(_ context.Context, name string) (models.CollectionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, exists := m.collections[name]
	if !exists {
		return models.CollectionInfo{}, apperrors.NotFound("collection", name)
	}
	return models.CollectionInfo{Name: name, Metadata: col.meta, Count: len(col.docs)}, nil
}

func (m *memStore) Count(_ context.Context, collection string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, exists := m.collections[collection]
	if !exists {
		return 0, apperrors.NotFound("collection", collection)
	}
	return len(col.docs), nil
}

func (m *memStore) Close() error { return nil }

func l2Distance(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 8080, ReadTimeout: 30, WriteTimeout: 30},
		Search: config.SearchConfig{
			ScopedTopK:        5,
			PublicTopK:        3,
			CollectionTimeout: 10,
			DefaultLimit:      10,
			MaxLimit:          50,
		},
		Conversation: config.ConversationConfig{HistoryWindow: 10},
		Security:     config.SecurityConfig{ErrorMode: "detailed"},
		App:          config.AppConfig{Environment: "development", LogLevel: "info"},
	}
}

func createTestServer() (http.Handler, *memStore) {
	cfg := testConfig()
	store := newMemStore()
	embedder := embeddings.NewHashProvider()

	filter := ownership.NewFilter(store, nil)
	engine := federation.NewEngine(store, embedder, filter, federation.Options{
		ScopedTopK:        cfg.Search.ScopedTopK,
		PublicTopK:        cfg.Search.PublicTopK,
		CollectionTimeout: cfg.CollectionTimeout(),
	}, nil)

	conversations := conversation.NewMemoryStore(0)
	comp := composer.New(nil, cfg.Conversation.HistoryWindow, nil)

	chatSvc := chat.NewService(engine, conversations, comp, cfg.Search.MaxLimit, nil)
	catalogSvc := catalog.NewService(store, filter, nil)
	ingestSvc := ingest.NewService(store, embedder, nil)

	server := NewServer(cfg, engine, chatSvc, catalogSvc, ingestSvc, store, embedder, comp, nil)
	return server.Handler(), store
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
}

// seedPetCollections ingests two owned collections and one for another
// owner, all through the public ingestion endpoints.
func seedPetCollections(t *testing.T, handler http.Handler) {
	t.Helper()

	collections := []struct {
		name  string
		owner string
		docs  []string
	}{
		{"pets", "7", []string{"cat cat cat", "dog dog dog"}},
		{"hobbies", "7", []string{"guitar guitar guitar"}},
		{"cars", "9", []string{"car car car"}},
	}

	for _, c := range collections {
		w := doJSON(t, handler, http.MethodPost, "/api/chroma/collections", models.CreateCollectionRequest{
			Name:     c.name,
			Metadata: map[string]any{"user_id": c.owner},
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("Failed to seed collection %s: status %d", c.name, w.Code)
		}

		w = doJSON(t, handler, http.MethodPost,
			fmt.Sprintf("/api/chroma/collections/%s/documents", c.name),
			models.AddDocumentsRequest{Documents: c.docs})
		if w.Code != http.StatusCreated {
			t.Fatalf("Failed to seed documents for %s: status %d", c.name, w.Code)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := createTestServer()

	w := doJSON(t, handler, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.HealthResponse
	decodeBody(t, w, &response)
	if !response.Success || response.Status != "healthy" {
		t.Errorf("Expected healthy response, got %+v", response)
	}
	if response.Timestamp == "" {
		t.Error("Expected a timestamp on the health response")
	}
}

func TestCreateCollectionEndpoint(t *testing.T) {
	handler, _ := createTestServer()

	w := doJSON(t, handler, http.MethodPost, "/api/chroma/collections", models.CreateCollectionRequest{
		Name:     "docs",
		Metadata: map[string]any{"user_id": float64(7)},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d", http.StatusCreated, w.Code)
	}

	var response models.CollectionResponse
	decodeBody(t, w, &response)
	if !response.Success || response.Collection.Name != "docs" {
		t.Errorf("Expected created collection 'docs', got %+v", response)
	}
	if response.Collection.Metadata.Owner != "7" {
		t.Errorf("Expected numeric owner normalized to '7', got '%s'", response.Collection.Metadata.Owner)
	}
}

func TestCreateCollectionMissingName(t *testing.T) {
	handler, _ := createTestServer()

	w := doJSON(t, handler, http.MethodPost, "/api/chroma/collections", models.CreateCollectionRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestCreateCollectionInvalidJSON(t *testing.T) {
	handler, _ := createTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/chroma/collections", bytes.NewBufferString("invalid json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestQueryCollectionEndpoint(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodPost, "/api/chroma/collections/pets/query", models.CollectionQueryRequest{
		Question: "cat",
		UserID:   "7",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response models.CollectionQueryResponse
	decodeBody(t, w, &response)
	if len(response.RelevantChunks) == 0 {
		t.Fatal("Expected relevant chunks")
	}
	if response.RelevantChunks[0] != "cat cat cat" {
		t.Errorf("Expected 'cat cat cat' ranked first, got '%s'", response.RelevantChunks[0])
	}
	if response.Answer == "" {
		t.Error("Expected a composed answer")
	}
}

func TestQueryCollectionForbidden(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodPost, "/api/chroma/collections/pets/query", models.CollectionQueryRequest{
		Question: "cat",
		UserID:   "9",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d for foreign owner, got %d", http.StatusForbidden, w.Code)
	}
}

func TestQueryCollectionLooseOwnerMatch(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	// The collection stores owner "7"; a numeric user id 7 must match.
	w := doJSON(t, handler, http.MethodPost, "/api/chroma/collections/pets/query", models.CollectionQueryRequest{
		Question: "cat",
		UserID:   float64(7),
	})
	if w.Code != http.StatusOK {
		t.Errorf("Expected numeric owner id to match string owner, got status %d", w.Code)
	}
}

func TestQueryCollectionRequiresQuestion(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodPost, "/api/chroma/collections/pets/query", models.CollectionQueryRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGlobalSearchEndpoint(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodPost, "/api/advanced/global-search", models.SearchRequest{
		Query:  "cat",
		UserID: "7",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response models.SearchResponse
	decodeBody(t, w, &response)
	if response.TotalResults == 0 {
		t.Fatal("Expected results from the owner's collections")
	}
	if response.Results[0].Text != "cat cat cat" {
		t.Errorf("Expected 'cat cat cat' ranked first, got '%s'", response.Results[0].Text)
	}
	for _, r := range response.Results {
		if r.Collection == "cars" {
			t.Error("Expected no results from a foreign owner's collection")
		}
	}
}

func TestGlobalSearchRequiresOwner(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodPost, "/api/advanced/global-search", models.SearchRequest{Query: "cat"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d without user_id, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGlobalSearchRequiresQuery(t *testing.T) {
	handler, _ := createTestServer()

	w := doJSON(t, handler, http.MethodPost, "/api/advanced/global-search", models.SearchRequest{UserID: "7"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d without query, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGlobalSearchOwnerFromHeader(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	body, _ := json.Marshal(models.SearchRequest{Query: "cat"})
	req := httptest.NewRequest(http.MethodPost, "/api/advanced/global-search", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected header-supplied owner to be accepted, got status %d", w.Code)
	}
}

func TestPublicSearchEndpoint(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodPost, "/api/public/search", models.SearchRequest{Query: "car"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.SearchResponse
	decodeBody(t, w, &response)
	if response.TotalResults == 0 {
		t.Fatal("Expected public search to span all collections")
	}
	if response.Results[0].Text != "car car car" {
		t.Errorf("Expected 'car car car' ranked first, got '%s'", response.Results[0].Text)
	}
}

func TestGlobalChatEndpoint(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodPost, "/api/advanced/global-chat", models.ChatRequest{
		Question: "cat",
		UserID:   "7",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var first models.ChatResponse
	decodeBody(t, w, &first)
	if first.ConversationID == "" {
		t.Fatal("Expected a conversation id")
	}
	if first.TotalSources == 0 {
		t.Error("Expected sources for the answer")
	}

	// A follow-up question stays in the same conversation.
	w = doJSON(t, handler, http.MethodPost, "/api/advanced/global-chat", models.ChatRequest{
		Question:       "dog",
		UserID:         "7",
		ConversationID: first.ConversationID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d for follow-up, got %d", http.StatusOK, w.Code)
	}

	var second models.ChatResponse
	decodeBody(t, w, &second)
	if second.ConversationID != first.ConversationID {
		t.Error("Expected the follow-up to reuse the conversation")
	}

	w = doJSON(t, handler, http.MethodGet, "/api/advanced/conversations/"+first.ConversationID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d fetching conversation, got %d", http.StatusOK, w.Code)
	}

	var convResp struct {
		Conversation conversation.Conversation `json:"conversation"`
	}
	decodeBody(t, w, &convResp)
	if len(convResp.Conversation.Messages) != 4 {
		t.Errorf("Expected 4 messages after two turns, got %d", len(convResp.Conversation.Messages))
	}
}

func TestGlobalChatUnknownConversation(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodPost, "/api/advanced/global-chat", models.ChatRequest{
		Question:       "cat",
		UserID:         "7",
		ConversationID: "conv-7-missing",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d for unknown conversation, got %d", http.StatusNotFound, w.Code)
	}
}

func TestPublicChatEndpoint(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodPost, "/api/public/chat", models.ChatRequest{Question: "car"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.ChatResponse
	decodeBody(t, w, &response)
	if response.ConversationID != "" {
		t.Error("Expected no conversation id for public chat")
	}
	if response.Answer == "" {
		t.Error("Expected a composed answer")
	}
}

func TestProcessTextEndpoint(t *testing.T) {
	handler, store := createTestServer()

	text := strings.Repeat("a", 2500)

	w := doJSON(t, handler, http.MethodPost, "/api/text/process", models.ProcessTextRequest{
		CollectionName: "notes",
		Text:           text,
		ChunkSize:      1000,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var response models.ProcessTextResponse
	decodeBody(t, w, &response)
	if response.TotalChunks != 3 {
		t.Errorf("Expected 3 chunks, got %d", response.TotalChunks)
	}
	if len(store.collections["notes"].docs) != 3 {
		t.Errorf("Expected 3 stored documents, got %d", len(store.collections["notes"].docs))
	}
}

func TestProcessTextRequiresCollection(t *testing.T) {
	handler, _ := createTestServer()

	w := doJSON(t, handler, http.MethodPost, "/api/text/process", models.ProcessTextRequest{Text: "hello"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestUserCollectionsEndpoint(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodGet, "/api/text/collections/user/7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.CollectionListResponse
	decodeBody(t, w, &response)
	if response.TotalCollections != 2 {
		t.Errorf("Expected 2 collections for owner 7, got %d", response.TotalCollections)
	}
}

func TestUserStatsEndpoint(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodGet, "/api/advanced/user/7/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.StatsResponse
	decodeBody(t, w, &response)
	if response.Stats.TotalCollections != 2 {
		t.Errorf("Expected 2 collections, got %d", response.Stats.TotalCollections)
	}
	if response.Stats.TotalDocuments != 3 {
		t.Errorf("Expected 3 documents, got %d", response.Stats.TotalDocuments)
	}
}

func TestSearchCollectionsEndpoint(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodGet, "/api/advanced/search-collections?q=pets&user_id=7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.CollectionListResponse
	decodeBody(t, w, &response)
	if response.TotalCollections != 1 || response.Collections[0].Name != "pets" {
		t.Errorf("Expected to find 'pets', got %+v", response.Collections)
	}

	w = doJSON(t, handler, http.MethodGet, "/api/advanced/search-collections?user_id=7", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d without search term, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestPublicCollectionsEndpoint(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodGet, "/api/public/collections", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.CollectionListResponse
	decodeBody(t, w, &response)
	if response.TotalCollections != 3 {
		t.Errorf("Expected all 3 collections, got %d", response.TotalCollections)
	}
}

func TestListConversationsEndpoint(t *testing.T) {
	handler, _ := createTestServer()
	seedPetCollections(t, handler)

	w := doJSON(t, handler, http.MethodPost, "/api/advanced/global-chat", models.ChatRequest{
		Question: "cat", UserID: "7",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Failed to start conversation: %d", w.Code)
	}

	w = doJSON(t, handler, http.MethodGet, "/api/advanced/conversations?user_id=7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response struct {
		Total         int                         `json:"total"`
		Conversations []conversation.Conversation `json:"conversations"`
	}
	decodeBody(t, w, &response)
	if response.Total != 1 {
		t.Errorf("Expected 1 conversation, got %d", response.Total)
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ory/herodot"

	"docqa/internal/chat"
	apperrors "docqa/internal/errors"
	"docqa/internal/federation"
	"docqa/internal/models"
	"docqa/internal/ownership"
)

// decodeJSON decodes the request body, rejecting malformed payloads.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.InvalidInput("invalid JSON body")
	}
	return nil
}

// resolveOwner normalizes the owner id from the request body, falling back
// to the X-User-ID header. Numeric and string forms of the same id resolve
// to the same owner.
func resolveOwner(bodyValue any, r *http.Request) string {
	if owner := ownership.Canonical(models.ScalarString(bodyValue)); owner != "" {
		return owner
	}
	return ownership.Canonical(r.Header.Get("X-User-ID"))
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCollectionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	info, err := s.ingest.CreateCollection(r.Context(), req.Name, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.WriteCode(w, r, http.StatusCreated, models.CollectionResponse{
		Success:    true,
		Collection: info,
	})
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	infos, err := s.catalog.ListAll(r.Context(), queryInt(r, "limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, models.CollectionListResponse{
		Success:          true,
		TotalCollections: len(infos),
		Collections:      infos,
	})
}

func (s *Server) addDocuments(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req models.AddDocumentsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	added, err := s.ingest.AddDocuments(r.Context(), name, req.Documents, req.Metadatas, req.IDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.WriteCode(w, r, http.StatusCreated, models.AddDocumentsResponse{
		Success:    true,
		Collection: name,
		Added:      added,
		Message:    "documents added successfully",
	})
}

// queryCollection runs a nearest-neighbor query against one collection. A
// caller supplying a user id must own the collection; collections without
// an owner are open to everyone.
func (s *Server) queryCollection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req models.CollectionQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, r, apperrors.InvalidInput("question is required"))
		return
	}

	info, err := s.store.GetCollectionInfo(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner := resolveOwner(req.UserID, r)
	if owner != "" && info.Metadata.Owner != "" && ownership.Canonical(info.Metadata.Owner) != owner {
		s.writer.WriteError(w, r, herodot.ErrForbidden.WithReason("collection belongs to a different user"))
		return
	}

	nResults := req.NResults
	if nResults <= 0 {
		nResults = 5
	}
	vector, err := s.embedder.EmbedQuery(r.Context(), req.Question)
	if err != nil {
		s.writeError(w, r, apperrors.Unavailable("embedding provider", err))
		return
	}
	matches, err := s.store.Query(r.Context(), name, vector, nResults)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	chunks := make([]string, len(matches))
	similarities := make([]float32, len(matches))
	metadata := make([]map[string]any, len(matches))
	for i, m := range matches {
		chunks[i] = m.Text
		similarities[i] = m.Distance
		metadata[i] = m.Metadata
	}

	s.writer.Write(w, r, models.CollectionQueryResponse{
		Success:        true,
		Question:       req.Question,
		Answer:         s.composer.Compose(r.Context(), req.Question, chunks, nil),
		RelevantChunks: chunks,
		Similarities:   similarities,
		Metadata:       metadata,
	})
}

func (s *Server) processText(w http.ResponseWriter, r *http.Request) {
	var req models.ProcessTextRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.CollectionName == "" {
		s.writeError(w, r, apperrors.InvalidInput("collection_name is required"))
		return
	}

	var total int
	var err error
	if len(req.Chunks) > 0 {
		total, err = s.ingest.ProcessChunks(r.Context(), req.CollectionName, req.Chunks, req.Metadata)
	} else {
		total, err = s.ingest.ProcessText(r.Context(), req.CollectionName, req.Text, req.ChunkSize, req.Metadata)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.WriteCode(w, r, http.StatusCreated, models.ProcessTextResponse{
		Success:     true,
		Collection:  req.CollectionName,
		TotalChunks: total,
		Message:     "text processed successfully",
	})
}

func (s *Server) listUserCollections(w http.ResponseWriter, r *http.Request) {
	owner := ownership.Canonical(r.PathValue("userID"))
	if owner == "" {
		s.writeError(w, r, apperrors.InvalidInput("user id is required"))
		return
	}

	infos, err := s.catalog.ListByOwner(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, models.CollectionListResponse{
		Success:          true,
		TotalCollections: len(infos),
		Collections:      infos,
	})
}

func (s *Server) globalSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, r, apperrors.InvalidInput("query is required"))
		return
	}
	owner := resolveOwner(req.UserID, r)
	if owner == "" {
		s.writeError(w, r, apperrors.InvalidInput("user_id is required"))
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.Search.DefaultLimit
	}
	if limit > s.cfg.Search.MaxLimit {
		limit = s.cfg.Search.MaxLimit
	}

	results, err := s.engine.Search(r.Context(), req.Query, federation.Scope{Owner: owner}, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, models.SearchResponse{
		Success:      true,
		Query:        req.Query,
		TotalResults: len(results),
		Results:      results,
	})
}

func (s *Server) publicSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, r, apperrors.InvalidInput("query is required"))
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.Search.DefaultLimit
	}
	if limit > s.cfg.Search.MaxLimit {
		limit = s.cfg.Search.MaxLimit
	}

	results, err := s.engine.Search(r.Context(), req.Query, federation.Public(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, models.SearchResponse{
		Success:      true,
		Query:        req.Query,
		TotalResults: len(results),
		Results:      results,
	})
}

func (s *Server) searchCollections(w http.ResponseWriter, r *http.Request) {
	owner := resolveOwner(r.URL.Query().Get("user_id"), r)
	infos, err := s.catalog.SearchCollections(r.Context(), r.URL.Query().Get("q"), owner, queryInt(r, "limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, models.CollectionListResponse{
		Success:          true,
		TotalCollections: len(infos),
		Collections:      infos,
	})
}

func (s *Server) publicSearchCollections(w http.ResponseWriter, r *http.Request) {
	infos, err := s.catalog.SearchCollections(r.Context(), r.URL.Query().Get("q"), "", queryInt(r, "limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, models.CollectionListResponse{
		Success:          true,
		TotalCollections: len(infos),
		Collections:      infos,
	})
}

func (s *Server) publicCollections(w http.ResponseWriter, r *http.Request) {
	infos, err := s.catalog.ListAll(r.Context(), queryInt(r, "limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, models.CollectionListResponse{
		Success:          true,
		TotalCollections: len(infos),
		Collections:      infos,
	})
}

func (s *Server) userStats(w http.ResponseWriter, r *http.Request) {
	owner := ownership.Canonical(r.PathValue("userID"))
	if owner == "" {
		s.writeError(w, r, apperrors.InvalidInput("user id is required"))
		return
	}

	stats, err := s.catalog.Stats(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, models.StatsResponse{
		Success: true,
		UserID:  owner,
		Stats:   stats,
	})
}

func (s *Server) globalChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.chat.Ask(r.Context(), chat.AskRequest{
		Question:       req.Question,
		Owner:          resolveOwner(req.UserID, r),
		ConversationID: req.ConversationID,
		Limit:          req.Limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, models.ChatResponse{
		Success:        true,
		ConversationID: result.ConversationID,
		Question:       result.Question,
		Answer:         result.Answer,
		Sources:        result.Sources,
		TotalSources:   result.TotalSources,
	})
}

func (s *Server) publicChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.chat.AskPublic(r.Context(), req.Question, req.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, models.ChatResponse{
		Success:      true,
		Question:     result.Question,
		Answer:       result.Answer,
		Sources:      result.Sources,
		TotalSources: result.TotalSources,
	})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	owner := resolveOwner(r.URL.Query().Get("user_id"), r)
	convs, err := s.chat.ListConversations(owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, map[string]any{
		"success":       true,
		"total":         len(convs),
		"conversations": convs,
	})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.chat.GetConversation(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writer.Write(w, r, map[string]any{
		"success":      true,
		"conversation": conv,
	})
}

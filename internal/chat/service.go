// Package chat runs the conversational question-answering loop: federated
// retrieval, turn bookkeeping and answer composition.
package chat

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/composer"
	"docqa/internal/conversation"
	apperrors "docqa/internal/errors"
	"docqa/internal/federation"
	"docqa/internal/models"
)

const (
	defaultChatLimit       = 7
	defaultPublicChatLimit = 5
	citedSources           = 3
	scopedExcerptChars     = 200
	publicExcerptChars     = 150
)

// Service orchestrates question answering.
type Service struct {
	engine        *federation.Engine
	conversations conversation.Store
	composer      *composer.Composer
	maxLimit      int
	logger        *zap.Logger
}

// NewService creates a chat service. maxLimit caps the evidence a single
// question may request; <= 0 disables the cap.
func NewService(engine *federation.Engine, conversations conversation.Store, comp *composer.Composer, maxLimit int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:        engine,
		conversations: conversations,
		composer:      comp,
		maxLimit:      maxLimit,
		logger:        logger,
	}
}

// AskRequest is a question scoped to one owner, optionally continuing an
// existing conversation.
type AskRequest struct {
	Question       string
	Owner          string
	ConversationID string
	Limit          int
}

// AskResult is a composed answer with citations.
type AskResult struct {
	ConversationID string
	Question       string
	Answer         string
	Sources        []models.Citation
	TotalSources   int
}

// Ask answers a question against the owner's collections within a
// conversation: retrieve evidence, append the user turn, compose with
// evidence plus recent turns, append the assistant turn with its citations.
func (s *Service) Ask(ctx context.Context, req AskRequest) (AskResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return AskResult{}, apperrors.InvalidInput("question is required")
	}
	if req.Owner == "" {
		return AskResult{}, apperrors.InvalidInput("user_id is required")
	}
	limit := s.clampLimit(req.Limit, defaultChatLimit)

	var conv conversation.Conversation
	var err error
	if req.ConversationID != "" {
		conv, err = s.conversations.Get(req.ConversationID)
		if err != nil {
			return AskResult{}, err
		}
	} else {
		conv = s.conversations.Start(conversation.GlobalScope, req.Owner)
	}

	matches, err := s.engine.Search(ctx, req.Question, federation.Scope{Owner: req.Owner}, limit)
	if err != nil {
		return AskResult{}, err
	}

	userMsg, err := s.conversations.AddMessage(conv.ID, conversation.RoleUser, req.Question, nil)
	if err != nil {
		return AskResult{}, err
	}
	history := append(conv.Messages, userMsg)

	evidence := make([]string, len(matches))
	for i, m := range matches {
		evidence[i] = m.Text
	}
	answer := s.composer.Compose(ctx, req.Question, evidence, history)

	cited := matches
	if len(cited) > citedSources {
		cited = cited[:citedSources]
	}
	if _, err := s.conversations.AddMessage(conv.ID, conversation.RoleAssistant, answer, cited); err != nil {
		return AskResult{}, err
	}

	return AskResult{
		ConversationID: conv.ID,
		Question:       req.Question,
		Answer:         answer,
		Sources:        citations(matches, scopedExcerptChars, false),
		TotalSources:   len(matches),
	}, nil
}

// AskPublic answers a one-shot question across all collections with no
// conversation persistence.
func (s *Service) AskPublic(ctx context.Context, question string, limit int) (AskResult, error) {
	if strings.TrimSpace(question) == "" {
		return AskResult{}, apperrors.InvalidInput("question is required")
	}
	limit = s.clampLimit(limit, defaultPublicChatLimit)

	matches, err := s.engine.Search(ctx, question, federation.Scope{}, limit)
	if err != nil {
		return AskResult{}, err
	}

	evidence := make([]string, len(matches))
	for i, m := range matches {
		evidence[i] = m.Text
	}
	answer := s.composer.Compose(ctx, question, evidence, nil)

	return AskResult{
		Question:     question,
		Answer:       answer,
		Sources:      citations(matches, publicExcerptChars, true),
		TotalSources: len(matches),
	}, nil
}

// ListConversations returns the owner's conversations, most recent first.
func (s *Service) ListConversations(ownerID string) ([]conversation.Conversation, error) {
	if ownerID == "" {
		return nil, apperrors.InvalidInput("user_id is required")
	}
	return s.conversations.ListByOwner(ownerID), nil
}

// GetConversation returns one conversation by id.
func (s *Service) GetConversation(id string) (conversation.Conversation, error) {
	return s.conversations.Get(id)
}

func (s *Service) clampLimit(limit, fallback int) int {
	if limit <= 0 {
		limit = fallback
	}
	if s.maxLimit > 0 && limit > s.maxLimit {
		limit = s.maxLimit
	}
	return limit
}

// citations converts matches into wire citations. Public responses invert
// the distance into a similarity score; scoped responses keep the raw
// distance, matching what their respective clients already expect.
func citations(matches []models.QueryMatch, excerptChars int, invert bool) []models.Citation {
	out := make([]models.Citation, len(matches))
	for i, m := range matches {
		score := m.Distance
		if invert {
			score = 1 - m.Distance
		}
		out[i] = models.Citation{
			Collection: m.Collection,
			Document:   models.Excerpt(m.Text, excerptChars),
			Similarity: score,
			Metadata:   m.Metadata,
		}
	}
	return out
}

// Package composer turns a question, retrieved evidence and recent
// conversation turns into a response string.
package composer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/conversation"
	"docqa/internal/models"
)

const (
	// EvidenceSeparator joins evidence fragments in the context window.
	EvidenceSeparator = "\n\n---\n\n"

	// defaultHistoryWindow is the fixed sliding window of prior turns.
	defaultHistoryWindow = 10

	// maxContextChars bounds the evidence context fed to any strategy.
	maxContextChars = 4000

	// excerptChars bounds the evidence prefix echoed by the extractive
	// strategy.
	excerptChars = 800
)

// Generator is a pluggable "respond given evidence" backend. A generative
// model implements it; the composer falls back to evidence excerpting when
// none is configured or the backend errors.
type Generator interface {
	Generate(ctx context.Context, question string, evidence []string, history []conversation.Message) (string, error)
}

// Composer produces answers. It never fails: every path, including empty
// evidence and generator errors, yields a response string.
type Composer struct {
	gen    Generator
	window int
	logger *zap.Logger
}

// New creates a composer. gen may be nil for extractive-only operation;
// window <= 0 selects the default sliding window of 10 turns.
func New(gen Generator, window int, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = defaultHistoryWindow
	}
	return &Composer{gen: gen, window: window, logger: logger}
}

// Compose builds a bounded context from the evidence and at most the last
// `window` history turns, then produces a response.
func (c *Composer) Compose(ctx context.Context, question string, evidence []string, history []conversation.Message) string {
	evidenceContext := BuildContext(evidence)
	recent := lastTurns(history, c.window)

	if c.gen != nil {
		answer, err := c.gen.Generate(ctx, question, evidence, recent)
		if err == nil && strings.TrimSpace(answer) != "" {
			return answer
		}
		if err != nil {
			c.logger.Warn("generator failed, using extractive answer", zap.Error(err))
		}
	}

	return c.extractive(question, evidenceContext)
}

// BuildContext joins evidence fragments with separators and truncates the
// result defensively.
func BuildContext(evidence []string) string {
	joined := strings.Join(evidence, EvidenceSeparator)
	return models.Excerpt(joined, maxContextChars)
}

// extractive is the reference fallback strategy: a bounded evidence prefix
// followed by a templated acknowledgement of the question.
func (c *Composer) extractive(question, evidenceContext string) string {
	if strings.TrimSpace(evidenceContext) == "" {
		return fmt.Sprintf(
			"No relevant information was found in the available documents for %q. "+
				"Try rephrasing the question or adding the relevant documents first.",
			question,
		)
	}

	return fmt.Sprintf(
		"Based on the documents provided, here is the relevant information:\n\n%s\n\n"+
			"**Answer for %q:**\n"+
			"The information relevant to your question is contained in the text above. "+
			"Ask for a more specific detail if you need a narrower answer.",
		models.Excerpt(evidenceContext, excerptChars),
		question,
	)
}

// FormatHistory renders turns as "role: content" lines for prompt building.
func FormatHistory(history []conversation.Message) string {
	lines := make([]string, len(history))
	for i, msg := range history {
		lines[i] = msg.Role + ": " + msg.Content
	}
	return strings.Join(lines, "\n")
}

func lastTurns(history []conversation.Message, n int) []conversation.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

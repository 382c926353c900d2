// Package llm provides the generative answer backend.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docqa/internal/composer"
	"docqa/internal/conversation"
)

// OllamaClient generates answers with an Ollama-served model. It implements
// composer.Generator.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates an Ollama generation client.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Generate answers the question from the evidence and recent turns.
func (o *OllamaClient) Generate(ctx context.Context, question string, evidence []string, history []conversation.Message) (string, error) {
	prompt := o.buildPrompt(question, evidence, history)

	reqBody := map[string]interface{}{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}

	return result.Response, nil
}

func (o *OllamaClient) buildPrompt(question string, evidence []string, history []conversation.Message) string {
	var b strings.Builder

	b.WriteString("You are an assistant that helps users understand their documents.\n\n")
	b.WriteString("REFERENCE DOCUMENTS:\n")
	b.WriteString(composer.BuildContext(evidence))
	b.WriteString("\n\n")

	if len(history) > 0 {
		b.WriteString("CONVERSATION HISTORY:\n")
		b.WriteString(composer.FormatHistory(history))
		b.WriteString("\n\n")
	}

	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("- Answer based on the reference documents above\n")
	b.WriteString("- If the information is not in the documents, say so honestly\n")
	b.WriteString("- Keep the answer natural and easy to understand\n\n")
	b.WriteString(fmt.Sprintf("USER QUESTION: %s\n\nASSISTANT RESPONSE:", question))

	return b.String()
}

var _ composer.Generator = (*OllamaClient)(nil)

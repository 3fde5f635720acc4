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

	"docqa/internal/config"
)

// AnswerResult is the normalized outcome of one completion request.
// Exactly one of Answer and Err is set. The chat endpoint relies on
// this to decide HTTP status codes, so Generate never lets a failure
// escape any other way.
type AnswerResult struct {
	Answer string
	Err    string
}

func (r AnswerResult) OK() bool {
	return r.Err == ""
}

// Client issues synchronous chat-completion requests with a hard
// timeout. Constructed once at startup and shared.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
}

func NewClient(cfg *config.LLMConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Error   json.RawMessage `json:"error"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const maxErrorBody = 512

// Generate sends the prompt and normalizes every failure path into the
// Err field. The API key is passed per call and never logged.
func (c *Client) Generate(ctx context.Context, apiKey, prompt string) AnswerResult {
	payload, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return AnswerResult{Err: fmt.Sprintf("request failed: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return AnswerResult{Err: fmt.Sprintf("request failed: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(apiKey, "Bearer "))

	resp, err := c.http.Do(req)
	if err != nil {
		return AnswerResult{Err: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AnswerResult{Err: fmt.Sprintf("request failed: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return AnswerResult{Err: fmt.Sprintf("api error: status %d: %s", resp.StatusCode, truncate(string(body), maxErrorBody))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return AnswerResult{Err: fmt.Sprintf("api error: malformed response: %v", err)}
	}
	if len(parsed.Error) > 0 && string(parsed.Error) != "null" {
		return AnswerResult{Err: fmt.Sprintf("api error: %s", truncate(string(parsed.Error), maxErrorBody))}
	}
	if len(parsed.Choices) == 0 {
		return AnswerResult{Err: "api error: empty completion"}
	}
	return AnswerResult{Answer: parsed.Choices[0].Message.Content}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

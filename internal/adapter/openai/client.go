// Package openai provides the chat-completions decision oracle. Any
// OpenAI-compatible endpoint works, including local proxies.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/haldis/agentrelay/internal/config"
	"github.com/haldis/agentrelay/internal/domain/run"
	"github.com/haldis/agentrelay/internal/port/oracle"
	toolsport "github.com/haldis/agentrelay/internal/port/tools"
)

// Client calls the chat completions API to produce the next action.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	tools      []map[string]any
}

// NewClient creates an oracle client with a fixed tool catalog. The catalog
// is sent with every request so the model can plan tool calls.
func NewClient(cfg config.Oracle, defs []toolsport.Definition) *Client {
	wired := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		wired = append(wired, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  d.Parameters,
			},
		})
	}

	return &Client{
		baseURL:   cfg.URL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		tools: wired,
	}
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type completionRequest struct {
	Model     string           `json:"model"`
	Messages  []wireMessage    `json:"messages"`
	Tools     []map[string]any `json:"tools,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

// NextAction asks the model for the next assistant turn. A response with no
// choices yields a nil action and nil error; the run loop treats that as a
// fatal empty response.
func (c *Client) NextAction(ctx context.Context, transcript []run.Message) (*oracle.Action, error) {
	req := completionRequest{
		Model:     c.model,
		Messages:  toWire(transcript),
		Tools:     c.tools,
		MaxTokens: c.maxTokens,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	data, err := c.doRequest(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	var resp completionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	msg := resp.Choices[0].Message
	action := &oracle.Action{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			// Some OpenAI-compatible proxies omit tool-call ids; the tool
			// result message still needs one.
			id = "call_" + uuid.NewString()[:8]
		}
		action.ToolCalls = append(action.ToolCalls, run.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return action, nil
}

func toWire(transcript []run.Message) []wireMessage {
	out := make([]wireMessage, 0, len(transcript))
	for _, m := range transcript {
		w := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			w.ToolCalls = append(w.ToolCalls, wtc)
		}
		out = append(out, w)
	}
	return out
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("oracle API error %d: %s", resp.StatusCode, string(data))
	}

	return data, nil
}

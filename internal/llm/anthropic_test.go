package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicGenerateWithToolUse(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "toolu_1", "name": "search_candidates", "input": {"query": "ada"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 10, "output_tokens": 20}
		}`))
	}))
	defer srv.Close()

	p := NewAnthropicProviderWithBaseURL("test-key", srv.URL)
	resp, err := p.Generate(context.Background(), &Request{
		Model:     DefaultAnthropicModel,
		System:    "You are a recruiting assistant.",
		MaxTokens: 1024,
		Messages: []Message{
			{Role: "user", Content: "find ada"},
		},
		Tools: []Tool{{
			Name:        "search_candidates",
			Description: "Search candidates by name",
			InputSchema: map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Let me check.", resp.Content)
	assert.Equal(t, "tool_use", resp.StopReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "search_candidates", resp.ToolCalls[0].Name)
	assert.Equal(t, "ada", resp.ToolCalls[0].Arguments["query"])
	assert.Equal(t, 10, resp.InputTokens)
	assert.Equal(t, 20, resp.OutputTokens)

	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "You are a recruiting assistant.", captured.System)
}

func TestAnthropicTranscriptRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// user text, assistant tool_use, user tool_result
		require.Len(t, req.Messages, 3)
		assert.Equal(t, "tool_use", req.Messages[1].Content[0].Type)
		assert.Equal(t, "tool_result", req.Messages[2].Content[0].Type)
		assert.Equal(t, "toolu_1", req.Messages[2].Content[0].ToolUseID)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_2",
			"content": [{"type": "text", "text": "Found one match."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 30, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	p := NewAnthropicProviderWithBaseURL("test-key", srv.URL)
	resp, err := p.Generate(context.Background(), &Request{
		Model:     DefaultAnthropicModel,
		MaxTokens: 1024,
		Messages: []Message{
			{Role: "user", Content: "find ada"},
			{Role: "assistant", ToolCalls: []ToolCall{{ID: "toolu_1", Name: "search_candidates", Arguments: map[string]any{"query": "ada"}}}},
			{Role: "user", ToolResults: []ToolResult{{CallID: "toolu_1", Content: `{"results":1}`}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Found one match.", resp.Content)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, "end_turn", resp.StopReason)
}

func TestAnthropicAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProviderWithBaseURL("test-key", srv.URL)
	_, err := p.Generate(context.Background(), &Request{
		Model:     DefaultAnthropicModel,
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

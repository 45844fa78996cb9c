// Package llm abstracts the tool-calling model providers behind one
// synchronous interface. The turn controller drives the loop; providers
// only translate one request/response pair.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall bounds every provider call.
const TimeoutLLMCall = 60 * time.Second

// ErrNoProvider is returned when no provider credentials are configured.
var ErrNoProvider = errors.New("no llm provider configured")

// Provider is the interface all LLM providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string
	// Generate sends one completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is one LLM generation request.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
	Tools     []Tool
}

// Message is a chat message. Exactly one of Content, ToolCalls or
// ToolResults is normally set: plain text, an assistant turn proposing
// calls, or a user turn carrying results back.
type Message struct {
	Role        string // "user", "assistant"
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Tool is a tool definition passed to the LLM.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a request from the LLM to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult carries one tool's output back to the LLM.
type ToolResult struct {
	CallID  string
	Content string
}

// Response is one LLM generation response. A non-empty ToolCalls slice
// means the model wants another iteration; empty means final text.
type Response struct {
	Content      string
	StopReason   string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
	Model        string
}

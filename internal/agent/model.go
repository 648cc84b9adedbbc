// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import (
	"context"
	"encoding/json"
)

// Role tags a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason tells why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Block is one content block of a message: TextBlock, ToolUseBlock or
// ToolResultBlock.
type Block interface {
	block()
}

// TextBlock is plain text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a tool call requested by the model.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultBlock answers the ToolUseBlock with the same ID.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextBlock) block()       {}
func (ToolUseBlock) block()    {}
func (ToolResultBlock) block() {}

// Message is one turn of the conversation.
type Message struct {
	Role   Role
	Blocks []Block
}

// ToolSpec declares a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Request is a single model call.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int64
}

// Response is the model's reply.
type Response struct {
	StopReason StopReason
	Blocks     []Block
}

// Text returns the text segments of the response in emitted order.
func (r *Response) Text() []string {
	var out []string
	for _, b := range r.Blocks {
		if t, ok := b.(TextBlock); ok {
			out = append(out, t.Text)
		}
	}
	return out
}

// ToolUses returns the tool calls of the response in emitted order.
func (r *Response) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range r.Blocks {
		if t, ok := b.(ToolUseBlock); ok {
			out = append(out, t)
		}
	}
	return out
}

// Model is a language model that can call tools.
type Model interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

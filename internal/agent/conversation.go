// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import (
	"fmt"

	qerrors "querydesk/cli/internal/errors"
)

// Conversation is the message history of one query. A message carrying tool
// results must directly follow the assistant message that requested them and
// answer every pending call exactly once, in request order.
type Conversation struct {
	msgs    []Message
	pending []string
}

// Append adds m or reports why it would break the history.
func (c *Conversation) Append(m Message) error {
	results, other := splitResults(m.Blocks)

	switch {
	case m.Role == RoleAssistant:
		if len(c.pending) > 0 {
			return protocolErr("assistant turn while %d tool calls are unanswered", len(c.pending))
		}
		if len(results) > 0 {
			return protocolErr("assistant turn carries tool results")
		}
		ids, err := toolUseIDs(m.Blocks)
		if err != nil {
			return err
		}
		c.pending = ids

	case len(results) > 0:
		if len(other) > 0 {
			return protocolErr("tool results mixed with other content")
		}
		if len(c.pending) == 0 {
			return protocolErr("tool results without a preceding tool call")
		}
		if len(results) != len(c.pending) {
			return protocolErr("got %d tool results for %d calls", len(results), len(c.pending))
		}
		for i, r := range results {
			if r.ToolUseID != c.pending[i] {
				return protocolErr("tool result %d answers %q, want %q", i, r.ToolUseID, c.pending[i])
			}
		}
		c.pending = nil

	default:
		if len(c.pending) > 0 {
			return protocolErr("user turn while %d tool calls are unanswered", len(c.pending))
		}
	}

	c.msgs = append(c.msgs, m)
	return nil
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	return append([]Message(nil), c.msgs...)
}

// Pending returns the IDs of unanswered tool calls.
func (c *Conversation) Pending() []string {
	return append([]string(nil), c.pending...)
}

func (c *Conversation) Len() int { return len(c.msgs) }

func splitResults(blocks []Block) (results []ToolResultBlock, other []Block) {
	for _, b := range blocks {
		if r, ok := b.(ToolResultBlock); ok {
			results = append(results, r)
			continue
		}
		other = append(other, b)
	}
	return results, other
}

func toolUseIDs(blocks []Block) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})
	for _, b := range blocks {
		u, ok := b.(ToolUseBlock)
		if !ok {
			continue
		}
		if u.ID == "" {
			return nil, protocolErr("tool call %q without id", u.Name)
		}
		if _, dup := seen[u.ID]; dup {
			return nil, protocolErr("duplicate tool call id %q", u.ID)
		}
		seen[u.ID] = struct{}{}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func protocolErr(format string, args ...any) error {
	return qerrors.New(qerrors.ProtocolError, fmt.Sprintf(format, args...))
}

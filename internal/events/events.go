// Package events defines the progress events the agent emits while answering
// a question, and the terminal renderer and session statistics built on them.
//
// The agent never prints. It reports state changes, resource choices, tool
// calls and their results through a Handler, and the chat surface decides how
// much of that reaches the screen.
package events

// Type enumerates known event kinds.
type Type string

const (
	// StateChanged reports a transition of the orchestration loop.
	StateChanged Type = "state_changed"
	// ResourceChosen reports the resource selected as grounding context.
	ResourceChosen Type = "resource_chosen"
	// ToolCall is emitted before a tool is invoked.
	ToolCall Type = "tool_call"
	// ToolResult is emitted after a tool returned.
	ToolResult Type = "tool_result"
	// Text carries a text segment produced by the model.
	Text Type = "text"
	// Done marks a query that produced an answer.
	Done Type = "done"
	// Failed marks a query aborted by an error.
	Failed Type = "failed"
)

// Loop states carried by StateChanged events.
const (
	StateGatheringContext = "gathering_context"
	StateAwaitingModel    = "awaiting_model"
	StateDispatchingTools = "dispatching_tools"
	StateDone             = "done"
)

// Event is a generic container for agent UI events.
// Only a subset of fields is set depending on Type.
type Event struct {
	Type    Type   `json:"type"`
	QueryID string `json:"query_id,omitempty"`

	// State change
	State string `json:"state,omitempty"`
	Turn  int    `json:"turn,omitempty"` // 1-based model call index

	// Resource choice
	URI string `json:"uri,omitempty"`

	// Tool call / result
	Tool    string `json:"tool,omitempty"`
	CallID  string `json:"call_id,omitempty"`
	Args    string `json:"args,omitempty"`
	IsError bool   `json:"is_error,omitempty"`

	// Text segment, result payload or error message
	Message string `json:"message,omitempty"`
}

// Handler consumes events. It is called synchronously from the agent loop.
type Handler func(Event)

// Multi fans each event out to every non-nil handler in order.
func Multi(handlers ...Handler) Handler {
	return func(ev Event) {
		for _, h := range handlers {
			if h != nil {
				h(ev)
			}
		}
	}
}

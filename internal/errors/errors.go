// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure the agent can hit while answering a question maps to one Kind,
// which decides whether the failure is fed back to the model as data or aborts
// the current query.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// CatalogUnavailable indicates the metadata query itself failed.
	CatalogUnavailable Kind = "catalog_unavailable"
	// ResourceNotFound indicates an unrecognized or missing resource URI.
	ResourceNotFound Kind = "resource_not_found"
	// UnknownTool indicates a call to a tool that is not registered.
	UnknownTool Kind = "unknown_tool"
	// Rejected indicates a statement refused by the execution gate.
	Rejected Kind = "rejected"
	// Failed indicates a database fault while executing an accepted statement.
	Failed Kind = "failed"
	// ModelCallError indicates the language model API call failed.
	ModelCallError Kind = "model_call_error"
	// TooManyTurns indicates the tool-use loop hit its turn bound.
	TooManyTurns Kind = "too_many_turns"
	// MaxRetriesExceeded indicates a bounded retry ran out of attempts.
	MaxRetriesExceeded Kind = "max_retries_exceeded"
	// ProtocolError indicates a malformed exchange between model, agent and server.
	ProtocolError Kind = "protocol_error"
	// ConfigInvalid indicates unusable configuration.
	ConfigInvalid Kind = "config_invalid"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the Kind of the first *E in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Fatal reports whether an error of this kind aborts the current query
// instead of being relayed to the model.
func (k Kind) Fatal() bool {
	switch k {
	case CatalogUnavailable, ModelCallError, TooManyTurns, MaxRetriesExceeded, ProtocolError, ConfigInvalid:
		return true
	}
	return false
}

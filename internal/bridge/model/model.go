// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package model defines the transport-agnostic types exchanged between the
// agent and the resource/tool server.
package model

import "encoding/json"

// Resource is a URI-addressed, read-only piece of context.
type Resource struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
}

// ResourceContent is the text of a resource read. Meta carries server
// annotations such as tables omitted from a partial catalog.
type ResourceContent struct {
	URI      string
	MIMEType string
	Text     string
	Meta     map[string]any
}

// Tool is a named callable with a JSON schema for its arguments.
type Tool struct {
	Name        string
	Title       string
	Description string
	InputSchema json.RawMessage
}

// ToolResult is the outcome of a tool call. Failures are data: IsError is set
// and Text carries the error payload for the model to read.
type ToolResult struct {
	Text    string
	IsError bool
}

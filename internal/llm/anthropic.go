// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package llm adapts hosted language models to the agent's Model interface.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"querydesk/cli/internal/agent"
	"querydesk/cli/internal/config"
	qerrors "querydesk/cli/internal/errors"
)

// Options configures the Anthropic client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	// HTTPClient replaces the default transport; tests point it at httptest.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OptionsFromConfig maps model configuration onto client options.
func OptionsFromConfig(c config.ModelConfig) Options {
	return Options{
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Model:      c.Name,
		MaxRetries: c.MaxRetries,
	}
}

// Anthropic implements agent.Model on the Messages API.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
	logger *slog.Logger
}

var _ agent.Model = (*Anthropic)(nil)

// NewAnthropic creates a client. The API key is required.
func NewAnthropic(opts Options) (*Anthropic, error) {
	if opts.APIKey == "" {
		return nil, qerrors.New(qerrors.ConfigInvalid, "no model API key; set ANTHROPIC_API_KEY or run 'querydesk login'")
	}
	if opts.Model == "" {
		opts.Model = config.Default().Model.Name
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &Anthropic{
		client: anthropic.NewClient(reqOpts...),
		model:  anthropic.Model(opts.Model),
		logger: opts.Logger,
	}, nil
}

// Complete sends one Messages request.
func (a *Anthropic) Complete(ctx context.Context, req agent.Request) (*agent.Response, error) {
	msgs, err := toMessageParams(req.Messages)
	if err != nil {
		return nil, err
	}
	tools, err := toToolParams(req.Tools)
	if err != nil {
		return nil, err
	}
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: req.MaxTokens,
		Messages:  msgs,
		Tools:     tools,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("model call finished",
		slog.String("model", string(msg.Model)),
		slog.String("stop_reason", string(msg.StopReason)),
		slog.Int64("input_tokens", msg.Usage.InputTokens),
		slog.Int64("output_tokens", msg.Usage.OutputTokens))
	return fromMessage(msg), nil
}

func toMessageParams(msgs []agent.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for i, m := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Blocks))
		for _, b := range m.Blocks {
			switch b := b.(type) {
			case agent.TextBlock:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case agent.ToolUseBlock:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case agent.ToolResultBlock:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			default:
				return nil, qerrors.New(qerrors.ProtocolError, fmt.Sprintf("message %d: unsupported block %T", i, b))
			}
		}
		switch m.Role {
		case agent.RoleUser:
			out = append(out, anthropic.NewUserMessage(blocks...))
		case agent.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, qerrors.New(qerrors.ProtocolError, fmt.Sprintf("message %d: unknown role %q", i, m.Role))
		}
	}
	return out, nil
}

func toToolParams(tools []agent.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, qerrors.Wrap(qerrors.ProtocolError, "input schema of tool "+t.Name, err)
			}
		}
		tool := &anthropic.ToolParam{
			Name: t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: tool})
	}
	return out, nil
}

func fromMessage(msg *anthropic.Message) *agent.Response {
	resp := &agent.Response{StopReason: agent.StopReason(msg.StopReason)}
	for _, c := range msg.Content {
		switch c.Type {
		case "text":
			resp.Blocks = append(resp.Blocks, agent.TextBlock{Text: c.Text})
		case "tool_use":
			resp.Blocks = append(resp.Blocks, agent.ToolUseBlock{ID: c.ID, Name: c.Name, Input: c.Input})
		}
	}
	return resp
}

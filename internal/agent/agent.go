// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package agent drives a question through the resource/tool protocol and the
// language model until the model stops asking for tools.
//
// One Ask call walks the states
//
//	gathering_context -> awaiting_model -> (dispatching_tools -> awaiting_model)* -> done
//
// and owns its Conversation for that call only. Tool failures are relayed to
// the model as error results; model failures, protocol faults and the turn
// bound abort the query.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"querydesk/cli/internal/bridge"
	"querydesk/cli/internal/bridge/model"
	"querydesk/cli/internal/config"
	qerrors "querydesk/cli/internal/errors"
	"querydesk/cli/internal/events"
	"querydesk/cli/internal/format"
	"querydesk/cli/internal/mcpserver"
	"querydesk/cli/internal/observability"
	"querydesk/cli/internal/sqlexec"
)

// Options configures an Agent. Zero values fall back to the defaults of
// config.Default.
type Options struct {
	Strategy           string
	MaxTurns           int
	SelectionAttempts  int
	MaxTokens          int64
	SelectionMaxTokens int64
	ModelTimeout       time.Duration
	ToolTimeout        time.Duration
	Logger             *slog.Logger
	Events             events.Handler
}

// OptionsFromConfig maps configuration onto agent options.
func OptionsFromConfig(c config.Config) Options {
	return Options{
		Strategy:           c.Agent.Strategy,
		MaxTurns:           c.Agent.MaxTurns,
		SelectionAttempts:  c.Agent.SelectionAttempts,
		MaxTokens:          c.Model.MaxTokens,
		SelectionMaxTokens: c.Model.SelectionMaxTokens,
		ModelTimeout:       c.Model.Timeout.Duration,
		ToolTimeout:        c.Agent.ToolTimeout.Duration,
	}
}

// Agent answers questions. It is not safe for concurrent Ask calls; the chat
// surface runs one query at a time.
type Agent struct {
	model  Model
	bridge bridge.Bridge
	opts   Options
	logger *slog.Logger
}

// New creates an agent.
func New(m Model, b bridge.Bridge, opts Options) *Agent {
	def := config.Default()
	if opts.Strategy == "" {
		opts.Strategy = def.Agent.Strategy
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = def.Agent.MaxTurns
	}
	if opts.SelectionAttempts <= 0 {
		opts.SelectionAttempts = def.Agent.SelectionAttempts
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.Model.MaxTokens
	}
	if opts.SelectionMaxTokens <= 0 {
		opts.SelectionMaxTokens = def.Model.SelectionMaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{model: m, bridge: b, opts: opts, logger: logger}
}

// grounding is the context gathered before the model is asked to answer.
type grounding struct {
	uri   string
	title string
	text  string
}

// resourceError is a failed read or format of the chosen resource. Its text
// is returned to the user as the answer.
type resourceError struct {
	uri string
	err error
}

func (e *resourceError) Error() string {
	return fmt.Sprintf("Error fetching or formatting chosen resource '%s': %v", e.uri, e.err)
}

func (e *resourceError) Unwrap() error { return e.err }

// Ask answers question. A resource that cannot be read or formatted ends the
// query early with an explanation as the answer and no error.
func (a *Agent) Ask(ctx context.Context, question string) (string, error) {
	queryID := uuid.NewString()
	ctx = observability.ContextWithQueryID(ctx, queryID)
	log := observability.Logger(ctx, a.logger)
	q := &query{agent: a, id: queryID, log: log}

	answer, err := q.run(ctx, question)
	switch {
	case err == nil:
		observability.ObserveQuery("answered", q.turns)
		q.emit(events.Event{Type: events.StateChanged, State: events.StateDone, Turn: q.turns})
		q.emit(events.Event{Type: events.Done})
		return answer, nil
	case errors.As(err, new(*resourceError)):
		log.Warn("resource unavailable", slog.String("error", err.Error()))
		observability.ObserveQuery("resource_error", q.turns)
		q.emit(events.Event{Type: events.Done})
		return err.Error(), nil
	default:
		kind := qerrors.KindOf(err)
		if kind == "" {
			kind = "error"
		}
		log.Error("query failed", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		observability.ObserveQuery(string(kind), q.turns)
		q.emit(events.Event{Type: events.Failed, Message: err.Error()})
		return "", err
	}
}

// query is the state of one Ask call.
type query struct {
	agent *Agent
	id    string
	log   *slog.Logger
	conv  Conversation
	turns int
	// transcript collects model text and tool trace lines in order.
	transcript []string
}

func (q *query) emit(ev events.Event) {
	if q.agent.opts.Events == nil {
		return
	}
	ev.QueryID = q.id
	q.agent.opts.Events(ev)
}

func (q *query) run(ctx context.Context, question string) (string, error) {
	q.emit(events.Event{Type: events.StateChanged, State: events.StateGatheringContext})
	g, err := q.gather(ctx, question)
	if err != nil {
		return "", err
	}

	tools, err := q.agent.bridge.ListTools(ctx)
	if err != nil {
		return "", err
	}
	specs := toolSpecs(tools)

	if err := q.conv.Append(Message{Role: RoleUser, Blocks: []Block{
		TextBlock{Text: analystPrompt(g.title, g.uri, g.text, question)},
	}}); err != nil {
		return "", err
	}

	for {
		q.turns++
		q.emit(events.Event{Type: events.StateChanged, State: events.StateAwaitingModel, Turn: q.turns})

		resp, err := q.complete(ctx, "answer", Request{
			System:    analystSystemPrompt,
			Messages:  q.conv.Messages(),
			Tools:     specs,
			MaxTokens: q.agent.opts.MaxTokens,
		})
		if err != nil {
			return "", err
		}
		if err := q.conv.Append(Message{Role: RoleAssistant, Blocks: resp.Blocks}); err != nil {
			return "", err
		}

		uses := resp.ToolUses()
		if len(uses) == 0 {
			q.recordText(resp.Blocks)
			return strings.Join(q.transcript, "\n"), nil
		}
		// No turn remains to read results of these calls.
		if q.turns >= q.agent.opts.MaxTurns {
			return "", qerrors.New(qerrors.TooManyTurns,
				fmt.Sprintf("model still requested tools after %d turns", q.turns))
		}

		q.emit(events.Event{Type: events.StateChanged, State: events.StateDispatchingTools, Turn: q.turns})
		results, err := q.dispatch(ctx, resp.Blocks)
		if err != nil {
			return "", err
		}
		if err := q.conv.Append(Message{Role: RoleUser, Blocks: results}); err != nil {
			return "", err
		}
	}
}

// recordText adds the text blocks of a final turn to the transcript.
func (q *query) recordText(blocks []Block) {
	for _, b := range blocks {
		if t, ok := b.(TextBlock); ok {
			q.transcript = append(q.transcript, t.Text)
			q.emit(events.Event{Type: events.Text, Message: t.Text})
		}
	}
}

// dispatch runs every tool call of a turn sequentially, in emitted order, and
// returns one result block per call. Text blocks of the turn are recorded in
// the transcript at their position among the calls.
func (q *query) dispatch(ctx context.Context, blocks []Block) ([]Block, error) {
	var results []Block
	for _, b := range blocks {
		switch b := b.(type) {
		case TextBlock:
			q.transcript = append(q.transcript, b.Text)
			q.emit(events.Event{Type: events.Text, Message: b.Text})
		case ToolUseBlock:
			res, err := q.callTool(ctx, b)
			if err != nil {
				return nil, err
			}
			results = append(results, res)
		}
	}
	return results, nil
}

func (q *query) callTool(ctx context.Context, use ToolUseBlock) (ToolResultBlock, error) {
	input := use.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	q.transcript = append(q.transcript, fmt.Sprintf("\n[Calling tool `%s` with args: %s]", use.Name, input))
	q.emit(events.Event{Type: events.ToolCall, Tool: use.Name, CallID: use.ID, Args: string(input)})

	result := ToolResultBlock{ToolUseID: use.ID}
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		result.Content = failedJSON("invalid tool arguments: " + err.Error())
		result.IsError = true
		q.emitResult(use, result)
		return result, nil
	}

	tctx, cancel := q.withTimeout(ctx, q.agent.opts.ToolTimeout)
	defer cancel()
	start := time.Now()
	res, err := q.agent.bridge.CallTool(tctx, use.Name, args)
	switch {
	case err == nil:
		result.Content = res.Text
		result.IsError = res.IsError
	case ctx.Err() != nil:
		return result, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		q.log.Warn("tool call timed out",
			slog.String("tool", use.Name), slog.Duration("elapsed", time.Since(start)))
		result.Content = failedJSON(sqlexec.TimeoutError)
		result.IsError = true
	default:
		return result, err
	}
	q.log.Debug("tool call finished",
		slog.String("tool", use.Name), slog.Bool("is_error", result.IsError), slog.Duration("elapsed", time.Since(start)))
	q.emitResult(use, result)
	return result, nil
}

func (q *query) emitResult(use ToolUseBlock, r ToolResultBlock) {
	q.emit(events.Event{Type: events.ToolResult, Tool: use.Name, CallID: use.ID, Message: r.Content, IsError: r.IsError})
}

// gather produces the grounding context with the configured strategy.
func (q *query) gather(ctx context.Context, question string) (grounding, error) {
	uri := mcpserver.SchemasURI
	if q.agent.opts.Strategy != config.StrategyCatalog {
		var err error
		if uri, err = q.selectResource(ctx, question); err != nil {
			return grounding{}, err
		}
	}
	q.emit(events.Event{Type: events.ResourceChosen, URI: uri})

	content, err := q.agent.bridge.ReadResource(ctx, uri)
	if err != nil {
		return grounding{}, &resourceError{uri: uri, err: err}
	}
	if omitted, ok := content.Meta["omitted"]; ok {
		q.log.Warn("catalog is partial", slog.Any("omitted", omitted))
	}
	title, text, err := format.Resource(uri, content.Text)
	if err != nil {
		return grounding{}, &resourceError{uri: uri, err: err}
	}
	return grounding{uri: uri, title: title, text: text}, nil
}

// selectResource asks the model for the single best resource URI. Answers
// that are not a listed URI are retried up to SelectionAttempts times.
func (q *query) selectResource(ctx context.Context, question string) (string, error) {
	resources, err := q.agent.bridge.ListResources(ctx)
	if err != nil {
		return "", err
	}
	listing := format.ResourceList(resources)

	rejected := ""
	for attempt := 1; attempt <= q.agent.opts.SelectionAttempts; attempt++ {
		resp, err := q.complete(ctx, "select_resource", Request{
			Messages: []Message{{Role: RoleUser, Blocks: []Block{
				TextBlock{Text: selectionPrompt(listing, question, rejected)},
			}}},
			MaxTokens: q.agent.opts.SelectionMaxTokens,
		})
		if err != nil {
			return "", err
		}
		answer := strings.Trim(strings.TrimSpace(strings.Join(resp.Text(), "")), "`'\"")
		if listed(resources, answer) {
			return answer, nil
		}
		q.log.Debug("model chose an unlisted resource",
			slog.Int("attempt", attempt), slog.String("answer", answer))
		rejected = answer
	}
	return "", qerrors.New(qerrors.MaxRetriesExceeded,
		fmt.Sprintf("no listed resource chosen after %d attempts", q.agent.opts.SelectionAttempts))
}

func (q *query) complete(ctx context.Context, purpose string, req Request) (*Response, error) {
	mctx, cancel := q.withTimeout(ctx, q.agent.opts.ModelTimeout)
	defer cancel()
	start := time.Now()
	resp, err := q.agent.model.Complete(mctx, req)
	observability.ObserveModelCall(purpose, err, time.Since(start))
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ModelCallError, purpose, err)
	}
	if resp == nil {
		return nil, qerrors.New(qerrors.ProtocolError, purpose+": empty model response")
	}
	return resp, nil
}

func (q *query) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func listed(resources []model.Resource, uri string) bool {
	if uri == "" {
		return false
	}
	for _, r := range resources {
		if r.URI == uri {
			return true
		}
	}
	return false
}

func toolSpecs(tools []model.Tool) []ToolSpec {
	specs := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, ToolSpec{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return specs
}

func failedJSON(msg string) string {
	b, _ := json.Marshal(sqlexec.Failed{Error: msg})
	return string(b)
}

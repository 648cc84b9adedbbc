// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querydesk/cli/internal/bridge/model"
	"querydesk/cli/internal/config"
	qerrors "querydesk/cli/internal/errors"
	"querydesk/cli/internal/events"
	"querydesk/cli/internal/sqlexec"
)

const schemasJSON = `{"users":{"schema":[
	{"column_name":"id","data_type":"integer","constraint_type":"PRIMARY KEY","foreign_table":null,"foreign_column":null},
	{"column_name":"email","data_type":"text","constraint_type":null,"foreign_table":null,"foreign_column":null}
]}}`

// scriptedModel replays responses in order and records every request.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*Response
	err       error
	requests  []Request
}

func (m *scriptedModel) Complete(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &Response{StopReason: StopEndTurn, Blocks: []Block{TextBlock{Text: "out of script"}}}, nil
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r, nil
}

func text(s string) *Response {
	return &Response{StopReason: StopEndTurn, Blocks: []Block{TextBlock{Text: s}}}
}

func toolUse(id, sql string) ToolUseBlock {
	in, _ := json.Marshal(map[string]string{"sql": sql})
	return ToolUseBlock{ID: id, Name: "execute_sql", Input: in}
}

// fakeBridge serves fixed resources and gates SQL with the real classifier.
type fakeBridge struct {
	resources []model.Resource
	contents  map[string]string
	readErr   error
	calls     []string
	callTool  func(ctx context.Context, name string, args map[string]any) (model.ToolResult, error)
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		resources: []model.Resource{
			{URI: "postgresql://tables", Description: "List all tables across the database"},
			{URI: "postgresql://tables/schemas", Description: "Provides database table as key and its schema as the value of the key"},
			{URI: "postgresql://tables/users/schema"},
		},
		contents: map[string]string{
			"postgresql://tables":              `{"tables":["users"],"count":1}`,
			"postgresql://tables/schemas":      schemasJSON,
			"postgresql://tables/users/schema": `{"schema":[]}`,
		},
	}
}

func (b *fakeBridge) ListResources(context.Context) ([]model.Resource, error) {
	return b.resources, nil
}

func (b *fakeBridge) ReadResource(_ context.Context, uri string) (model.ResourceContent, error) {
	if b.readErr != nil {
		return model.ResourceContent{}, b.readErr
	}
	text, ok := b.contents[uri]
	if !ok {
		return model.ResourceContent{}, qerrors.New(qerrors.ResourceNotFound, uri)
	}
	return model.ResourceContent{URI: uri, MIMEType: "application/json", Text: text}, nil
}

func (b *fakeBridge) ListTools(context.Context) ([]model.Tool, error) {
	return []model.Tool{{
		Name:        "execute_sql",
		Description: "Tool for executing SQL queries at the database.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"sql":{"type":"string"}},"required":["sql"]}`),
	}}, nil
}

func (b *fakeBridge) CallTool(ctx context.Context, name string, args map[string]any) (model.ToolResult, error) {
	sql, _ := args["sql"].(string)
	b.calls = append(b.calls, sql)
	if b.callTool != nil {
		return b.callTool(ctx, name, args)
	}
	var out sqlexec.Outcome = sqlexec.Selected{Rows: []sqlexec.Row{sqlexec.NewRow([]string{"?column?"}, []any{1})}}
	if !sqlexec.Classify(sql) {
		out = sqlexec.Rejected{Reason: sqlexec.RejectReason}
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return model.ToolResult{}, err
	}
	return model.ToolResult{Text: string(payload), IsError: out.Kind() != ""}, nil
}

func (b *fakeBridge) Close() error { return nil }

func TestAskSelectStrategy(t *testing.T) {
	m := &scriptedModel{responses: []*Response{
		text("postgresql://tables/schemas"),
		{StopReason: StopToolUse, Blocks: []Block{
			TextBlock{Text: "Let me count the users."},
			toolUse("call_1", "SELECT count(*) FROM users"),
		}},
		text("There is 1 user."),
	}}
	b := newFakeBridge()
	var seen []events.Type
	a := New(m, b, Options{Events: func(ev events.Event) { seen = append(seen, ev.Type) }})

	answer, err := a.Ask(context.Background(), "How many users are there?")
	require.NoError(t, err)

	assert.Equal(t, strings.Join([]string{
		"Let me count the users.",
		"\n[Calling tool `execute_sql` with args: {\"sql\":\"SELECT count(*) FROM users\"}]",
		"There is 1 user.",
	}, "\n"), answer)
	assert.Equal(t, []string{"SELECT count(*) FROM users"}, b.calls)

	require.Len(t, m.requests, 3)
	sel := m.requests[0]
	assert.Empty(t, sel.Tools)
	assert.Equal(t, int64(200), sel.MaxTokens)
	assert.Contains(t, sel.Messages[0].Blocks[0].(TextBlock).Text, "- URI: postgresql://tables/schemas")

	first := m.requests[1]
	require.Len(t, first.Tools, 1)
	assert.Equal(t, analystSystemPrompt, first.System)
	prompt := first.Messages[0].Blocks[0].(TextBlock).Text
	assert.Contains(t, prompt, "### Database Schema:")
	assert.Contains(t, prompt, "(This data was retrieved from the resource 'postgresql://tables/schemas')")
	assert.Contains(t, prompt, "Table: users")
	assert.Contains(t, prompt, "How many users are there?")

	// The last call sees the question, the tool request and its result.
	last := m.requests[2]
	require.Len(t, last.Messages, 3)
	assert.Equal(t, RoleAssistant, last.Messages[1].Role)
	res := last.Messages[2].Blocks[0].(ToolResultBlock)
	assert.Equal(t, "call_1", res.ToolUseID)
	assert.False(t, res.IsError)

	assert.Contains(t, seen, events.ResourceChosen)
	assert.Contains(t, seen, events.ToolCall)
	assert.Equal(t, events.Done, seen[len(seen)-1])
}

func TestAskDispatchesEveryToolCallInOrder(t *testing.T) {
	m := &scriptedModel{responses: []*Response{
		{StopReason: StopToolUse, Blocks: []Block{
			toolUse("a", "SELECT 1"),
			toolUse("b", "DROP TABLE x"),
		}},
		text("done"),
	}}
	b := newFakeBridge()
	a := New(m, b, Options{Strategy: config.StrategyCatalog})

	_, err := a.Ask(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT 1", "DROP TABLE x"}, b.calls)

	require.Len(t, m.requests, 2)
	results := m.requests[1].Messages[2].Blocks
	require.Len(t, results, 2)
	first := results[0].(ToolResultBlock)
	second := results[1].(ToolResultBlock)
	assert.Equal(t, "a", first.ToolUseID)
	assert.False(t, first.IsError)
	assert.Contains(t, first.Content, `"type":"SELECT"`)
	assert.Equal(t, "b", second.ToolUseID)
	assert.True(t, second.IsError)
	assert.JSONEq(t, `{"type":"MODIFY","status":null,"message":"Only SELECT queries are supported"}`, second.Content)
}

func TestAskCatalogStrategySkipsSelection(t *testing.T) {
	m := &scriptedModel{responses: []*Response{text("no tools needed")}}
	a := New(m, newFakeBridge(), Options{Strategy: config.StrategyCatalog})

	answer, err := a.Ask(context.Background(), "describe users")
	require.NoError(t, err)
	assert.Equal(t, "no tools needed", answer)
	require.Len(t, m.requests, 1)
	assert.NotEmpty(t, m.requests[0].Tools)
}

func TestAskSelectionRetryRecovers(t *testing.T) {
	m := &scriptedModel{responses: []*Response{
		text("I would pick the schemas resource"),
		text("`postgresql://tables`"),
		text("There is one table."),
	}}
	a := New(m, newFakeBridge(), Options{})

	answer, err := a.Ask(context.Background(), "what tables exist?")
	require.NoError(t, err)
	assert.Equal(t, "There is one table.", answer)
	require.Len(t, m.requests, 3)
	assert.Contains(t, m.requests[1].Messages[0].Blocks[0].(TextBlock).Text, "is not one of the listed URIs")
	assert.Contains(t, m.requests[2].Messages[0].Blocks[0].(TextBlock).Text, "### Available Tables:")
}

func TestAskSelectionRetryIsBounded(t *testing.T) {
	m := &scriptedModel{responses: []*Response{
		text("nope"), text("still no"), text("never"), text("unreachable"),
	}}
	a := New(m, newFakeBridge(), Options{SelectionAttempts: 3})

	_, err := a.Ask(context.Background(), "q")
	assert.True(t, qerrors.Is(err, qerrors.MaxRetriesExceeded), "got %v", err)
	assert.Len(t, m.requests, 3)
}

func TestAskResourceFailureShortCircuits(t *testing.T) {
	m := &scriptedModel{responses: []*Response{text("postgresql://tables/schemas")}}
	b := newFakeBridge()
	b.readErr = errors.New("connection refused")
	a := New(m, b, Options{})

	answer, err := a.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Error fetching or formatting chosen resource 'postgresql://tables/schemas': connection refused", answer)
	assert.Len(t, m.requests, 1)
}

func TestAskFormatFailureShortCircuits(t *testing.T) {
	m := &scriptedModel{}
	b := newFakeBridge()
	b.contents["postgresql://tables/schemas"] = `{"error":"Table not found"}`
	a := New(m, b, Options{Strategy: config.StrategyCatalog})

	answer, err := a.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(answer, "Error fetching or formatting chosen resource 'postgresql://tables/schemas': "), answer)
	assert.Empty(t, m.requests)
}

func TestAskModelErrorIsFatal(t *testing.T) {
	m := &scriptedModel{err: errors.New("503 overloaded")}
	a := New(m, newFakeBridge(), Options{Strategy: config.StrategyCatalog})

	_, err := a.Ask(context.Background(), "q")
	assert.True(t, qerrors.Is(err, qerrors.ModelCallError), "got %v", err)
}

func TestAskTooManyTurns(t *testing.T) {
	var script []*Response
	for i := 0; i < 5; i++ {
		script = append(script, &Response{StopReason: StopToolUse, Blocks: []Block{toolUse("id"+string(rune('a'+i)), "SELECT 1")}})
	}
	m := &scriptedModel{responses: script}
	b := newFakeBridge()
	a := New(m, b, Options{Strategy: config.StrategyCatalog, MaxTurns: 3})

	_, err := a.Ask(context.Background(), "q")
	assert.True(t, qerrors.Is(err, qerrors.TooManyTurns), "got %v", err)
	assert.Len(t, m.requests, 3)
	// The third turn's calls are never dispatched.
	assert.Len(t, b.calls, 2)
}

func TestAskSingleTurnAnswersWithoutTools(t *testing.T) {
	m := &scriptedModel{responses: []*Response{text("There are 3 users.")}}
	b := newFakeBridge()
	a := New(m, b, Options{Strategy: config.StrategyCatalog, MaxTurns: 1})

	answer, err := a.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "There are 3 users.", answer)
	assert.Empty(t, b.calls)
}

func TestAskDuplicateToolIDsIsProtocolError(t *testing.T) {
	m := &scriptedModel{responses: []*Response{
		{StopReason: StopToolUse, Blocks: []Block{toolUse("same", "SELECT 1"), toolUse("same", "SELECT 2")}},
	}}
	b := newFakeBridge()
	a := New(m, b, Options{Strategy: config.StrategyCatalog})

	_, err := a.Ask(context.Background(), "q")
	assert.True(t, qerrors.Is(err, qerrors.ProtocolError), "got %v", err)
	assert.Empty(t, b.calls)
}

func TestAskToolTimeoutBecomesFailedResult(t *testing.T) {
	m := &scriptedModel{responses: []*Response{
		{StopReason: StopToolUse, Blocks: []Block{toolUse("slow", "SELECT pg_sleep(10)")}},
		text("The query timed out."),
	}}
	b := newFakeBridge()
	b.callTool = func(ctx context.Context, _ string, _ map[string]any) (model.ToolResult, error) {
		<-ctx.Done()
		return model.ToolResult{}, ctx.Err()
	}
	a := New(m, b, Options{Strategy: config.StrategyCatalog, ToolTimeout: 20 * time.Millisecond})

	answer, err := a.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, answer, "The query timed out.")
	res := m.requests[1].Messages[2].Blocks[0].(ToolResultBlock)
	assert.True(t, res.IsError)
	assert.JSONEq(t, `{"type":"error","error":"timeout","message":"Query failed: timeout"}`, res.Content)
}

func TestAskInvalidToolInputIsRelayed(t *testing.T) {
	m := &scriptedModel{responses: []*Response{
		{StopReason: StopToolUse, Blocks: []Block{ToolUseBlock{ID: "x", Name: "execute_sql", Input: json.RawMessage(`"SELECT 1"`)}}},
		text("sorry"),
	}}
	b := newFakeBridge()
	a := New(m, b, Options{Strategy: config.StrategyCatalog})

	_, err := a.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, b.calls)
	res := m.requests[1].Messages[2].Blocks[0].(ToolResultBlock)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "invalid tool arguments")
}

func TestAskTransportFaultAbortsQuery(t *testing.T) {
	m := &scriptedModel{responses: []*Response{
		{StopReason: StopToolUse, Blocks: []Block{toolUse("a", "SELECT 1")}},
	}}
	b := newFakeBridge()
	b.callTool = func(context.Context, string, map[string]any) (model.ToolResult, error) {
		return model.ToolResult{}, qerrors.New(qerrors.ProtocolError, "session closed")
	}
	a := New(m, b, Options{Strategy: config.StrategyCatalog})

	_, err := a.Ask(context.Background(), "q")
	assert.True(t, qerrors.Is(err, qerrors.ProtocolError), "got %v", err)
}

func TestOptionsFromConfig(t *testing.T) {
	c := config.Default()
	c.Agent.Strategy = config.StrategyCatalog
	o := OptionsFromConfig(c)
	assert.Equal(t, config.StrategyCatalog, o.Strategy)
	assert.Equal(t, 10, o.MaxTurns)
	assert.Equal(t, int64(200), o.SelectionMaxTokens)
	assert.Equal(t, 45*time.Second, o.ToolTimeout)
}

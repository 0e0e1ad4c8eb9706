package mcphost

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hession/rollmate/internal/dice"
	"github.com/hession/rollmate/internal/dicetool"
	"github.com/hession/rollmate/internal/tools"
)

func newDiceHost(t *testing.T) *Host {
	t.Helper()
	h := New("test", nil)
	adapter := dicetool.New(dice.NewEngine(rand.New(rand.NewSource(1))))
	if !adapter.Register(h) {
		t.Fatal("dice tool should register on the MCP host")
	}
	return h
}

// connect serves h over in-memory transports and returns a client session.
func connect(t *testing.T, h *Host) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- h.Serve(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer connectCancel()
	session, err := client.Connect(connectCtx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-serveErr:
			if err != nil {
				t.Errorf("Serve returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not stop after cancel")
		}
		session.Close()
	})
	return session
}

func callText(t *testing.T, session *mcp.ClientSession, args map[string]any) (string, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      dicetool.ToolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call %s: %v", dicetool.ToolName, err)
	}
	if len(result.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text, result.IsError
}

func TestHostListsDiceTool(t *testing.T) {
	session := connect(t, newDiceHost(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	list, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(list.Tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(list.Tools))
	}
	tool := list.Tools[0]
	if tool.Name != dicetool.ToolName {
		t.Errorf("tool name = %q", tool.Name)
	}
	if tool.Title != dicetool.DisplayName {
		t.Errorf("tool title = %q", tool.Title)
	}
	if !strings.Contains(tool.Description, "2d20") {
		t.Error("description should carry the advantage guidance")
	}
}

func TestHostCallRollsDice(t *testing.T) {
	session := connect(t, newDiceHost(t))

	text, isErr := callText(t, session, map[string]any{dicetool.ParamFormula: "2d6+5"})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	var out dice.Outcome
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode outcome %q: %v", text, err)
	}
	if len(out.Rolls) != 2 || out.Total != out.Rolls[0]+out.Rolls[1]+5 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestHostCallInvalidFormulaIsNormalResult(t *testing.T) {
	session := connect(t, newDiceHost(t))

	text, isErr := callText(t, session, map[string]any{dicetool.ParamFormula: "invalid"})
	if isErr {
		t.Fatal("a malformed formula is answered through the normal result channel")
	}
	if text != dicetool.ErrorMessage("invalid") {
		t.Fatalf("text = %q", text)
	}
}

func TestHostCallMissingArgument(t *testing.T) {
	session := connect(t, newDiceHost(t))

	text, isErr := callText(t, session, map[string]any{})
	if !isErr {
		t.Fatal("missing required argument should be a host-level error")
	}
	if !strings.Contains(text, "missing required parameter: formula") {
		t.Fatalf("text = %q", text)
	}
}

func TestHostRejectsDuplicateTool(t *testing.T) {
	h := newDiceHost(t)
	adapter := dicetool.New(dice.NewEngine(rand.New(rand.NewSource(2))))

	if adapter.Register(h) {
		t.Fatal("second registration under the same name should fail")
	}
	err := h.RegisterFunctionTool(adapter.Descriptor())
	if !errors.Is(err, tools.ErrToolExists) {
		t.Fatalf("RegisterFunctionTool error = %v, want %v", err, tools.ErrToolExists)
	}
}

func TestHostRejectsInvalidDescriptor(t *testing.T) {
	h := New("test", nil)
	desc := tools.Descriptor{
		Name:       "broken",
		Parameters: []tools.ParameterDef{{Name: "x", Type: "string"}},
	}

	err := h.RegisterFunctionTool(desc)
	if !errors.Is(err, tools.ErrInvalidDescriptor) {
		t.Fatalf("RegisterFunctionTool error = %v, want %v", err, tools.ErrInvalidDescriptor)
	}
	if _, ok := h.Registry().Get("broken"); ok {
		t.Fatal("rejected tool must not stay in the backing registry")
	}
}

func TestHTTPHandlerHealthz(t *testing.T) {
	srv := httptest.NewServer(newDiceHost(t).HTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
		Tools  int    `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Tools != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestHostToolCallingDisabled(t *testing.T) {
	h := New("test", nil)
	if !h.ToolCallingEnabled() {
		t.Fatal("tool calling should be enabled by default")
	}

	h.SetToolCallingEnabled(false)
	if h.ToolCallingEnabled() {
		t.Fatal("ToolCallingEnabled should follow SetToolCallingEnabled")
	}

	adapter := dicetool.New(dice.NewEngine(rand.New(rand.NewSource(1))))
	if adapter.Register(h) {
		t.Fatal("dice tool must not register when tool calling is disabled")
	}
	if n := len(h.Registry().List()); n != 0 {
		t.Fatalf("expected no tools, got %d", n)
	}

	srv := httptest.NewServer(h.HTTPHandler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Tools int `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Tools != 0 {
		t.Errorf("healthz tools = %d, want 0", body.Tools)
	}
}

func TestHTTPHandlerServesMCP(t *testing.T) {
	srv := httptest.NewServer(newDiceHost(t).HTTPHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: srv.URL + MCPPath}, nil)
	if err != nil {
		t.Fatalf("connect over http: %v", err)
	}
	defer session.Close()

	text, isErr := callText(t, session, map[string]any{dicetool.ParamFormula: "1d20"})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	var out dice.Outcome
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode outcome %q: %v", text, err)
	}
	if len(out.Rolls) != 1 || out.Total != out.Rolls[0] {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

// Package mcphost publishes function tools over the Model Context Protocol.
//
// A Host is a dicetool.HostContext: descriptors registered on it are kept in
// an in-process tools.Registry for name uniqueness and argument checks, and
// mirrored onto an mcp.Server whose handlers dispatch through that registry.
package mcphost

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hession/rollmate/internal/logger"
	"github.com/hession/rollmate/internal/tools"
)

const (
	// ServerName identifies this MCP server to clients.
	ServerName = "rollmate"
	// MCPPath is where the streamable HTTP transport is mounted.
	MCPPath = "/mcp"

	shutdownTimeout = 5 * time.Second
)

// Host is an MCP server that accepts function-tool descriptors.
type Host struct {
	server   *mcp.Server
	registry *tools.Registry
	log      *logger.Logger
}

// New creates a host. version is reported in the MCP handshake.
func New(version string, lg *logger.Logger) *Host {
	if lg == nil {
		lg = logger.Nop()
	}
	return &Host{
		server:   mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil),
		registry: tools.NewRegistry(),
		log:      lg,
	}
}

// SetToolCallingEnabled toggles whether adapters may register tools. A host
// with tool calling disabled still serves, with an empty tool list.
func (h *Host) SetToolCallingEnabled(enabled bool) {
	h.registry.SetToolCallingEnabled(enabled)
}

// ToolCallingEnabled reports whether this host accepts function tools.
func (h *Host) ToolCallingEnabled() bool {
	return h.registry.ToolCallingEnabled()
}

// RegisterFunctionTool installs desc on the MCP server.
func (h *Host) RegisterFunctionTool(desc tools.Descriptor) error {
	if err := h.registry.RegisterFunctionTool(desc); err != nil {
		return err
	}
	if err := h.addMCPTool(desc); err != nil {
		h.registry.Unregister(desc.Name)
		return err
	}
	return nil
}

// addMCPTool mirrors desc onto the server. The SDK panics on schemas it
// cannot accept.
func (h *Host) addMCPTool(desc tools.Descriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mcp rejected tool %s: %v", desc.Name, r)
		}
	}()

	no := false
	h.server.AddTool(&mcp.Tool{
		Name:        desc.Name,
		Title:       desc.DisplayName,
		Description: desc.Description,
		InputSchema: desc.ParameterSchema(),
		Annotations: &mcp.ToolAnnotations{
			Title:           desc.DisplayName,
			ReadOnlyHint:    true,
			DestructiveHint: &no,
			OpenWorldHint:   &no,
		},
	}, h.handler(desc.Name))
	return nil
}

// Registry exposes the backing registry.
func (h *Host) Registry() *tools.Registry {
	return h.registry
}

func (h *Host) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if req != nil && req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(fmt.Sprintf("Error: invalid arguments: %v", err)), nil
			}
		}

		desc, _ := h.registry.Get(name)
		if notice := desc.Notice(args); notice != "" {
			h.log.Info("%s", notice)
		}

		result, err := h.registry.Execute(ctx, name, args)
		if err != nil {
			h.log.Warn("tool %s failed: %v", name, err)
			return errorResult(fmt.Sprintf("Error: %v", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result}},
		}, nil
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

// Serve runs the MCP server on transport until ctx is done or the client
// disconnects.
func (h *Host) Serve(ctx context.Context, transport mcp.Transport) error {
	h.log.Info("mcp server starting with %d tool(s)", len(h.registry.List()))
	if err := h.server.Run(ctx, transport); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// ServeStdio serves over stdin/stdout.
func (h *Host) ServeStdio(ctx context.Context) error {
	return h.Serve(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns a router serving the streamable MCP transport at
// MCPPath and a liveness probe at /healthz.
func (h *Host) HTTPHandler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  log.New(h.log.GetWriter(logger.INFO), "", 0),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"tools":  len(h.registry.List()),
		})
	})

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return h.server
	}, nil)
	r.Handle(MCPPath, streamable)

	return r
}

// ListenAndServe serves HTTPHandler on addr until ctx is done.
func (h *Host) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: h.HTTPHandler(),
	}

	errCh := make(chan error, 1)
	go func() {
		h.log.Info("mcp http server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

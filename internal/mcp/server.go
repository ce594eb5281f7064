// Package mcp exposes the evaluator and the store as tools over the Model
// Context Protocol stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lumahq/luma/internal/lua"
	"github.com/lumahq/luma/internal/store"
	"github.com/lumahq/luma/internal/value"
)

// Server wires the script engine and the store into MCP tools.
type Server struct {
	store  *store.Store
	logger *slog.Logger
	mcp    *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the tool-call logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds the MCP server and registers the tools.
func New(st *store.Store, opts ...Option) *Server {
	s := &Server{store: st, logger: nopLogger}
	for _, opt := range opts {
		opt(s)
	}

	m := server.NewMCPServer("luma", lua.Version, server.WithToolCapabilities(false))

	m.AddTool(mcp.NewTool("eval_script",
		mcp.WithDescription("Evaluate a Lua script in the sandboxed runtime and return its result."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Lua source code")),
		mcp.WithString("input", mcp.Description("Bytes exposed to the script through io.read")),
		mcp.WithNumber("timeout", mcp.Description("Evaluation limit in seconds (default 30)")),
	), s.handleEvalScript)

	m.AddTool(mcp.NewTool("store_get",
		mcp.WithDescription("Read a store value as JSON. Absent entries read as null."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Entry name")),
	), s.handleStoreGet)

	m.AddTool(mcp.NewTool("store_put",
		mcp.WithDescription("Write a JSON value to the store."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Entry name")),
		mcp.WithString("value", mcp.Required(), mcp.Description("JSON-encoded value")),
	), s.handleStorePut)

	m.AddTool(mcp.NewTool("store_list",
		mcp.WithDescription("List store entries with their metadata."),
	), s.handleStoreList)

	s.mcp = m
	return s
}

// ServeStdio serves MCP requests on stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleEvalScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := request.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := []lua.Option{
		lua.WithName("(mcp)"),
		lua.WithInput(strings.NewReader(request.GetString("input", ""))),
		lua.WithStore(s.store),
		lua.WithLogger(s.logger),
	}
	if timeout := request.GetFloat("timeout", 0); timeout > 0 {
		opts = append(opts, lua.WithTimeout(time.Duration(timeout*float64(time.Second))))
	}

	eval, err := lua.NewEvaluation(source, opts...)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outcome, err := eval.Evaluate(ctx)
	if err != nil {
		s.logger.Warn("script failed", "kind", lua.ErrorKind(err), "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(value.Display(outcome.Value)), nil
}

func (s *Server) handleStoreGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no store configured"), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.store.Get(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	encoded, err := value.EncodeJSON(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

func (s *Server) handleStorePut(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no store configured"), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := value.DecodeJSON([]byte(raw))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid value: %v", err)), nil
	}
	if _, err := s.store.Put(ctx, name, v); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	encoded, err := value.EncodeJSON(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

func (s *Server) handleStoreList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no store configured"), nil
	}
	entries, err := s.store.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list := make([]any, 0, len(entries))
	for _, m := range entries {
		list = append(list, map[string]any{
			"name":       m.Name,
			"type":       m.Type,
			"size":       float64(m.Size),
			"created_at": m.CreatedAt.UTC().Format(time.RFC3339),
			"updated_at": m.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	encoded, err := value.EncodeJSON(list)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

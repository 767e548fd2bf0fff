// Package mcpserver exposes a ripple Engine as MCP tools so an agent can
// look up symbols, plan a change, generate its patches and apply them.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/ripple"
)

// Version is reported in the MCP implementation block.
const Version = "0.1.0"

// Server wires the engine's operations to MCP tools. Manifests produced
// by generate_patches are kept in memory so apply_manifest can refer to
// them by id.
type Server struct {
	engine *ripple.Engine
	logger *slog.Logger
	mcp    *mcp.Server

	mu        sync.Mutex
	manifests map[string]*ripple.Manifest
}

// New registers the tools against engine.
func New(engine *ripple.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    engine,
		logger:    logger,
		manifests: make(map[string]*ripple.Manifest),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "ripple",
		Version: Version,
	}, &mcp.ServerOptions{})
	s.registerTools()
	return s
}

// MCP returns the underlying server, for callers that pick their own
// transport.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Run serves over t until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	s.logger.Info("mcp server starting", "tools", len(toolNames))
	return s.mcp.Run(ctx, t)
}

func (s *Server) remember(m *ripple.Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[m.ID] = m
}

func (s *Server) manifest(id string) (*ripple.Manifest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.manifests[id]
	return m, ok
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// errorResult reports a failed call with the engine's stable error code so
// the agent can branch on it.
func errorResult(err error) *mcp.CallToolResult {
	body, _ := json.Marshal(map[string]string{
		"error": err.Error(),
		"code":  ripple.ErrorCode(err),
	})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}
}

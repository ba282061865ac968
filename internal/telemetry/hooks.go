// Package telemetry logs MCP server lifecycle events.
package telemetry

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// BuildHooks returns mcp-go server hooks that log sessions, tool discovery,
// tool outcomes and protocol errors to logger.
func BuildHooks(logger zerolog.Logger) *server.Hooks {
	hooks := &server.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		logger.Info().Str("session_id", session.SessionID()).Msg("session registered")
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		logger.Info().Str("session_id", session.SessionID()).Msg("session unregistered")
	})

	hooks.AddAfterListTools(func(ctx context.Context, id any, req *mcp.ListToolsRequest, res *mcp.ListToolsResult) {
		logger.Info().Int("tools", len(res.Tools)).Msg("list_tools served")
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		logToolResult(logger, req, res)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		logger.Error().Str("method", string(method)).Err(err).Msg("request error")
	})

	return hooks
}

// logToolResult logs tool-level failures at warn with their first text
// block, which carries the error code.
func logToolResult(logger zerolog.Logger, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
	if res == nil || !res.IsError {
		logger.Info().Str("tool", req.Params.Name).Msg("tool call served")
		return
	}
	evt := logger.Warn().Str("tool", req.Params.Name)
	if len(res.Content) > 0 {
		if tc, ok := res.Content[0].(mcp.TextContent); ok {
			evt = evt.Str("result", tc.Text)
		}
	}
	evt.Msg("tool call returned error")
}

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		out = append(out, m)
	}
	return out
}

func TestBuildHooks_ToolCalls(t *testing.T) {
	var buf bytes.Buffer
	hooks := BuildHooks(zerolog.New(&buf))
	require.Len(t, hooks.OnAfterCallTool, 1)

	req := &mcp.CallToolRequest{}
	req.Params.Name = "get_top_variances"
	hooks.OnAfterCallTool[0](context.Background(), 1, req, mcp.NewToolResultText("ok"))
	hooks.OnAfterCallTool[0](context.Background(), 2, req, mcp.NewToolResultError("INVALID_WORKSPACE: workspace not found"))

	got := lines(t, &buf)
	require.Len(t, got, 2)
	require.Equal(t, "info", got[0]["level"])
	require.Equal(t, "get_top_variances", got[0]["tool"])
	require.Equal(t, "warn", got[1]["level"])
	require.Equal(t, "INVALID_WORKSPACE: workspace not found", got[1]["result"])
}

func TestBuildHooks_ListToolsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	hooks := BuildHooks(zerolog.New(&buf))

	res := &mcp.ListToolsResult{Tools: []mcp.Tool{{Name: "load_report"}, {Name: "close_workspace"}}}
	hooks.OnAfterListTools[0](context.Background(), 1, &mcp.ListToolsRequest{}, res)
	hooks.OnError[0](context.Background(), 2, mcp.MethodToolsCall, nil, errors.New("boom"))

	got := lines(t, &buf)
	require.Len(t, got, 2)
	require.Equal(t, float64(2), got[0]["tools"])
	require.Equal(t, "error", got[1]["level"])
	require.Equal(t, "boom", got[1]["error"])
	require.Equal(t, string(mcp.MethodToolsCall), got[1]["method"])
}

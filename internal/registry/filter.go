package registry

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolFilter hides operator-disabled tools from discovery.
type ToolFilter struct {
	disabled map[string]struct{}
}

// NewToolFilter builds a filter from tool names, case-insensitively.
func NewToolFilter(disabled []string) *ToolFilter {
	f := &ToolFilter{disabled: make(map[string]struct{}, len(disabled))}
	for _, name := range disabled {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			f.disabled[name] = struct{}{}
		}
	}
	return f
}

// Enabled reports whether the named tool is exposed.
func (f *ToolFilter) Enabled(name string) bool {
	_, off := f.disabled[strings.ToLower(name)]
	return !off
}

// FilterTools implements server tool filtering semantics.
func (f *ToolFilter) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	if len(f.disabled) == 0 {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if f.Enabled(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

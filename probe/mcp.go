package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the imgprobe tools on an MCP server. Tool calls
// are untrusted input and go through ProbeGuarded.
func (p *Prober) RegisterMCP(srv *mcp.Server) {
	p.registerDetectTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (p *Prober) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "imgprobe_detect",
		Description: "Open a page, wait until the image of the selected element (img src or CSS background-image) has loaded, and return the outcome.",
		InputSchema: inputSchema(map[string]any{
			"url":      map[string]any{"type": "string", "description": "Page URL (http or https)"},
			"selector": map[string]any{"type": "string", "description": "CSS selector of the element"},
			"filter":   map[string]any{"type": "string", "description": "Regexp the image URL must match"},
			"timeout":  map[string]any{"type": "string", "description": "Go duration, e.g. 10s"},
		}, []string{"url", "selector"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r detectRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		t, err := r.target(p.cfg.Detect.Timeout, "mcp")
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}

		o, err := p.ProbeGuarded(ctx, t)
		if errors.Is(err, ErrRejected) {
			return toolError(err), nil
		}
		if err != nil {
			p.logger.Warn("probe: mcp emit failed", "target", t.ID, "error", err)
		}

		data, err := json.Marshal(o)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

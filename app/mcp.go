package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the quizd tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSolveTool(srv)
	s.registerStatusTool(srv)
	s.registerLogsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func textResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		var res mcp.CallToolResult
		res.SetError(fmt.Errorf("marshal: %w", err))
		return &res, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func errorResult(err error) (*mcp.CallToolResult, error) {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res, nil
}

// --- solve ---

type solveReq struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

func (s *Service) registerSolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "quiz_solve",
		Description: "Start solving a quiz chain at the given URL. Returns a task ID; progress is observable via quiz_status and quiz_logs.",
		InputSchema: inputSchema(map[string]any{
			"email":  map[string]any{"type": "string", "description": "Student email"},
			"secret": map[string]any{"type": "string", "description": "Student secret"},
			"url":    map[string]any{"type": "string", "description": "First question URL"},
		}, []string{"email", "secret", "url"}),
	}

	srv.AddTool(tool, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r solveReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return errorResult(fmt.Errorf("invalid arguments: %w", err))
		}
		if err := s.Authorize(r.Email, r.Secret); err != nil {
			return errorResult(err)
		}
		if r.URL == "" {
			return errorResult(fmt.Errorf("url is required"))
		}
		taskID := s.Solve(r.URL)
		return textResult(map[string]string{"status": "accepted", "task_id": taskID})
	})
}

// --- status ---

type statusReq struct {
	TaskID string `json:"task_id"`
}

func (s *Service) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "quiz_status",
		Description: "Report the state of one solve task, or of all retained tasks when task_id is omitted.",
		InputSchema: inputSchema(map[string]any{
			"task_id": map[string]any{"type": "string", "description": "Task ID from quiz_solve"},
		}, nil),
	}

	srv.AddTool(tool, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r statusReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return errorResult(fmt.Errorf("invalid arguments: %w", err))
			}
		}
		if r.TaskID != "" {
			task, ok := s.Task(r.TaskID)
			if !ok {
				return errorResult(fmt.Errorf("unknown task %s", r.TaskID))
			}
			return textResult(task)
		}
		return textResult(s.TaskSnapshot())
	})
}

// --- logs ---

type logsReq struct {
	Limit int `json:"limit"`
}

func (s *Service) registerLogsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "quiz_logs",
		Description: "Return recent solver progress messages, oldest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum entries to return (0 = all retained)"},
		}, nil),
	}

	srv.AddTool(tool, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r logsReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return errorResult(fmt.Errorf("invalid arguments: %w", err))
			}
		}
		return textResult(s.Logs(r.Limit))
	})
}

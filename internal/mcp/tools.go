package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cathouse/taskmanager/internal/command"
	"github.com/cathouse/taskmanager/internal/model"
	"github.com/cathouse/taskmanager/internal/validation"
)

const toolPrefix = "taskmanager_"

// registerTools adds one tool per registered action.
func (s *MCPServer) registerTools(srv *server.MCPServer) {
	for _, a := range s.router.Registry().Actions() {
		srv.AddTool(toolFor(a), s.actionHandler(a.Name))
	}
}

// toolName maps an action name such as "create-task" to "taskmanager_create_task".
func toolName(action string) string {
	return toolPrefix + strings.ReplaceAll(action, "-", "_")
}

func toolFor(a command.Action) mcp.Tool {
	desc := a.Description
	if desc == "" {
		desc = "Run the " + a.Name + " action."
	}
	return mcp.NewTool(toolName(a.Name),
		mcp.WithDescription(desc),
		mcp.WithToolAnnotation(annotation(a.ReadOnly)),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Identifier of the user the action runs on behalf of"),
		),
		mcp.WithObject("payload",
			mcp.Description("Action-specific arguments, e.g. {\"task_id\": \"...\"}"),
		),
	)
}

// actionHandler returns the tool handler that routes a call to action.
func (s *MCPServer) actionHandler(action string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := requireString(request, "user_id")
		if err != nil {
			return toolError("%v", err)
		}

		out := s.router.ExecuteRequest(ctx, s.serviceKey, model.CommandRequest{
			Action:  action,
			UserID:  userID,
			Payload: getObjectArg(request, "payload"),
		})
		return s.result(action, out)
	}
}

// result converts a router outcome into a tool result. Every failure is
// reported as a tool-level error so the client can self-correct.
func (s *MCPServer) result(action string, out command.Outcome) (*mcp.CallToolResult, error) {
	switch {
	case out.Response != nil && out.Response.Success:
		return successJSON(out.Response.Data)
	case out.Response != nil:
		msg := "command failed"
		if out.Response.Error != nil {
			msg = *out.Response.Error
		}
		return toolError("%s failed: %s", action, msg)
	case out.Errors != nil:
		return toolError("Invalid request: %s", validation.Summary(out.Errors))
	default:
		s.logger.Debug("mcp tool rejected", "action", action, "status", out.Status, "detail", out.Detail)
		return toolError("%s (status %d)", out.Detail, out.Status)
	}
}

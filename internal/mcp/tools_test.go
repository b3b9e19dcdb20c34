package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cathouse/taskmanager/internal/action"
	"github.com/cathouse/taskmanager/internal/command"
	"github.com/cathouse/taskmanager/internal/service"
	"github.com/cathouse/taskmanager/internal/store"
)

func newTestServer(t *testing.T, secret func(*service.KeyService) string) *MCPServer {
	t.Helper()
	st, err := store.NewMemoryStore()
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	keys := service.NewKeyService(st, logger, 0, nil)
	router := command.NewRouter(keys, action.NewRegistry(time.Now), st, logger)
	return NewMCPServer(router, secret(keys), "test", logger)
}

func issuedSecret(t *testing.T) func(*service.KeyService) string {
	return func(keys *service.KeyService) string {
		issued, err := keys.Issue(context.Background(), "mcp-client", "dev")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		return issued.ServiceKey
	}
}

func callTool(t *testing.T, s *MCPServer, action string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Name = toolName(action)
	req.Params.Arguments = args
	res, err := s.actionHandler(action)(context.Background(), req)
	if err != nil {
		t.Fatalf("tool %s returned protocol error: %v", action, err)
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", res.Content[0])
	}
	return text.Text
}

func TestToolName(t *testing.T) {
	if got := toolName("create-task"); got != "taskmanager_create_task" {
		t.Errorf("toolName = %q", got)
	}
}

func TestToolForSchema(t *testing.T) {
	tool := toolFor(command.Action{Name: "get-stats", Description: "stats", ReadOnly: true})
	if tool.Name != "taskmanager_get_stats" {
		t.Errorf("Name = %q", tool.Name)
	}
	if _, ok := tool.InputSchema.Properties["payload"]; !ok {
		t.Error("schema missing payload property")
	}
	found := false
	for _, r := range tool.InputSchema.Required {
		if r == "user_id" {
			found = true
		}
	}
	if !found {
		t.Errorf("user_id not required: %v", tool.InputSchema.Required)
	}
	if tool.Annotations.ReadOnlyHint == nil || !*tool.Annotations.ReadOnlyHint {
		t.Error("read-only action should carry ReadOnlyHint=true")
	}
}

func TestToolCreateAndGetTask(t *testing.T) {
	s := newTestServer(t, issuedSecret(t))

	res := callTool(t, s, action.CreateTask, map[string]interface{}{
		"user_id": "agent-user",
		"payload": map[string]interface{}{"title": "Draft summary"},
	})
	if res.IsError {
		t.Fatalf("create failed: %s", resultText(t, res))
	}
	var task map[string]interface{}
	if err := json.Unmarshal([]byte(resultText(t, res)), &task); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	id, _ := task["id"].(string)
	if id == "" || task["title"] != "Draft summary" {
		t.Fatalf("unexpected task %v", task)
	}

	res = callTool(t, s, action.GetTask, map[string]interface{}{
		"user_id": "agent-user",
		"payload": map[string]interface{}{"task_id": id},
	})
	if res.IsError {
		t.Fatalf("get failed: %s", resultText(t, res))
	}
}

func TestToolReportsKnownFailure(t *testing.T) {
	s := newTestServer(t, issuedSecret(t))

	res := callTool(t, s, action.GetTask, map[string]interface{}{
		"user_id": "agent-user",
		"payload": map[string]interface{}{"task_id": "not-a-uuid"},
	})
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	if text := resultText(t, res); !strings.Contains(text, "Invalid UUID format for task_id") || !strings.Contains(text, "400") {
		t.Errorf("unexpected error text %q", text)
	}
}

func TestToolRequiresUserID(t *testing.T) {
	s := newTestServer(t, issuedSecret(t))

	res := callTool(t, s, action.ListTasks, map[string]interface{}{})
	if !res.IsError || !strings.Contains(resultText(t, res), "user_id") {
		t.Errorf("expected missing user_id error, got %+v", res)
	}
}

func TestToolRejectsInvalidServiceKey(t *testing.T) {
	s := newTestServer(t, func(*service.KeyService) string { return "sk_dev_0000" })

	res := callTool(t, s, action.ListTasks, map[string]interface{}{"user_id": "agent-user"})
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	if text := resultText(t, res); !strings.Contains(text, command.DetailInvalidKey) {
		t.Errorf("unexpected error text %q", text)
	}
}

func TestActionsResource(t *testing.T) {
	s := newTestServer(t, issuedSecret(t))

	var req mcp.ReadResourceRequest
	req.Params.URI = actionsURI
	contents, err := s.handleActionsResource(context.Background(), req)
	if err != nil {
		t.Fatalf("handleActionsResource: %v", err)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content is %T", contents[0])
	}
	var items []actionInfo
	if err := json.Unmarshal([]byte(text.Text), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 6 {
		t.Errorf("got %d actions, want 6", len(items))
	}
	for _, it := range items {
		if it.Tool != toolName(it.Name) {
			t.Errorf("tool name mismatch for %s: %s", it.Name, it.Tool)
		}
	}
}

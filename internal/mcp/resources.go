package mcp

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const actionsURI = "taskmanager://actions"

// registerResources adds read-only resources LLM clients can load into
// their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			actionsURI,
			"Available Actions",
			mcp.WithResourceDescription(
				"Every action accepted by POST /execute, with its description "+
					"and whether it modifies data.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleActionsResource,
	)
}

type actionInfo struct {
	Name        string `json:"name"`
	Tool        string `json:"tool"`
	Description string `json:"description,omitempty"`
	ReadOnly    bool   `json:"read_only"`
}

func (s *MCPServer) handleActionsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	actions := s.router.Registry().Actions()
	items := make([]actionInfo, len(actions))
	for i, a := range actions {
		items[i] = actionInfo{
			Name:        a.Name,
			Tool:        toolName(a.Name),
			Description: a.Description,
			ReadOnly:    a.ReadOnly,
		}
	}

	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actions: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      actionsURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

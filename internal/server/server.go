// Package server wires the router into an MCP stdio server, registering
// one MCP tool per exposed route and forwarding every call through
// router.Router.CallTool. Grounded on a NewMCPServer/AddTool/ServeStdio
// wiring style, adapted from a large fixed tool set down to a dynamic
// registration loop driven by the router's route table.
package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/everything-chalna/oh-my-notionmcp/internal/activity"
	"github.com/everything-chalna/oh-my-notionmcp/internal/localbackend"
	"github.com/everything-chalna/oh-my-notionmcp/internal/reqcontext"
	"github.com/everything-chalna/oh-my-notionmcp/internal/router"
)

const activityLogToolName = "__mcp_activity_log"

const (
	serverName    = "oh-my-notionmcp"
	serverVersion = "0.1.0"
)

// Server owns the mcp-go MCP server instance and the router it dispatches
// through.
type Server struct {
	mcpServer *mcpserver.MCPServer
	router    *router.Router
	auth      localbackend.AuthContext
	logger    *zap.Logger
}

// New constructs a Server, registering one MCP tool per name the router
// currently exposes. auth carries the static credentials (an integration
// token, typically) this process was configured with; stdio has no
// per-request headers; every call is made as the same identity.
func New(rt *router.Router, auth localbackend.AuthContext, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpSrv := mcpserver.NewMCPServer(serverName, serverVersion, mcpserver.WithToolCapabilities(true))

	s := &Server{
		mcpServer: mcpSrv,
		router:    rt,
		auth:      auth,
		logger:    logger,
	}
	s.registerTools()
	return s
}

// registerTools adds one generic tool per router-exposed name. Each tool
// accepts a single "arguments" object, since the underlying operations'
// input shapes vary and are not separately surfaced by the router.
func (s *Server) registerTools() {
	for _, name := range s.router.ExposedTools() {
		tool := mcp.NewTool(name,
			mcp.WithDescription(fmt.Sprintf("Dispatches the %s operation through the tiered cache and fast-path.", name)),
			mcp.WithObject("arguments",
				mcp.Description("Arguments for this operation, matching its hosted-API request shape."),
			),
		)
		s.mcpServer.AddTool(tool, s.makeHandler(name))
	}
}

func (s *Server) makeHandler(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if nested, ok := args["arguments"].(map[string]interface{}); ok {
			args = nested
		}

		ctx = localbackend.WithAuth(ctx, s.auth)
		ctx = reqcontext.WithMetadata(ctx, reqcontext.SourceMCP)

		result, err := s.router.CallTool(ctx, name, args)
		if err != nil {
			s.logger.Error("server: tool dispatch failed", zap.String("tool", name), zap.Error(err))
			return mcp.NewToolResultError(err.Error()), nil
		}
		if result.IsError {
			return mcp.NewToolResultError(result.FirstText()), nil
		}
		return mcp.NewToolResultText(result.FirstText()), nil
	}
}

// RegisterActivityLogTool exposes a read-only __mcp_activity_log meta
// tool that lists recent recorded calls from log. It is additive and
// present regardless of router state, matching the supplemented
// activity/audit log feature: operators can inspect recent dispatch
// outcomes without a separate CLI round trip.
func (s *Server) RegisterActivityLogTool(log *activity.Log) {
	if log == nil {
		return
	}
	tool := mcp.NewTool(activityLogToolName,
		mcp.WithDescription("Lists the most recent tool-call outcomes recorded by the router, newest first."),
		mcp.WithString("tool_name", mcp.Description("Only return records for this tool name.")),
		mcp.WithString("status", mcp.Description("Only return records with this status: success, error, or blocked.")),
		mcp.WithTitleAnnotation("Activity log"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcpServer.AddTool(tool, func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		filter := activity.Filter{}
		if v, ok := args["tool_name"].(string); ok {
			filter.ToolName = v
		}
		if v, ok := args["status"].(string); ok {
			filter.Status = v
		}
		records := log.List(filter)
		payload, err := json.Marshal(records)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	})
}

// ServeStdio blocks, serving the MCP protocol over stdin/stdout until the
// mcp-go stdio transport returns. ctx is not consulted.
func (s *Server) ServeStdio(_ context.Context) error {
	if err := mcpserver.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("server: stdio transport: %w", err)
	}
	return nil
}

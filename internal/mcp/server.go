package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ziadkadry99/personaengine/internal/engine"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes the persona engine as tools.
type Server struct {
	engine *engine.Engine
	logger *zap.Logger
	mcp    *server.MCPServer
}

// NewServer creates a new MCP server over the given engine.
func NewServer(e *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: e,
		logger: logger.Named("mcp"),
	}

	s.mcp = server.NewMCPServer(
		"personaengine",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(declareCapabilitiesTool, s.handleDeclareCapabilities)
	s.mcp.AddTool(getCapabilitiesTool, s.handleGetCapabilities)
	s.mcp.AddTool(createRoleTool, s.handleCreateRole)
	s.mcp.AddTool(checkPermissionTool, s.handleCheckPermission)
	s.mcp.AddTool(listRolesTool, s.handleListRoles)
	s.mcp.AddTool(validatePromptTool, s.handleValidatePrompt)
	s.mcp.AddTool(sanitizePromptTool, s.handleSanitizePrompt)
	s.mcp.AddTool(optimizePromptTool, s.handleOptimizePrompt)
	s.mcp.AddTool(getSecurityLevelTool, s.handleGetSecurityLevel)
	s.mcp.AddTool(rankCandidatesTool, s.handleRankCandidates)
	s.mcp.AddTool(delegateTaskTool, s.handleDelegateTask)
	s.mcp.AddTool(getDelegationStatusTool, s.handleGetDelegationStatus)
	s.mcp.AddTool(updateDelegationTool, s.handleUpdateDelegation)
	s.mcp.AddTool(recordLineageTool, s.handleRecordLineage)
	s.mcp.AddTool(getLineageTool, s.handleGetLineage)
	s.mcp.AddTool(mergePersonasTool, s.handleMergePersonas)
	s.mcp.AddTool(verifyMergeAuditTool, s.handleVerifyMergeAudit)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	s.logger.Info("serving MCP on stdio", zap.String("version", Version))
	return server.ServeStdio(s.mcp)
}

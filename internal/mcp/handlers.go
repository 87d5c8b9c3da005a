package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ziadkadry99/personaengine/internal/capability"
	"github.com/ziadkadry99/personaengine/internal/delegation"
	"github.com/ziadkadry99/personaengine/internal/engine"
	"github.com/ziadkadry99/personaengine/internal/errs"
	"github.com/ziadkadry99/personaengine/internal/lineage"
	"github.com/ziadkadry99/personaengine/internal/rbac"
	"github.com/ziadkadry99/personaengine/internal/security"
)

func (s *Server) handleDeclareCapabilities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	persona, err := request.RequireString("persona_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: persona_id"), nil
	}

	c := &capability.Capability{
		PersonaID:    persona,
		Expertise:    request.GetStringSlice("expertise", nil),
		Tools:        request.GetStringSlice("tools", nil),
		Restrictions: request.GetStringSlice("restrictions", nil),
	}
	if err := objectArg(request, "performance_metrics", &c.PerformanceMetrics); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := objectArg(request, "learning_capabilities", &c.LearningCapabilities); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	saved, err := s.engine.Capabilities().Put(ctx, c)
	if err != nil {
		return s.toolError("declaring capabilities", err), nil
	}
	return jsonResult(saved)
}

func (s *Server) handleGetCapabilities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	persona, err := request.RequireString("persona_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: persona_id"), nil
	}

	c, err := s.engine.Capabilities().Get(ctx, persona)
	if err != nil {
		return s.toolError("reading capabilities", err), nil
	}
	return jsonResult(c)
}

func (s *Server) handleCreateRole(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	persona, err := request.RequireString("persona_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: persona_id"), nil
	}
	roleType, err := request.RequireString("role_type")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: role_type"), nil
	}

	role, err := s.engine.Roles().CreateRole(ctx, rbac.CreateRoleRequest{
		ParentRoleID: request.GetString("parent_role_id", ""),
		RoleID:       request.GetString("role_id", ""),
		PersonaID:    persona,
		RoleType:     rbac.RoleType(roleType),
		Permissions:  request.GetStringSlice("permissions", nil),
		Description:  request.GetString("description", ""),
	})
	if err != nil {
		return s.toolError("creating role", err), nil
	}
	return jsonResult(role)
}

func (s *Server) handleCheckPermission(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	persona, err := request.RequireString("persona_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: persona_id"), nil
	}
	permission, err := request.RequireString("permission")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: permission"), nil
	}

	ok, err := s.engine.Roles().HasPermission(ctx, persona, permission)
	if err != nil {
		return s.toolError("checking permission", err), nil
	}
	return jsonResult(map[string]any{
		"persona_id": persona,
		"permission": permission,
		"granted":    ok,
	})
}

func (s *Server) handleListRoles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	persona, err := request.RequireString("persona_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: persona_id"), nil
	}

	roles, err := s.engine.Roles().ListRoles(ctx, persona, request.GetBool("include_inactive", false))
	if err != nil {
		return s.toolError("listing roles", err), nil
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	return jsonResult(roles)
}

func (s *Server) handleValidatePrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}

	// An explicit level is a what-if query and does not feed the gate.
	if lvl := request.GetString("level", ""); lvl != "" {
		level, err := security.ParseLevel(lvl)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(security.Validate(text, level))
	}
	return jsonResult(s.engine.ValidatePrompt(text))
}

func (s *Server) handleSanitizePrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}

	level := s.engine.Gate().Level()
	if lvl := request.GetString("level", ""); lvl != "" {
		level, err = security.ParseLevel(lvl)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return jsonResult(security.Sanitize(text, level))
}

func (s *Server) handleOptimizePrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	persona, err := request.RequireString("persona_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: persona_id"), nil
	}
	base, err := request.RequireString("base_prompt")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: base_prompt"), nil
	}

	req := engine.OptimizeRequest{
		PersonaID:   persona,
		BasePrompt:  base,
		Task:        request.GetString("task", ""),
		MaxTokens:   request.GetInt("max_tokens", 0),
		Model:       request.GetString("model", ""),
		Compression: request.GetString("compression", ""),
	}
	if _, ok := request.GetArguments()["reject_unsafe"]; ok {
		reject := request.GetBool("reject_unsafe", false)
		req.RejectUnsafe = &reject
	}

	res, err := s.engine.OptimizePrompt(ctx, req)
	if err != nil {
		return s.toolError("optimizing prompt", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleGetSecurityLevel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gate := s.engine.Gate()
	return jsonResult(map[string]any{
		"level":           gate.Level(),
		"adaptive":        s.engine.Adaptive(),
		"recent_attempts": len(gate.RecentAttempts()),
	})
}

func (s *Server) handleRankCandidates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	required := request.GetStringSlice("required_capabilities", nil)
	if len(required) == 0 {
		return mcp.NewToolResultError("missing required parameter: required_capabilities"), nil
	}

	opts := delegation.RankOptions{
		ExcludeBusy:     request.GetBool("exclude_busy", false),
		MinMatchPercent: request.GetFloat("min_match_percent", 0),
		MaxCandidates:   request.GetInt("max_candidates", 0),
	}
	ranked, err := s.engine.Delegations().RankCandidates(ctx, required, request.GetStringSlice("exclude", nil), opts)
	if err != nil {
		return s.toolError("ranking candidates", err), nil
	}
	return jsonResult(ranked)
}

func (s *Server) handleDelegateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := request.RequireString("from_persona")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: from_persona"), nil
	}
	task, err := request.RequireString("task_description")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task_description"), nil
	}

	d, err := s.engine.Delegate(ctx, delegation.DelegateRequest{
		FromPersona:          from,
		TaskDescription:      task,
		RequiredCapabilities: request.GetStringSlice("required_capabilities", nil),
		ToPersona:            request.GetString("to_persona", ""),
		Priority:             delegation.Priority(request.GetString("priority", "")),
	})
	if err != nil {
		return s.toolError("delegating task", err), nil
	}
	return jsonResult(d)
}

func (s *Server) handleGetDelegationStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("delegation_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: delegation_id"), nil
	}

	st, err := s.engine.Delegations().GetStatus(ctx, id)
	if err != nil {
		return s.toolError("reading delegation", err), nil
	}
	return jsonResult(st)
}

func (s *Server) handleUpdateDelegation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("delegation_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: delegation_id"), nil
	}
	args := request.GetArguments()
	status := request.GetString("status", "")
	_, hasProgress := args["progress"]
	if status == "" && !hasProgress {
		return mcp.NewToolResultError("provide status, progress or both"), nil
	}

	store := s.engine.Delegations()
	if status != "" {
		var result json.RawMessage
		if raw := request.GetString("result", ""); raw != "" {
			result = json.RawMessage(raw)
		}
		if _, err := store.Transition(ctx, id, delegation.Status(status), result); err != nil {
			return s.toolError("updating delegation", err), nil
		}
	}
	if hasProgress {
		if _, err := store.UpdateProgress(ctx, id, request.GetInt("progress", 0), request.GetString("current_step", "")); err != nil {
			return s.toolError("updating progress", err), nil
		}
	}

	st, err := store.GetStatus(ctx, id)
	if err != nil {
		return s.toolError("reading delegation", err), nil
	}
	return jsonResult(st)
}

func (s *Server) handleRecordLineage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parent, err := request.RequireString("parent_persona")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: parent_persona"), nil
	}
	child, err := request.RequireString("child_persona")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: child_persona"), nil
	}
	strategy, err := request.RequireString("merge_strategy")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: merge_strategy"), nil
	}

	rec, err := s.engine.Lineage().RecordLineage(ctx, parent, child, lineage.Strategy(strategy),
		request.GetFloat("inheritance_percentage", 1))
	if err != nil {
		return s.toolError("recording lineage", err), nil
	}
	return jsonResult(rec)
}

func (s *Server) handleGetLineage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	persona, err := request.RequireString("persona_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: persona_id"), nil
	}

	report, err := s.engine.Lineage().Report(ctx, persona, request.GetInt("max_depth", 0))
	if err != nil {
		return s.toolError("reading lineage", err), nil
	}
	return jsonResult(report)
}

func (s *Server) handleMergePersonas(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sources := request.GetStringSlice("sources", nil)
	if len(sources) == 0 {
		return mcp.NewToolResultError("missing required parameter: sources"), nil
	}
	target, err := request.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: target"), nil
	}
	strategy, err := request.RequireString("strategy")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: strategy"), nil
	}

	res, err := s.engine.Merge(ctx, lineage.MergeRequest{
		Sources:              sources,
		Target:               target,
		Strategy:             lineage.MergeStrategy(strategy),
		OperatorID:           request.GetString("operator_id", ""),
		HistoryAccessGranted: request.GetBool("history_access_granted", false),
	})
	if err != nil {
		return s.toolError("merging personas", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleVerifyMergeAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("audit_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: audit_id"), nil
	}

	v, err := s.engine.Audits().Verify(ctx, id)
	if err != nil {
		return s.toolError("verifying merge audit", err), nil
	}
	return jsonResult(v)
}

// toolError turns a component error into a tool-level error result. Storage
// failures are logged since the caller only sees the message.
func (s *Server) toolError(op string, err error) *mcp.CallToolResult {
	if errors.Is(err, errs.ErrStorage) {
		s.logger.Error(op, zap.Error(err))
	} else {
		s.logger.Debug(op, zap.Error(err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err))
}

// jsonResult renders v as indented JSON text for the agent.
// objectArg decodes an optional object argument into dst. dst is left alone
// when the argument is absent.
func objectArg(request mcp.CallToolRequest, key string, dst any) error {
	v, ok := request.GetArguments()[key]
	if !ok || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %v", key, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid %s: %v", key, err)
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = map[string]any{"type": "string"}

// declareCapabilitiesTool replaces a persona's capability record.
var declareCapabilitiesTool = mcp.NewTool("declare_capabilities",
	mcp.WithDescription("Declare a persona's expertise, tools and restrictions. Replaces any previous declaration."),
	mcp.WithString("persona_id",
		mcp.Required(),
		mcp.Description("Persona to declare capabilities for"),
	),
	mcp.WithArray("expertise",
		mcp.Description("Areas of expertise"),
		mcp.Items(stringItems),
	),
	mcp.WithArray("tools",
		mcp.Description("Tools the persona can use"),
		mcp.Items(stringItems),
	),
	mcp.WithArray("restrictions",
		mcp.Description("Things the persona must not do"),
		mcp.Items(stringItems),
	),
	mcp.WithObject("performance_metrics",
		mcp.Description("Observed performance: tasks_completed, success_rate, average_latency_ms, ratings"),
		mcp.Properties(map[string]any{
			"tasks_completed":    map[string]any{"type": "integer"},
			"success_rate":       map[string]any{"type": "number"},
			"average_latency_ms": map[string]any{"type": "number"},
			"ratings":            map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "number"}},
		}),
	),
	mcp.WithObject("learning_capabilities",
		mcp.Description("How the persona adapts: adaptive, methods, domains"),
		mcp.Properties(map[string]any{
			"adaptive": map[string]any{"type": "boolean"},
			"methods":  map[string]any{"type": "array", "items": stringItems},
			"domains":  map[string]any{"type": "array", "items": stringItems},
		}),
	),
)

// getCapabilitiesTool reads a persona's capability record.
var getCapabilitiesTool = mcp.NewTool("get_capabilities",
	mcp.WithDescription("Get the declared capabilities of a persona."),
	mcp.WithString("persona_id",
		mcp.Required(),
		mcp.Description("Persona to look up"),
	),
)

var createRoleTool = mcp.NewTool("create_role",
	mcp.WithDescription("Attach a role with a permission set to a persona, optionally under a parent role."),
	mcp.WithString("persona_id",
		mcp.Required(),
		mcp.Description("Persona receiving the role"),
	),
	mcp.WithString("role_type",
		mcp.Required(),
		mcp.Description("Kind of role"),
		mcp.Enum("admin", "specialist", "assistant", "observer", "guest"),
	),
	mcp.WithArray("permissions",
		mcp.Description("Permissions granted by the role; \"admin\" implies every permission"),
		mcp.Items(stringItems),
	),
	mcp.WithString("role_id",
		mcp.Description("Role id (generated when omitted)"),
	),
	mcp.WithString("parent_role_id",
		mcp.Description("Parent role; the new role sits one level below it"),
	),
	mcp.WithString("description",
		mcp.Description("Free-text role description"),
	),
)

var checkPermissionTool = mcp.NewTool("check_permission",
	mcp.WithDescription("Check whether a persona holds a permission through any active role."),
	mcp.WithString("persona_id",
		mcp.Required(),
		mcp.Description("Persona to check"),
	),
	mcp.WithString("permission",
		mcp.Required(),
		mcp.Description("Permission name"),
	),
)

var listRolesTool = mcp.NewTool("list_roles",
	mcp.WithDescription("List the roles attached to a persona."),
	mcp.WithString("persona_id",
		mcp.Required(),
		mcp.Description("Persona whose roles to list"),
	),
	mcp.WithBoolean("include_inactive",
		mcp.Description("Also list deactivated roles"),
	),
)

// validatePromptTool scores text for prompt injection risk.
var validatePromptTool = mcp.NewTool("validate_prompt",
	mcp.WithDescription("Score text for prompt-injection risk and report every detected attempt."),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Text to screen"),
	),
	mcp.WithString("level",
		mcp.Description("Security level to score at (defaults to the current level)"),
		mcp.Enum("low", "medium", "strict"),
	),
)

var sanitizePromptTool = mcp.NewTool("sanitize_prompt",
	mcp.WithDescription("Neutralize injection phrases, encoded payloads and over-long lines in text."),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Text to clean"),
	),
	mcp.WithString("level",
		mcp.Description("Security level to sanitize at (defaults to the current level)"),
		mcp.Enum("low", "medium", "strict"),
	),
)

// optimizePromptTool appends a persona's capabilities to a prompt within a
// token budget.
var optimizePromptTool = mcp.NewTool("optimize_prompt",
	mcp.WithDescription("Screen a base prompt, then append the persona's task-relevant capabilities while staying within a token budget."),
	mcp.WithString("persona_id",
		mcp.Required(),
		mcp.Description("Persona whose capabilities are appended"),
	),
	mcp.WithString("base_prompt",
		mcp.Required(),
		mcp.Description("Prompt to extend"),
	),
	mcp.WithString("task",
		mcp.Description("Task description used to pick relevant capabilities"),
	),
	mcp.WithNumber("max_tokens",
		mcp.Description("Token budget (defaults to the configured budget)"),
	),
	mcp.WithString("model",
		mcp.Description("Tokenizer model name"),
	),
	mcp.WithString("compression",
		mcp.Description("How aggressively capabilities are compressed"),
		mcp.Enum("light", "medium", "heavy"),
	),
	mcp.WithBoolean("reject_unsafe",
		mcp.Description("Fail instead of sanitizing when the base prompt is unsafe"),
	),
)

var getSecurityLevelTool = mcp.NewTool("get_security_level",
	mcp.WithDescription("Get the current security level and the number of recent attempts driving it."),
)

// rankCandidatesTool ranks personas for a set of required capabilities.
var rankCandidatesTool = mcp.NewTool("rank_candidates",
	mcp.WithDescription("Rank personas by how well their capabilities cover the requirements, penalized by open workload."),
	mcp.WithArray("required_capabilities",
		mcp.Required(),
		mcp.Description("Capabilities the task needs"),
		mcp.Items(stringItems),
	),
	mcp.WithArray("exclude",
		mcp.Description("Personas to leave out"),
		mcp.Items(stringItems),
	),
	mcp.WithNumber("min_match_percent",
		mcp.Description("Minimum share of requirements a candidate must match (default 30)"),
	),
	mcp.WithNumber("max_candidates",
		mcp.Description("Maximum number of candidates returned (default 5)"),
	),
	mcp.WithBoolean("exclude_busy",
		mcp.Description("Leave out personas at or above the busy threshold"),
	),
)

var delegateTaskTool = mcp.NewTool("delegate_task",
	mcp.WithDescription("Hand a task to another persona. Without to_persona the best-ranked candidate is chosen."),
	mcp.WithString("from_persona",
		mcp.Required(),
		mcp.Description("Persona delegating the task"),
	),
	mcp.WithString("task_description",
		mcp.Required(),
		mcp.Description("What needs to be done"),
	),
	mcp.WithArray("required_capabilities",
		mcp.Required(),
		mcp.Description("Capabilities the task needs"),
		mcp.Items(stringItems),
	),
	mcp.WithString("to_persona",
		mcp.Description("Explicit assignee"),
	),
	mcp.WithString("priority",
		mcp.Description("Task priority (default medium)"),
		mcp.Enum("low", "medium", "high", "urgent"),
	),
)

var getDelegationStatusTool = mcp.NewTool("get_delegation_status",
	mcp.WithDescription("Get a delegation's status and progress."),
	mcp.WithString("delegation_id",
		mcp.Required(),
		mcp.Description("Delegation id"),
	),
)

// updateDelegationTool moves a delegation through its lifecycle or records
// progress.
var updateDelegationTool = mcp.NewTool("update_delegation",
	mcp.WithDescription("Change a delegation's status and/or report progress. Completed, failed and cancelled delegations are final."),
	mcp.WithString("delegation_id",
		mcp.Required(),
		mcp.Description("Delegation id"),
	),
	mcp.WithString("status",
		mcp.Description("New status"),
		mcp.Enum("accepted", "in_progress", "completed", "failed", "cancelled"),
	),
	mcp.WithString("result",
		mcp.Description("JSON result to attach"),
	),
	mcp.WithNumber("progress",
		mcp.Description("Progress percentage, 0-100"),
	),
	mcp.WithString("current_step",
		mcp.Description("Short description of the current step"),
	),
)

var recordLineageTool = mcp.NewTool("record_lineage",
	mcp.WithDescription("Record that a child persona inherits from a parent persona."),
	mcp.WithString("parent_persona",
		mcp.Required(),
		mcp.Description("Parent persona"),
	),
	mcp.WithString("child_persona",
		mcp.Required(),
		mcp.Description("Child persona"),
	),
	mcp.WithString("merge_strategy",
		mcp.Required(),
		mcp.Description("How the child inherited"),
		mcp.Enum("additive", "override", "selective", "weighted", "merged"),
	),
	mcp.WithNumber("inheritance_percentage",
		mcp.Description("Share inherited, 0-1 (default 1)"),
	),
)

var getLineageTool = mcp.NewTool("get_lineage",
	mcp.WithDescription("Get a persona's ancestors, descendants and lineage strength."),
	mcp.WithString("persona_id",
		mcp.Required(),
		mcp.Description("Persona to inspect"),
	),
	mcp.WithNumber("max_depth",
		mcp.Description("Levels to walk in each direction (default 5)"),
	),
)

// mergePersonasTool combines several personas into one.
var mergePersonasTool = mcp.NewTool("merge_personas",
	mcp.WithDescription("Merge source personas' capabilities into a target persona. Writes an audit entry and lineage edges atomically."),
	mcp.WithArray("sources",
		mcp.Required(),
		mcp.Description("Personas to merge from"),
		mcp.Items(stringItems),
	),
	mcp.WithString("target",
		mcp.Required(),
		mcp.Description("Persona receiving the merged capabilities"),
	),
	mcp.WithString("strategy",
		mcp.Required(),
		mcp.Description("How capability sets are combined"),
		mcp.Enum("union", "intersection", "weighted_average"),
	),
	mcp.WithString("operator_id",
		mcp.Description("Who requested the merge"),
	),
	mcp.WithBoolean("history_access_granted",
		mcp.Description("Whether the target may read the sources' history"),
	),
)

var verifyMergeAuditTool = mcp.NewTool("verify_merge_audit",
	mcp.WithDescription("Recompute a merge audit entry's integrity hash and compare it with the stored one."),
	mcp.WithString("audit_id",
		mcp.Required(),
		mcp.Description("Merge audit entry id"),
	),
)

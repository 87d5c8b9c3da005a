// Package engine ties the persona stores, the security gate and the prompt
// optimizer together behind one object used by the MCP tools, the REST API
// and the CLI.
package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ziadkadry99/personaengine/internal/audit"
	"github.com/ziadkadry99/personaengine/internal/capability"
	"github.com/ziadkadry99/personaengine/internal/config"
	"github.com/ziadkadry99/personaengine/internal/db"
	"github.com/ziadkadry99/personaengine/internal/delegation"
	"github.com/ziadkadry99/personaengine/internal/errs"
	"github.com/ziadkadry99/personaengine/internal/lineage"
	"github.com/ziadkadry99/personaengine/internal/rbac"
	"github.com/ziadkadry99/personaengine/internal/security"
	"github.com/ziadkadry99/personaengine/internal/tokens"
)

// DelegatePermission must be held by a delegating persona when
// delegation.require_permission is on.
const DelegatePermission = "delegate"

// Engine owns one instance of every component.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *db.DB

	caps        *capability.Store
	roles       *rbac.Store
	gate        *security.Gate
	optimizer   *tokens.Optimizer
	delegations *delegation.Store
	lineage     *lineage.Store
	audits      *audit.Store
}

// New wires the components over database. A nil counter selects the
// tokenizer named by cfg.Tokens.Tokenizer.
func New(database *db.DB, cfg *config.Config, counter tokens.Counter, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	level, err := security.ParseLevel(cfg.Security.Level)
	if err != nil {
		return nil, errs.Validation("%v", err)
	}
	if counter == nil {
		if cfg.Tokens.Tokenizer == "approx" {
			counter = tokens.ApproxCounter
		} else {
			counter = tokens.NewTiktokenCounter(logger)
		}
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger.Named("engine"),
		db:        database,
		caps:      capability.NewStore(database),
		roles:     rbac.NewStore(database),
		gate:      security.NewGate(level, cfg.Security.Window),
		optimizer: tokens.NewOptimizer(counter),
		audits:    audit.NewStore(database),
	}
	e.roles.SetInheritance(cfg.Permissions.Inherit)

	e.delegations = delegation.NewStore(database, e.caps)
	e.delegations.SetDefaults(delegation.RankOptions{
		MinMatchPercent: cfg.Delegation.MinMatchPercent,
		MaxCandidates:   cfg.Delegation.MaxCandidates,
		BusyThreshold:   cfg.Delegation.BusyThreshold,
	})

	e.lineage = lineage.NewStore(database, e.caps, e.roles, e.audits)
	e.lineage.SetMaxDepth(cfg.Lineage.MaxDepth)

	e.logger.Debug("engine ready",
		zap.String("security_level", string(level)),
		zap.Bool("adaptive", cfg.Security.Adaptive),
		zap.Bool("inherit_permissions", cfg.Permissions.Inherit),
		zap.Bool("require_delegate_permission", cfg.Delegation.RequirePermission),
	)
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

// DB returns the underlying database.
func (e *Engine) DB() *db.DB { return e.db }

func (e *Engine) Capabilities() *capability.Store { return e.caps }
func (e *Engine) Roles() *rbac.Store { return e.roles }
func (e *Engine) Gate() *security.Gate { return e.gate }
func (e *Engine) Optimizer() *tokens.Optimizer { return e.optimizer }
func (e *Engine) Delegations() *delegation.Store { return e.delegations }
func (e *Engine) Lineage() *lineage.Store { return e.lineage }
func (e *Engine) Audits() *audit.Store { return e.audits }
func (e *Engine) Adaptive() bool { return e.cfg.Security.Adaptive }
func (e *Engine) Logger() *zap.Logger { return e.logger }

// ValidatePrompt scores text at the gate's current level. When adaptive
// security is on the report is observed and may move the level.
func (e *Engine) ValidatePrompt(text string) security.Report {
	report := e.gate.Validate(text)
	e.observe(report)
	return report
}

func (e *Engine) observe(report security.Report) {
	if !e.cfg.Security.Adaptive {
		return
	}
	before := report.Level
	after := e.gate.Observe(report)
	if after != before {
		e.logger.Info("security level adjusted",
			zap.String("from", string(before)),
			zap.String("to", string(after)),
			zap.Int("recent_attempts", len(e.gate.RecentAttempts())),
		)
	}
}

// Delegate creates a delegation, first checking that the delegating persona
// holds the delegate permission when the configuration requires it.
func (e *Engine) Delegate(ctx context.Context, req delegation.DelegateRequest) (*delegation.Delegation, error) {
	if e.cfg.Delegation.RequirePermission {
		from := strings.TrimSpace(req.FromPersona)
		if from == "" {
			return nil, errs.Validation("delegation requires a delegating persona")
		}
		ok, err := e.roles.HasPermission(ctx, from, DelegatePermission)
		if err != nil {
			return nil, err
		}
		if !ok {
			e.logger.Warn("delegation refused", zap.String("from", from))
			return nil, errs.PermissionDenied("persona %q lacks the %q permission", from, DelegatePermission)
		}
	}

	d, err := e.delegations.Delegate(ctx, req)
	if err != nil {
		return nil, err
	}
	e.logger.Info("task delegated",
		zap.String("id", d.ID),
		zap.String("from", d.FromPersona),
		zap.String("to", d.ToPersona),
		zap.String("priority", string(d.Priority)),
	)
	return d, nil
}

// Merge runs a lineage merge and logs its audit entry.
func (e *Engine) Merge(ctx context.Context, req lineage.MergeRequest) (*lineage.MergeResult, error) {
	res, err := e.lineage.Merge(ctx, req)
	if err != nil {
		e.logger.Warn("merge failed", zap.String("target", req.Target), zap.Error(err))
		return nil, err
	}
	e.logger.Info("personas merged",
		zap.String("target", req.Target),
		zap.Strings("sources", res.Audit.SecondaryPersonas),
		zap.String("strategy", string(req.Strategy)),
		zap.String("audit_id", res.Audit.ID),
	)
	return res, nil
}

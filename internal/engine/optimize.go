package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ziadkadry99/personaengine/internal/errs"
	"github.com/ziadkadry99/personaengine/internal/security"
	"github.com/ziadkadry99/personaengine/internal/tokens"
)

// OptimizeRequest asks for a persona's capabilities to be appended to a base
// prompt within a token budget. Zero values fall back to the configuration.
type OptimizeRequest struct {
	PersonaID    string `json:"persona_id"`
	BasePrompt   string `json:"base_prompt"`
	Task         string `json:"task,omitempty"`
	MaxTokens    int    `json:"max_tokens,omitempty"`
	Model        string `json:"model,omitempty"`
	Compression  string `json:"compression,omitempty"`
	RejectUnsafe *bool  `json:"reject_unsafe,omitempty"`
}

// OptimizeResult is the optimized prompt plus the diagnostics of every step.
type OptimizeResult struct {
	PersonaID    string                   `json:"persona_id"`
	Prompt       string                   `json:"prompt"`
	Tokens       int                      `json:"tokens"`
	MaxTokens    int                      `json:"max_tokens"`
	Stage        int                      `json:"stage"`
	OverBudget   bool                     `json:"over_budget"`
	Compression  tokens.CompressionLevel  `json:"compression"`
	Capabilities tokens.Compressed        `json:"capabilities"`
	Security     security.Report          `json:"security"`
	Sanitization *security.SanitizeResult `json:"sanitization,omitempty"`
}

// OptimizePrompt loads the persona's capabilities, screens the base prompt,
// keeps the capability entries relevant to the task and fits the result into
// the token budget. An unsafe base prompt is rejected with
// errs.ErrSecurityRejected when rejection is requested and sanitized
// otherwise.
func (e *Engine) OptimizePrompt(ctx context.Context, req OptimizeRequest) (*OptimizeResult, error) {
	if strings.TrimSpace(req.PersonaID) == "" {
		return nil, errs.Validation("persona id is required")
	}
	compression, err := tokens.ParseCompression(firstNonEmpty(req.Compression, e.cfg.Tokens.Compression))
	if err != nil {
		return nil, errs.Validation("%v", err)
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = e.cfg.Tokens.MaxTokens
	}
	reject := e.cfg.Security.RejectUnsafe
	if req.RejectUnsafe != nil {
		reject = *req.RejectUnsafe
	}

	caps, err := e.caps.Get(ctx, req.PersonaID)
	if err != nil {
		return nil, err
	}

	report := e.ValidatePrompt(req.BasePrompt)
	base := req.BasePrompt
	var sanitized *security.SanitizeResult
	if !report.IsSafe {
		if reject {
			e.logger.Warn("prompt rejected",
				zap.String("persona", req.PersonaID),
				zap.Int("risk", report.RiskScore),
				zap.String("level", string(report.Level)),
			)
			return nil, errs.SecurityRejected("base prompt risk %d meets the %s threshold of %d",
				report.RiskScore, report.Level, report.Level.Threshold())
		}
		s := e.gate.Sanitize(base)
		sanitized = &s
		base = s.Text
		e.logger.Info("prompt sanitized",
			zap.String("persona", req.PersonaID),
			zap.Int("risk", report.RiskScore),
			zap.Strings("filters", s.FiltersApplied),
		)
	}

	var selected tokens.Compressed
	if strings.TrimSpace(req.Task) != "" {
		selected = tokens.SelectRelevant(req.Task, *caps, compression)
	} else {
		selected = tokens.Compress(*caps, compression)
	}

	res := e.optimizer.Optimize(base, selected, tokens.Options{MaxTokens: maxTokens, Model: firstNonEmpty(req.Model, e.cfg.Tokens.Model)})
	if res.OverBudget {
		e.logger.Warn("prompt over budget",
			zap.String("persona", req.PersonaID),
			zap.Int("tokens", res.Tokens),
			zap.Int("max_tokens", maxTokens),
		)
	}
	e.logger.Debug("prompt optimized",
		zap.String("persona", req.PersonaID),
		zap.Int("tokens", res.Tokens),
		zap.Int("stage", res.Stage),
	)

	return &OptimizeResult{
		PersonaID:    req.PersonaID,
		Prompt:       res.Prompt,
		Tokens:       res.Tokens,
		MaxTokens:    maxTokens,
		Stage:        res.Stage,
		OverBudget:   res.OverBudget,
		Compression:  compression,
		Capabilities: selected,
		Security:     report,
		Sanitization: sanitized,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

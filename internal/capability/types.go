package capability

import (
	"time"

	"github.com/ziadkadry99/personaengine/internal/stringset"
)

// Capability is a persona's declared expertise, tools and restrictions.
// There is at most one record per persona and every write replaces it.
type Capability struct {
	PersonaID            string                `json:"persona_id" yaml:"persona_id"`
	Expertise            []string              `json:"expertise" yaml:"expertise"`
	Tools                []string              `json:"tools" yaml:"tools"`
	Restrictions         []string              `json:"restrictions" yaml:"restrictions"`
	PerformanceMetrics   *PerformanceMetrics   `json:"performance_metrics,omitempty" yaml:"performance_metrics,omitempty"`
	LearningCapabilities *LearningCapabilities `json:"learning_capabilities,omitempty" yaml:"learning_capabilities,omitempty"`
	CreatedAt            time.Time             `json:"created_at" yaml:"-"`
	UpdatedAt            time.Time             `json:"updated_at" yaml:"-"`
}

// PerformanceMetrics is optional observed-performance metadata.
type PerformanceMetrics struct {
	TasksCompleted   int                `json:"tasks_completed" yaml:"tasks_completed"`
	SuccessRate      float64            `json:"success_rate" yaml:"success_rate"`
	AverageLatencyMS float64            `json:"average_latency_ms" yaml:"average_latency_ms"`
	Ratings          map[string]float64 `json:"ratings,omitempty" yaml:"ratings,omitempty"`
}

// LearningCapabilities is optional metadata about how a persona adapts.
type LearningCapabilities struct {
	Adaptive bool     `json:"adaptive" yaml:"adaptive"`
	Methods  []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	Domains  []string `json:"domains,omitempty" yaml:"domains,omitempty"`
}

// Normalize cleans the three set fields in place. Stored records are always
// normalized, so a record read back equals the normalized record written.
func (c *Capability) Normalize() {
	c.Expertise = stringset.Normalize(c.Expertise)
	c.Tools = stringset.Normalize(c.Tools)
	c.Restrictions = stringset.Normalize(c.Restrictions)
}

// Entries returns expertise followed by tools.
func (c *Capability) Entries() []string {
	out := make([]string, 0, len(c.Expertise)+len(c.Tools))
	out = append(out, c.Expertise...)
	return append(out, c.Tools...)
}

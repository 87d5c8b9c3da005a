package lineage

import (
	"time"

	"github.com/ziadkadry99/personaengine/internal/audit"
	"github.com/ziadkadry99/personaengine/internal/capability"
)

// DefaultMaxDepth bounds ancestor and descendant walks when the caller does
// not choose a depth.
const DefaultMaxDepth = 5

// Strategy describes how a child persona inherited from a parent.
type Strategy string

const (
	StrategyAdditive  Strategy = "additive"
	StrategyOverride  Strategy = "override"
	StrategySelective Strategy = "selective"
	StrategyWeighted  Strategy = "weighted"
	// StrategyMerged marks edges written by Merge.
	StrategyMerged Strategy = "merged"
)

// Valid reports whether s is a recognized lineage strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyAdditive, StrategyOverride, StrategySelective, StrategyWeighted, StrategyMerged:
		return true
	}
	return false
}

// MergeStrategy is the rule used to combine source capabilities.
type MergeStrategy string

const (
	MergeUnion           MergeStrategy = "union"
	MergeIntersection    MergeStrategy = "intersection"
	MergeWeightedAverage MergeStrategy = "weighted_average"
)

// Valid reports whether s is a recognized merge strategy.
func (s MergeStrategy) Valid() bool {
	switch s {
	case MergeUnion, MergeIntersection, MergeWeightedAverage:
		return true
	}
	return false
}

// Record is a directed parent → child lineage edge. Records are append-only.
type Record struct {
	ID                    string    `json:"id"`
	ParentPersona         string    `json:"parent_persona"`
	ChildPersona          string    `json:"child_persona"`
	MergeStrategy         Strategy  `json:"merge_strategy"`
	InheritancePercentage float64   `json:"inheritance_percentage"`
	Active                bool      `json:"active"`
	CreatedAt             time.Time `json:"created_at"`
}

// Relation is a persona reached by a lineage walk.
type Relation struct {
	PersonaID             string   `json:"persona_id"`
	Relation              string   `json:"relation"`
	Depth                 int      `json:"depth"`
	Strategy              Strategy `json:"merge_strategy"`
	InheritancePercentage float64  `json:"inheritance_percentage"`
}

// Report bundles both walks for one persona.
type Report struct {
	PersonaID   string     `json:"persona_id"`
	MaxDepth    int        `json:"max_depth"`
	Ancestors   []Relation `json:"ancestors"`
	Descendants []Relation `json:"descendants"`
	Strength    float64    `json:"lineage_strength"`
}

// MergeRequest combines the capabilities of Sources into Target.
type MergeRequest struct {
	Sources              []string      `json:"sources"`
	Target               string        `json:"target"`
	Strategy             MergeStrategy `json:"strategy"`
	OperatorID           string        `json:"operator_id,omitempty"`
	HistoryAccessGranted bool          `json:"history_access_granted"`
}

// MergeResult is everything a successful merge wrote.
type MergeResult struct {
	Capability *capability.Capability `json:"capability"`
	Audit      *audit.Entry           `json:"audit"`
	Lineage    []Record               `json:"lineage"`
}

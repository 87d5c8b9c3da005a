package delegation

import (
	"encoding/json"
	"time"
)

// Priority is a delegation's urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a recognized priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Status is a delegation's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// transitions lists the statuses each status may move to. Nothing moves
// backwards and terminal statuses have no entry.
var transitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusFailed, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusFailed, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed},
}

// baselineProgress is the progress implied by a status alone.
var baselineProgress = map[Status]int{
	StatusPending:    0,
	StatusAccepted:   20,
	StatusInProgress: 50,
	StatusCompleted:  100,
	StatusFailed:     0,
	StatusCancelled:  0,
}

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool {
	_, ok := baselineProgress[s]
	return ok
}

// Terminal reports whether s is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Metadata keys with meaning to GetStatus.
const (
	MetaProgress    = "progress_percentage"
	MetaCurrentStep = "current_step"
)

// Delegation is a unit of work handed from one persona to another.
type Delegation struct {
	ID                   string          `json:"id"`
	FromPersona          string          `json:"from_persona"`
	ToPersona            string          `json:"to_persona"`
	TaskDescription      string          `json:"task_description"`
	RequiredCapabilities []string        `json:"required_capabilities"`
	Priority             Priority        `json:"priority"`
	Status               Status          `json:"status"`
	Result               json.RawMessage `json:"result,omitempty"`
	Metadata             map[string]any  `json:"metadata,omitempty"`
	ScheduledAt          *time.Time      `json:"scheduled_at,omitempty"`
	StartedAt            *time.Time      `json:"started_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// DelegateRequest asks for a task to be delegated. With no ToPersona the
// best-ranked candidate other than FromPersona is chosen.
type DelegateRequest struct {
	FromPersona          string         `json:"from_persona"`
	TaskDescription      string         `json:"task_description"`
	RequiredCapabilities []string       `json:"required_capabilities"`
	Priority             Priority       `json:"priority,omitempty"`
	ToPersona            string         `json:"to_persona,omitempty"`
	ScheduledAt          *time.Time     `json:"scheduled_at,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// StatusReport is the progress view of a delegation.
type StatusReport struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step,omitempty"`
}

// Candidate is a ranked delegation target.
type Candidate struct {
	PersonaID       string   `json:"persona_id"`
	CapabilityScore float64  `json:"capability_score"`
	Load            int      `json:"load"`
	Rank            float64  `json:"rank"`
	Matched         []string `json:"matched"`
}

// RankOptions tune RankCandidates. Zero values select the store defaults.
type RankOptions struct {
	ExcludeBusy     bool    `json:"exclude_busy"`
	MinMatchPercent float64 `json:"min_match_percent,omitempty"`
	MaxCandidates   int     `json:"max_candidates,omitempty"`
	BusyThreshold   int     `json:"busy_threshold,omitempty"`
}

// DefaultRankOptions are used when a store is created without overrides.
var DefaultRankOptions = RankOptions{
	MinMatchPercent: 30,
	MaxCandidates:   5,
	BusyThreshold:   3,
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	FromPersona string
	ToPersona   string
	Status      Status
	Limit       int
}

package security

import "fmt"

// Level is the strictness setting for validation and sanitization.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelStrict Level = "strict"
)

// ParseLevel converts a user-supplied string to a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelLow, LevelMedium, LevelStrict:
		return Level(s), nil
	case "":
		return LevelMedium, nil
	default:
		return "", fmt.Errorf("invalid security level %q: must be one of low, medium, strict", s)
	}
}

// Threshold is the risk score at or above which text is unsafe. A lower
// threshold is stricter.
func (l Level) Threshold() int {
	switch l {
	case LevelLow:
		return 60
	case LevelStrict:
		return 20
	default:
		return 40
	}
}

// maxLineLength is the longest line Sanitize keeps, in runes.
func (l Level) maxLineLength() int {
	if l == LevelStrict {
		return 200
	}
	return 500
}

// AttemptType names the heuristic class that produced a detection.
type AttemptType string

const (
	AttemptDirectInjection     AttemptType = "direct_injection"
	AttemptRolePlay            AttemptType = "role_play"
	AttemptPrivilegeEscalation AttemptType = "privilege_escalation"
	AttemptEscapeReveal        AttemptType = "escape_reveal"
	AttemptKeyword             AttemptType = "keyword"
	AttemptEncoding            AttemptType = "encoding"
	AttemptStructural          AttemptType = "structural"
)

// Attempt is a single detection.
type Attempt struct {
	Type       AttemptType `json:"type"`
	Pattern    string      `json:"pattern"`
	Match      string      `json:"match,omitempty"`
	Confidence float64     `json:"confidence"`
	Risk       int         `json:"risk"`
}

// Report is the outcome of Validate.
type Report struct {
	IsSafe           bool      `json:"is_safe"`
	RiskScore        int       `json:"risk_score"`
	Level            Level     `json:"level"`
	DetectedAttempts []Attempt `json:"detected_attempts"`
	Recommendations  []string  `json:"recommendations"`
}

// SanitizeResult is the outcome of Sanitize.
type SanitizeResult struct {
	Text           string   `json:"text"`
	Level          Level    `json:"level"`
	Removed        []string `json:"removed"`
	FiltersApplied []string `json:"filters_applied"`
}

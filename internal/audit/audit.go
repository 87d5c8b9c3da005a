package audit

import "time"

// CapabilityDiff lists capability entries a merge added to or removed from
// the target persona.
type CapabilityDiff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// PermissionDiff lists permissions held by merge sources that the target
// persona did not hold.
type PermissionDiff struct {
	Granted []string `json:"granted"`
}

// Entry is an immutable merge audit record. IntegrityHash binds every other
// field except ID.
type Entry struct {
	ID                   string         `json:"id"`
	PrimaryPersona       string         `json:"primary_persona"`
	SecondaryPersonas    []string       `json:"secondary_personas"`
	MergeStrategy        string         `json:"merge_strategy"`
	CapabilityDiff       CapabilityDiff `json:"capability_diff"`
	PermissionDiff       PermissionDiff `json:"permission_diff"`
	HistoryAccessGranted bool           `json:"history_access_granted"`
	OperatorID           string         `json:"operator_id,omitempty"`
	IntegrityHash        string         `json:"integrity_hash"`
	CreatedAt            time.Time      `json:"created_at"`
}

// Verification is the outcome of re-hashing a stored entry.
type Verification struct {
	ID       string `json:"id"`
	Valid    bool   `json:"valid"`
	Stored   string `json:"stored_hash"`
	Computed string `json:"computed_hash"`
}

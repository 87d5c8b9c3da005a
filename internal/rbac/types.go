package rbac

import "time"

// RoleType classifies a role.
type RoleType string

const (
	RoleAdmin      RoleType = "admin"
	RoleSpecialist RoleType = "specialist"
	RoleAssistant  RoleType = "assistant"
	RoleObserver   RoleType = "observer"
	RoleGuest      RoleType = "guest"
)

// validRoleTypes is the set of recognized role types.
var validRoleTypes = map[RoleType]bool{
	RoleAdmin:      true,
	RoleSpecialist: true,
	RoleAssistant:  true,
	RoleObserver:   true,
	RoleGuest:      true,
}

// Valid reports whether t is a recognized role type.
func (t RoleType) Valid() bool { return validRoleTypes[t] }

// UniversalGrant is the permission that implies every other permission.
const UniversalGrant = "admin"

// Role is a named permission set attached to a persona, optionally parented
// to another role. HierarchyLevel is the parent's level plus one, or 1 for a
// root role.
type Role struct {
	ID             string    `json:"id"`
	PersonaID      string    `json:"persona_id"`
	RoleType       RoleType  `json:"role_type"`
	Permissions    []string  `json:"permissions"`
	Description    string    `json:"role_description"`
	ParentRoleID   string    `json:"parent_role_id,omitempty"`
	HierarchyLevel int       `json:"hierarchy_level"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateRoleRequest describes a role to create.
type CreateRoleRequest struct {
	ParentRoleID string   `json:"parent_role_id,omitempty" yaml:"parent,omitempty"`
	RoleID       string   `json:"role_id" yaml:"id"`
	PersonaID    string   `json:"persona_id" yaml:"-"`
	RoleType     RoleType `json:"role_type" yaml:"type"`
	Permissions  []string `json:"permissions" yaml:"permissions"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
}

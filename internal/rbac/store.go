package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/personaengine/internal/db"
	"github.com/ziadkadry99/personaengine/internal/errs"
	"github.com/ziadkadry99/personaengine/internal/stringset"
)

// maxHierarchyWalk bounds the parent walk used for inherited permissions.
const maxHierarchyWalk = 32

// Store persists roles and answers permission checks.
type Store struct {
	db *db.DB

	// inherit makes permission checks union the permissions of every role on
	// the path to the root instead of reading only the persona's own roles.
	inherit bool
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// SetInheritance toggles hierarchical permission resolution.
func (s *Store) SetInheritance(on bool) { s.inherit = on }

// CreateRole inserts a new role. The hierarchy level is derived from the
// parent role; roles can only reference parents that already exist, which
// keeps the role graph a forest.
func (s *Store) CreateRole(ctx context.Context, req CreateRoleRequest) (*Role, error) {
	if strings.TrimSpace(req.PersonaID) == "" {
		return nil, errs.Validation("role requires a persona id")
	}
	if !req.RoleType.Valid() {
		return nil, errs.Validation("invalid role type %q: must be one of admin, specialist, assistant, observer, guest", req.RoleType)
	}
	if req.RoleID == "" {
		req.RoleID = uuid.NewString()
	}

	level := 1
	if req.ParentRoleID != "" {
		if req.ParentRoleID == req.RoleID {
			return nil, errs.Validation("role %q cannot be its own parent", req.RoleID)
		}
		parent, err := s.GetRole(ctx, req.ParentRoleID)
		if err != nil {
			return nil, err
		}
		level = parent.HierarchyLevel + 1
	}

	role := &Role{
		ID:             req.RoleID,
		PersonaID:      req.PersonaID,
		RoleType:       req.RoleType,
		Permissions:    stringset.Normalize(req.Permissions),
		Description:    req.Description,
		ParentRoleID:   req.ParentRoleID,
		HierarchyLevel: level,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}

	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshalling permissions: %w", err)
	}
	var parent sql.NullString
	if role.ParentRoleID != "" {
		parent = sql.NullString{String: role.ParentRoleID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO persona_roles (
			id, persona_id, role_type, permissions, role_description,
			parent_role_id, hierarchy_level, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		role.ID, role.PersonaID, string(role.RoleType), string(perms), role.Description,
		parent, role.HierarchyLevel, db.FormatTime(role.CreatedAt),
	)
	if err != nil {
		if exists, _ := s.exists(ctx, role.ID); exists {
			return nil, errs.Validation("role %q already exists", role.ID)
		}
		return nil, errs.Storage("creating role", err)
	}
	return role, nil
}

// GetRole retrieves a role by id.
func (s *Store) GetRole(ctx context.Context, id string) (*Role, error) {
	return s.getRole(ctx, s.db, id)
}

func (s *Store) getRole(ctx context.Context, q db.Querier, id string) (*Role, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, persona_id, role_type, permissions, role_description,
		       parent_role_id, hierarchy_level, active, created_at
		FROM persona_roles WHERE id = ?`, id)
	role, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("role %q", id)
	}
	if err != nil {
		return nil, errs.Storage("reading role", err)
	}
	return role, nil
}

// ListRoles returns the persona's roles in creation order. Inactive roles are
// included only when includeInactive is set.
func (s *Store) ListRoles(ctx context.Context, personaID string, includeInactive bool) ([]Role, error) {
	return s.listRoles(ctx, s.db, personaID, includeInactive)
}

func (s *Store) listRoles(ctx context.Context, q db.Querier, personaID string, includeInactive bool) ([]Role, error) {
	query := `SELECT id, persona_id, role_type, permissions, role_description,
	                 parent_role_id, hierarchy_level, active, created_at
	          FROM persona_roles WHERE persona_id = ?`
	if !includeInactive {
		query += " AND active = 1"
	}
	query += " ORDER BY created_at, id"

	rows, err := q.QueryContext(ctx, query, personaID)
	if err != nil {
		return nil, errs.Storage("listing roles", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanInto(rows)
		if err != nil {
			return nil, errs.Storage("scanning role", err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("listing roles", err)
	}
	return roles, nil
}

// SetActive activates or deactivates a role.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE persona_roles SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return errs.Storage("updating role", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("role %q", id)
	}
	return nil
}

// HasPermission reports whether any active role of the persona grants the
// permission, either directly or through the universal grant. With
// inheritance enabled, permissions of ancestor roles count as well.
func (s *Store) HasPermission(ctx context.Context, personaID, permission string) (bool, error) {
	var (
		perms []string
		err   error
	)
	if s.inherit {
		perms, err = s.EffectivePermissions(ctx, personaID)
	} else {
		perms, err = s.directPermissions(ctx, s.db, personaID)
	}
	if err != nil {
		return false, err
	}
	return stringset.Contains(perms, permission) || stringset.Contains(perms, UniversalGrant), nil
}

// Permissions returns the permissions the persona holds under the store's
// resolution mode.
func (s *Store) Permissions(ctx context.Context, personaID string) ([]string, error) {
	return s.PermissionsTx(ctx, s.db, personaID)
}

// PermissionsTx is Permissions against an explicit querier.
func (s *Store) PermissionsTx(ctx context.Context, q db.Querier, personaID string) ([]string, error) {
	if s.inherit {
		return s.effectivePermissions(ctx, q, personaID)
	}
	return s.directPermissions(ctx, q, personaID)
}

// EffectivePermissions unions the permission sets of the persona's active
// roles and of every ancestor role up to the root. The walk tracks visited
// roles so a corrupted parent chain cannot loop.
func (s *Store) EffectivePermissions(ctx context.Context, personaID string) ([]string, error) {
	return s.effectivePermissions(ctx, s.db, personaID)
}

func (s *Store) effectivePermissions(ctx context.Context, q db.Querier, personaID string) ([]string, error) {
	roles, err := s.listRoles(ctx, q, personaID, false)
	if err != nil {
		return nil, err
	}

	perms := []string{}
	visited := make(map[string]bool)
	for _, role := range roles {
		current := &role
		for steps := 0; current != nil && steps < maxHierarchyWalk; steps++ {
			if visited[current.ID] {
				break
			}
			visited[current.ID] = true
			perms = stringset.Union(perms, current.Permissions)
			if current.ParentRoleID == "" {
				break
			}
			current, err = s.getRole(ctx, q, current.ParentRoleID)
			if errors.Is(err, errs.ErrNotFound) {
				break
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return perms, nil
}

func (s *Store) directPermissions(ctx context.Context, q db.Querier, personaID string) ([]string, error) {
	roles, err := s.listRoles(ctx, q, personaID, false)
	if err != nil {
		return nil, err
	}
	perms := []string{}
	for _, role := range roles {
		perms = stringset.Union(perms, role.Permissions)
	}
	return perms, nil
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM persona_roles WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Role, error) {
	var (
		r                   Role
		roleType, permsJSON string
		parent              sql.NullString
		active              int
		createdAt           string
	)
	if err := sc.Scan(&r.ID, &r.PersonaID, &roleType, &permsJSON, &r.Description,
		&parent, &r.HierarchyLevel, &active, &createdAt); err != nil {
		return nil, err
	}
	r.RoleType = RoleType(roleType)
	if err := json.Unmarshal([]byte(permsJSON), &r.Permissions); err != nil {
		return nil, fmt.Errorf("decoding permissions: %w", err)
	}
	r.ParentRoleID = parent.String
	r.Active = active == 1
	r.CreatedAt = db.ParseTime(createdAt)
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

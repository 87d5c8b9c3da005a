package lineage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/personaengine/internal/audit"
	"github.com/ziadkadry99/personaengine/internal/capability"
	"github.com/ziadkadry99/personaengine/internal/db"
	"github.com/ziadkadry99/personaengine/internal/errs"
)

// CapabilityStore reads and replaces capability records inside a
// transaction.
type CapabilityStore interface {
	GetTx(ctx context.Context, q db.Querier, personaID string) (*capability.Capability, error)
	PutTx(ctx context.Context, q db.Querier, c *capability.Capability) (*capability.Capability, error)
}

// PermissionReader lists a persona's permissions inside a transaction.
type PermissionReader interface {
	PermissionsTx(ctx context.Context, q db.Querier, personaID string) ([]string, error)
}

// AuditLogger appends merge audit entries inside a transaction.
type AuditLogger interface {
	LogTx(ctx context.Context, q db.Querier, entry audit.Entry) (*audit.Entry, error)
}

// Store records lineage edges, walks them, and performs merges.
type Store struct {
	db       *db.DB
	caps     CapabilityStore
	perms    PermissionReader
	audits   AuditLogger
	maxDepth int
	now      func() time.Time
}

// NewStore creates a Store. caps, perms and audits are only used by Merge.
func NewStore(database *db.DB, caps CapabilityStore, perms PermissionReader, audits AuditLogger) *Store {
	return &Store{
		db:       database,
		caps:     caps,
		perms:    perms,
		audits:   audits,
		maxDepth: DefaultMaxDepth,
		now:      time.Now,
	}
}

// SetMaxDepth changes the depth used when a walk is requested with
// maxDepth <= 0.
func (s *Store) SetMaxDepth(depth int) {
	if depth > 0 {
		s.maxDepth = depth
	}
}

// RecordLineage appends a parent → child edge.
func (s *Store) RecordLineage(ctx context.Context, parent, child string, strategy Strategy, inheritance float64) (*Record, error) {
	return s.recordTx(ctx, s.db, parent, child, strategy, inheritance)
}

func (s *Store) recordTx(ctx context.Context, q db.Querier, parent, child string, strategy Strategy, inheritance float64) (*Record, error) {
	parent = strings.TrimSpace(parent)
	child = strings.TrimSpace(child)
	if parent == "" || child == "" {
		return nil, errs.Validation("lineage requires both parent and child personas")
	}
	if parent == child {
		return nil, errs.Validation("persona %q cannot be its own parent", parent)
	}
	if !strategy.Valid() {
		return nil, errs.Validation("unknown lineage strategy %q", strategy)
	}
	if inheritance < 0 || inheritance > 1 {
		return nil, errs.Validation("inheritance percentage %v outside [0, 1]", inheritance)
	}

	rec := &Record{
		ID:                    uuid.New().String(),
		ParentPersona:         parent,
		ChildPersona:          child,
		MergeStrategy:         strategy,
		InheritancePercentage: inheritance,
		Active:                true,
		CreatedAt:             s.now().UTC(),
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO persona_lineage (id, parent_persona, child_persona, merge_strategy, inheritance_percentage, active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)`,
		rec.ID, rec.ParentPersona, rec.ChildPersona, string(rec.MergeStrategy),
		rec.InheritancePercentage, db.FormatTime(rec.CreatedAt),
	)
	if err != nil {
		return nil, errs.Storage("inserting lineage record", err)
	}
	return rec, nil
}

// Edges returns every lineage record touching the persona, oldest first.
func (s *Store) Edges(ctx context.Context, personaID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_persona, child_persona, merge_strategy, inheritance_percentage, active, created_at
		FROM persona_lineage
		WHERE parent_persona = ? OR child_persona = ?
		ORDER BY created_at, id`, personaID, personaID)
	if err != nil {
		return nil, errs.Storage("listing lineage records", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec       Record
			strategy  string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.ParentPersona, &rec.ChildPersona, &strategy,
			&rec.InheritancePercentage, &rec.Active, &createdAt); err != nil {
			return nil, errs.Storage("scanning lineage record", err)
		}
		rec.MergeStrategy = Strategy(strategy)
		rec.CreatedAt = db.ParseTime(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("listing lineage records", err)
	}
	return records, nil
}

type direction int

const (
	up direction = iota
	down
)

// Ancestors walks parent edges from personaID up to maxDepth levels.
func (s *Store) Ancestors(ctx context.Context, personaID string, maxDepth int) ([]Relation, error) {
	return s.walk(ctx, personaID, maxDepth, up)
}

// Descendants walks child edges from personaID down to maxDepth levels.
func (s *Store) Descendants(ctx context.Context, personaID string, maxDepth int) ([]Relation, error) {
	return s.walk(ctx, personaID, maxDepth, down)
}

// walk is a breadth-first traversal over active edges. A persona is reported
// once, at the shallowest depth it is reached, so cycles terminate.
func (s *Store) walk(ctx context.Context, personaID string, maxDepth int, dir direction) ([]Relation, error) {
	if maxDepth <= 0 {
		maxDepth = s.maxDepth
	}

	query := `
		SELECT parent_persona, merge_strategy, inheritance_percentage
		FROM persona_lineage
		WHERE child_persona = ? AND active = 1
		ORDER BY created_at, id`
	if dir == down {
		query = `
		SELECT child_persona, merge_strategy, inheritance_percentage
		FROM persona_lineage
		WHERE parent_persona = ? AND active = 1
		ORDER BY created_at, id`
	}

	visited := map[string]bool{personaID: true}
	frontier := []string{personaID}
	out := []Relation{}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, p := range frontier {
			found, err := s.neighbours(ctx, query, p)
			if err != nil {
				return nil, err
			}
			for _, rel := range found {
				if visited[rel.PersonaID] {
					continue
				}
				visited[rel.PersonaID] = true
				rel.Depth = depth
				rel.Relation = relationName(dir, depth)
				out = append(out, rel)
				next = append(next, rel.PersonaID)
			}
		}
		frontier = next
	}
	return out, nil
}

func (s *Store) neighbours(ctx context.Context, query, personaID string) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx, query, personaID)
	if err != nil {
		return nil, errs.Storage("walking lineage", err)
	}
	defer rows.Close()

	var out []Relation
	for rows.Next() {
		var (
			rel      Relation
			strategy string
		)
		if err := rows.Scan(&rel.PersonaID, &strategy, &rel.InheritancePercentage); err != nil {
			return nil, errs.Storage("scanning lineage edge", err)
		}
		rel.Strategy = Strategy(strategy)
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("walking lineage", err)
	}
	return out, nil
}

func relationName(dir direction, depth int) string {
	names := [...]string{"parent", "grandparent", "ancestor"}
	if dir == down {
		names = [...]string{"child", "grandchild", "descendant"}
	}
	switch depth {
	case 1:
		return names[0]
	case 2:
		return names[1]
	default:
		return names[2]
	}
}

// Strength scores how closely a persona is tied to its lineage: the mean of
// 1/depth over every relation, scaled to 0-100. No relations scores 0.
func Strength(ancestors, descendants []Relation) float64 {
	n := len(ancestors) + len(descendants)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, rel := range ancestors {
		sum += 1 / float64(rel.Depth)
	}
	for _, rel := range descendants {
		sum += 1 / float64(rel.Depth)
	}
	return sum / float64(n) * 100
}

// Report walks both directions and scores the result.
func (s *Store) Report(ctx context.Context, personaID string, maxDepth int) (*Report, error) {
	if strings.TrimSpace(personaID) == "" {
		return nil, errs.Validation("persona id is required")
	}
	if maxDepth <= 0 {
		maxDepth = s.maxDepth
	}
	ancestors, err := s.Ancestors(ctx, personaID, maxDepth)
	if err != nil {
		return nil, err
	}
	descendants, err := s.Descendants(ctx, personaID, maxDepth)
	if err != nil {
		return nil, err
	}
	return &Report{
		PersonaID:   personaID,
		MaxDepth:    maxDepth,
		Ancestors:   ancestors,
		Descendants: descendants,
		Strength:    Strength(ancestors, descendants),
	}, nil
}

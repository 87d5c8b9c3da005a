package manifest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ziadkadry99/personaengine/internal/capability"
	"github.com/ziadkadry99/personaengine/internal/engine"
	"github.com/ziadkadry99/personaengine/internal/errs"
	"github.com/ziadkadry99/personaengine/internal/progress"
	"github.com/ziadkadry99/personaengine/internal/rbac"
)

// Summary counts what an import changed.
type Summary struct {
	Personas      int `json:"personas"`
	RolesCreated  int `json:"roles_created"`
	RolesSkipped  int `json:"roles_skipped"`
	EdgesRecorded int `json:"edges_recorded"`
	EdgesSkipped  int `json:"edges_skipped"`
}

// Importer applies manifests to an engine.
type Importer struct {
	engine   *engine.Engine
	logger   *zap.Logger
	reporter progress.Reporter
}

// NewImporter creates an importer that reports nothing until SetReporter is
// called.
func NewImporter(e *engine.Engine, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{engine: e, logger: logger.Named("manifest"), reporter: progress.Nop{}}
}

// SetReporter sets the progress reporter used by Import.
func (im *Importer) SetReporter(r progress.Reporter) { im.reporter = r }

// Import declares every manifest's capabilities, then creates roles (parents
// first, possibly across manifests), then records lineage edges. Roles that
// already exist and edges already recorded are skipped so an import can be
// re-run. The first failure stops the import; earlier writes are kept.
func (im *Importer) Import(ctx context.Context, manifests []*Manifest) (*Summary, error) {
	seen := make(map[string]string, len(manifests))
	for _, m := range manifests {
		if prev, ok := seen[m.Persona]; ok {
			return nil, errs.Validation("persona %s declared in both %s and %s", m.Persona, prev, m.Source)
		}
		seen[m.Persona] = m.Source
	}

	sum := &Summary{}
	im.reporter.Start(len(manifests))
	defer im.reporter.Finish()

	for i, m := range manifests {
		if _, err := im.engine.Capabilities().Put(ctx, &capability.Capability{
			PersonaID:    m.Persona,
			Expertise:    m.Expertise,
			Tools:        m.Tools,
			Restrictions: m.Restrictions,
		}); err != nil {
			return sum, fmt.Errorf("declaring %s: %w", m.Persona, err)
		}
		sum.Personas++
		im.reporter.Update(i+1, m.Persona)
	}

	if err := im.importRoles(ctx, manifests, sum); err != nil {
		return sum, err
	}
	if err := im.importLineage(ctx, manifests, sum); err != nil {
		return sum, err
	}

	im.logger.Info("import complete",
		zap.Int("personas", sum.Personas),
		zap.Int("roles_created", sum.RolesCreated),
		zap.Int("edges_recorded", sum.EdgesRecorded),
	)
	return sum, nil
}

// importRoles creates roles in passes until every role exists. A pass that
// creates nothing means the remaining roles name parents that are neither
// stored nor declared.
func (im *Importer) importRoles(ctx context.Context, manifests []*Manifest, sum *Summary) error {
	roles := im.engine.Roles()

	var pending []rbac.CreateRoleRequest
	for _, m := range manifests {
		for _, req := range m.Roles {
			_, err := roles.GetRole(ctx, req.RoleID)
			switch {
			case err == nil:
				sum.RolesSkipped++
			case errors.Is(err, errs.ErrNotFound):
				pending = append(pending, req)
			default:
				return err
			}
		}
	}

	for len(pending) > 0 {
		var next []rbac.CreateRoleRequest
		for _, req := range pending {
			if req.ParentRoleID != "" {
				if _, err := roles.GetRole(ctx, req.ParentRoleID); errors.Is(err, errs.ErrNotFound) {
					next = append(next, req)
					continue
				} else if err != nil {
					return err
				}
			}
			if _, err := roles.CreateRole(ctx, req); err != nil {
				return fmt.Errorf("creating role %s for %s: %w", req.RoleID, req.PersonaID, err)
			}
			sum.RolesCreated++
		}
		if len(next) == len(pending) {
			return errs.NotFound("parent role %q of role %q", next[0].ParentRoleID, next[0].RoleID)
		}
		pending = next
	}
	return nil
}

func (im *Importer) importLineage(ctx context.Context, manifests []*Manifest, sum *Summary) error {
	store := im.engine.Lineage()
	for _, m := range manifests {
		if len(m.Parents) == 0 {
			continue
		}
		edges, err := store.Edges(ctx, m.Persona)
		if err != nil {
			return err
		}
	parents:
		for _, p := range m.Parents {
			for _, e := range edges {
				if e.Active && e.ParentPersona == p.Persona && e.ChildPersona == m.Persona && e.MergeStrategy == p.Strategy {
					sum.EdgesSkipped++
					continue parents
				}
			}
			if _, err := store.RecordLineage(ctx, p.Persona, m.Persona, p.Strategy, p.InheritanceOrDefault()); err != nil {
				return fmt.Errorf("recording %s -> %s: %w", p.Persona, m.Persona, err)
			}
			sum.EdgesRecorded++
		}
	}
	return nil
}

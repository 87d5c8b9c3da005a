package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"go.uber.org/zap"

	"github.com/ziadkadry99/personaengine/internal/config"
	"github.com/ziadkadry99/personaengine/internal/db"
	"github.com/ziadkadry99/personaengine/internal/engine"
	"github.com/ziadkadry99/personaengine/internal/errs"
	"github.com/ziadkadry99/personaengine/internal/tokens"
)

const backendYAML = `persona: backend
expertise: [go, postgres, go]
tools: [terminal]
restrictions: [no-prod-writes]
roles:
  - id: backend-lead
    type: specialist
    permissions: [delegate]
    parent: platform-admin
parents:
  - persona: generalist
    strategy: selective
    inheritance: 0.5
`

const platformYAML = `persona: platform
expertise: [kubernetes]
roles:
  - id: platform-admin
    type: admin
    permissions: [admin]
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	e, err := engine.New(database, config.DefaultConfig(), tokens.ApproxCounter, zap.NewNop())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return e
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(backendYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if m.Persona != "backend" {
		t.Errorf("persona = %q, want backend", m.Persona)
	}
	if len(m.Roles) != 1 || m.Roles[0].PersonaID != "backend" || m.Roles[0].ParentRoleID != "platform-admin" {
		t.Errorf("roles = %+v", m.Roles)
	}
	if len(m.Parents) != 1 || m.Parents[0].InheritanceOrDefault() != 0.5 {
		t.Errorf("parents = %+v", m.Parents)
	}
}

func TestParseGeneratesStableRoleIDs(t *testing.T) {
	m, err := Parse([]byte("persona: qa\nroles:\n  - type: observer\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got := m.Roles[0].RoleID; got != "qa-observer-1" {
		t.Errorf("role id = %q, want qa-observer-1", got)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no persona", "expertise: [go]\n"},
		{"unknown key", "persona: x\nskills: [go]\n"},
		{"bad role type", "persona: x\nroles:\n  - type: overlord\n"},
		{"self parent", "persona: x\nparents:\n  - persona: x\n    strategy: additive\n"},
		{"bad strategy", "persona: x\nparents:\n  - persona: y\n    strategy: osmosis\n"},
		{"inheritance range", "persona: x\nparents:\n  - persona: y\n    strategy: additive\n    inheritance: 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, errs.ErrValidation) {
				t.Errorf("Parse() error = %v, want validation error", err)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "personas/backend.persona.yaml", backendYAML)
	writeFile(t, root, "platform.persona.yml", platformYAML)
	writeFile(t, root, "personas/notes.yaml", "persona: ignored\n")
	writeFile(t, root, "node_modules/pkg/x.persona.yaml", "persona: ignored\n")
	writeFile(t, root, "archive/old.persona.yaml", "persona: old\n")

	files, err := Discover(DiscoverConfig{RootDir: root, Exclude: []string{"archive/**"}})
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}

	var got []string
	for _, f := range files {
		got = append(got, f.RelPath)
		if len(f.ContentHash) != 64 {
			t.Errorf("%s: content hash %q is not a 256-bit hex digest", f.RelPath, f.ContentHash)
		}
	}
	sort.Strings(got)
	want := []string{"personas/backend.persona.yaml", "platform.persona.yml"}
	if len(got) != len(want) {
		t.Fatalf("discovered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("discovered[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiscoverSizeLimit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.persona.yaml", backendYAML)

	files, err := Discover(DiscoverConfig{RootDir: root, MaxFileSize: 10})
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected oversized manifest to be skipped, got %v", files)
	}
}

func TestLoadReportsSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bad.persona.yaml", "persona: x\nroles:\n  - type: overlord\n")

	files, err := Discover(DiscoverConfig{RootDir: root})
	if err != nil || len(files) != 1 {
		t.Fatalf("Discover() = %v, %v", files, err)
	}
	_, err = Load(files[0])
	if !errors.Is(err, errs.ErrValidation) {
		t.Errorf("Load() error = %v, want validation error", err)
	}
}

func parseAll(t *testing.T, docs ...string) []*Manifest {
	t.Helper()
	var out []*Manifest
	for _, d := range docs {
		m, err := Parse([]byte(d))
		if err != nil {
			t.Fatalf("Parse() error: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func TestImport(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// backend's role names a parent declared later in the list.
	manifests := parseAll(t, backendYAML, platformYAML)
	sum, err := NewImporter(e, nil).Import(ctx, manifests)
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if sum.Personas != 2 || sum.RolesCreated != 2 || sum.EdgesRecorded != 1 {
		t.Errorf("summary = %+v", sum)
	}

	c, err := e.Capabilities().Get(ctx, "backend")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(c.Expertise) != 2 {
		t.Errorf("expertise = %v, want [go postgres]", c.Expertise)
	}

	role, err := e.Roles().GetRole(ctx, "backend-lead")
	if err != nil {
		t.Fatalf("GetRole() error: %v", err)
	}
	if role.HierarchyLevel != 2 {
		t.Errorf("hierarchy level = %d, want 2", role.HierarchyLevel)
	}

	anc, err := e.Lineage().Ancestors(ctx, "backend", 0)
	if err != nil {
		t.Fatalf("Ancestors() error: %v", err)
	}
	if len(anc) != 1 || anc[0].PersonaID != "generalist" {
		t.Errorf("ancestors = %+v", anc)
	}

	// Re-import changes nothing.
	sum, err = NewImporter(e, nil).Import(ctx, parseAll(t, backendYAML, platformYAML))
	if err != nil {
		t.Fatalf("re-Import() error: %v", err)
	}
	if sum.RolesCreated != 0 || sum.RolesSkipped != 2 || sum.EdgesRecorded != 0 || sum.EdgesSkipped != 1 {
		t.Errorf("re-import summary = %+v", sum)
	}
}

func TestImportMissingParentRole(t *testing.T) {
	e := newEngine(t)

	_, err := NewImporter(e, nil).Import(context.Background(), parseAll(t, backendYAML))
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Import() error = %v, want not found", err)
	}
}

func TestImportDuplicatePersona(t *testing.T) {
	e := newEngine(t)

	_, err := NewImporter(e, nil).Import(context.Background(), parseAll(t, platformYAML, platformYAML))
	if !errors.Is(err, errs.ErrValidation) {
		t.Errorf("Import() error = %v, want validation error", err)
	}
}

type countingReporter struct {
	total, updates int
	finished       bool
}

func (r *countingReporter) Start(total int)    { r.total = total }
func (r *countingReporter) Update(int, string) { r.updates++ }
func (r *countingReporter) Finish()            { r.finished = true }

func TestImportReportsProgress(t *testing.T) {
	e := newEngine(t)
	rep := &countingReporter{}
	im := NewImporter(e, nil)
	im.SetReporter(rep)

	if _, err := im.Import(context.Background(), parseAll(t, platformYAML)); err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if rep.total != 1 || rep.updates != 1 || !rep.finished {
		t.Errorf("reporter = %+v", rep)
	}
}

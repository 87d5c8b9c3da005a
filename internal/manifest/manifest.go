// Package manifest loads persona manifests: YAML files that declare a
// persona's capabilities, roles and parents so a fleet of personas can be
// provisioned from a repository instead of tool calls.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ziadkadry99/personaengine/internal/errs"
	"github.com/ziadkadry99/personaengine/internal/lineage"
	"github.com/ziadkadry99/personaengine/internal/rbac"
)

// Manifest is the on-disk description of one persona.
//
//	persona: backend-dev
//	expertise: [go, postgres]
//	tools: [terminal]
//	restrictions: [no-prod-writes]
//	roles:
//	  - id: backend-dev-specialist
//	    type: specialist
//	    permissions: [delegate, review]
//	parents:
//	  - persona: generalist
//	    strategy: selective
//	    inheritance: 0.5
type Manifest struct {
	Persona      string                   `yaml:"persona"`
	Expertise    []string                 `yaml:"expertise,omitempty"`
	Tools        []string                 `yaml:"tools,omitempty"`
	Restrictions []string                 `yaml:"restrictions,omitempty"`
	Roles        []rbac.CreateRoleRequest `yaml:"roles,omitempty"`
	Parents      []Parent                 `yaml:"parents,omitempty"`

	// Source is the file the manifest was read from, if any.
	Source string `yaml:"-"`
}

// Parent is a lineage edge from another persona to the manifest's persona.
type Parent struct {
	Persona     string           `yaml:"persona"`
	Strategy    lineage.Strategy `yaml:"strategy"`
	Inheritance *float64         `yaml:"inheritance,omitempty"`
}

// InheritanceOrDefault returns the declared inheritance share, or 1.
func (p Parent) InheritanceOrDefault() float64 {
	if p.Inheritance == nil {
		return 1
	}
	return *p.Inheritance
}

// Parse decodes a single manifest. Unknown keys are rejected so typos in a
// manifest surface at import time.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errs.Validation("empty manifest")
		}
		return nil, errs.Validation("decoding manifest: %v", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the fields the stores would otherwise reject halfway
// through an import.
func (m *Manifest) Validate() error {
	m.Persona = strings.TrimSpace(m.Persona)
	if m.Persona == "" {
		return errs.Validation("manifest has no persona")
	}
	for i := range m.Roles {
		r := &m.Roles[i]
		r.PersonaID = m.Persona
		if !r.RoleType.Valid() {
			return errs.Validation("persona %s: role %q has invalid type %q", m.Persona, r.RoleID, r.RoleType)
		}
		if r.RoleID == "" {
			// Stable ids keep re-imports idempotent.
			r.RoleID = fmt.Sprintf("%s-%s-%d", m.Persona, r.RoleType, i+1)
		}
	}
	for _, p := range m.Parents {
		if strings.TrimSpace(p.Persona) == "" {
			return errs.Validation("persona %s: parent without persona", m.Persona)
		}
		if p.Persona == m.Persona {
			return errs.Validation("persona %s lists itself as a parent", m.Persona)
		}
		if !p.Strategy.Valid() {
			return errs.Validation("persona %s: parent %s has invalid strategy %q", m.Persona, p.Persona, p.Strategy)
		}
		if v := p.InheritanceOrDefault(); v < 0 || v > 1 {
			return errs.Validation("persona %s: inheritance %v outside [0,1]", m.Persona, v)
		}
	}
	return nil
}

package capability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/personaengine/internal/db"
	"github.com/ziadkadry99/personaengine/internal/errs"
)

// Store persists capability records, one per persona.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// Get returns the capability record for a persona.
func (s *Store) Get(ctx context.Context, personaID string) (*Capability, error) {
	return s.GetTx(ctx, s.db, personaID)
}

// GetTx is Get against an explicit querier, typically a transaction.
func (s *Store) GetTx(ctx context.Context, q db.Querier, personaID string) (*Capability, error) {
	row := q.QueryRowContext(ctx, `
		SELECT persona_id, expertise, tools, restrictions, performance_metrics,
		       learning_capabilities, created_at, updated_at
		FROM capabilities WHERE persona_id = ?`, personaID)

	c, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("capabilities for persona %q", personaID)
	}
	if err != nil {
		return nil, errs.Storage("reading capabilities", err)
	}
	return c, nil
}

// Put replaces the persona's capability record, creating it on first
// declaration. The stored, normalized record is returned.
func (s *Store) Put(ctx context.Context, c *Capability) (*Capability, error) {
	return s.PutTx(ctx, s.db, c)
}

// PutTx is Put against an explicit querier, typically a transaction.
func (s *Store) PutTx(ctx context.Context, q db.Querier, c *Capability) (*Capability, error) {
	if c == nil || strings.TrimSpace(c.PersonaID) == "" {
		return nil, errs.Validation("capability record requires a persona id")
	}
	rec := *c
	rec.Normalize()

	expertise, err := json.Marshal(rec.Expertise)
	if err != nil {
		return nil, fmt.Errorf("marshalling expertise: %w", err)
	}
	tools, err := json.Marshal(rec.Tools)
	if err != nil {
		return nil, fmt.Errorf("marshalling tools: %w", err)
	}
	restrictions, err := json.Marshal(rec.Restrictions)
	if err != nil {
		return nil, fmt.Errorf("marshalling restrictions: %w", err)
	}
	perf, err := marshalOptional(rec.PerformanceMetrics)
	if err != nil {
		return nil, fmt.Errorf("marshalling performance metrics: %w", err)
	}
	learning, err := marshalOptional(rec.LearningCapabilities)
	if err != nil {
		return nil, fmt.Errorf("marshalling learning capabilities: %w", err)
	}

	now := s.now().UTC()
	_, err = q.ExecContext(ctx, `
		INSERT INTO capabilities (
			persona_id, expertise, tools, restrictions, performance_metrics,
			learning_capabilities, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(persona_id) DO UPDATE SET
			expertise = excluded.expertise,
			tools = excluded.tools,
			restrictions = excluded.restrictions,
			performance_metrics = excluded.performance_metrics,
			learning_capabilities = excluded.learning_capabilities,
			updated_at = excluded.updated_at`,
		rec.PersonaID, string(expertise), string(tools), string(restrictions),
		perf, learning, db.FormatTime(now), db.FormatTime(now),
	)
	if err != nil {
		return nil, errs.Storage("writing capabilities", err)
	}

	return s.GetTx(ctx, q, rec.PersonaID)
}

// List returns every capability record ordered by persona id.
func (s *Store) List(ctx context.Context) ([]Capability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT persona_id, expertise, tools, restrictions, performance_metrics,
		       learning_capabilities, created_at, updated_at
		FROM capabilities ORDER BY persona_id`)
	if err != nil {
		return nil, errs.Storage("listing capabilities", err)
	}
	defer rows.Close()

	var out []Capability
	for rows.Next() {
		c, err := scanInto(rows)
		if err != nil {
			return nil, errs.Storage("scanning capabilities", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("listing capabilities", err)
	}
	return out, nil
}

// Delete removes a persona's record. Personas are owned elsewhere; this is
// only used when a manifest is re-imported from scratch.
func (s *Store) Delete(ctx context.Context, personaID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM capabilities WHERE persona_id = ?`, personaID)
	if err != nil {
		return errs.Storage("deleting capabilities", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("capabilities for persona %q", personaID)
	}
	return nil
}

func marshalOptional(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case *PerformanceMetrics:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *LearningCapabilities:
		if t == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Capability, error) {
	var (
		c                              Capability
		expertise, tools, restrictions string
		perf, learning                 sql.NullString
		createdAt, updatedAt           string
	)
	if err := sc.Scan(&c.PersonaID, &expertise, &tools, &restrictions,
		&perf, &learning, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(expertise), &c.Expertise); err != nil {
		return nil, fmt.Errorf("decoding expertise: %w", err)
	}
	if err := json.Unmarshal([]byte(tools), &c.Tools); err != nil {
		return nil, fmt.Errorf("decoding tools: %w", err)
	}
	if err := json.Unmarshal([]byte(restrictions), &c.Restrictions); err != nil {
		return nil, fmt.Errorf("decoding restrictions: %w", err)
	}
	if perf.Valid {
		c.PerformanceMetrics = &PerformanceMetrics{}
		if err := json.Unmarshal([]byte(perf.String), c.PerformanceMetrics); err != nil {
			return nil, fmt.Errorf("decoding performance metrics: %w", err)
		}
	}
	if learning.Valid {
		c.LearningCapabilities = &LearningCapabilities{}
		if err := json.Unmarshal([]byte(learning.String), c.LearningCapabilities); err != nil {
			return nil, fmt.Errorf("decoding learning capabilities: %w", err)
		}
	}
	c.Normalize()
	c.CreatedAt = db.ParseTime(createdAt)
	c.UpdatedAt = db.ParseTime(updatedAt)
	return &c, nil
}

package delegation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/personaengine/internal/capability"
	"github.com/ziadkadry99/personaengine/internal/db"
	"github.com/ziadkadry99/personaengine/internal/errs"
	"github.com/ziadkadry99/personaengine/internal/stringset"
)

// CapabilityLister supplies the capability records candidates are ranked
// from.
type CapabilityLister interface {
	List(ctx context.Context) ([]capability.Capability, error)
}

// Store persists delegations and ranks candidate personas.
type Store struct {
	db       *db.DB
	caps     CapabilityLister
	defaults RankOptions
	now      func() time.Time
}

// NewStore creates a Store backed by the given database. Candidates are
// drawn from caps.
func NewStore(database *db.DB, caps CapabilityLister) *Store {
	return &Store{db: database, caps: caps, defaults: DefaultRankOptions, now: time.Now}
}

// SetDefaults replaces the options used for zero-valued RankOptions fields.
func (s *Store) SetDefaults(opts RankOptions) {
	if opts.MinMatchPercent <= 0 {
		opts.MinMatchPercent = DefaultRankOptions.MinMatchPercent
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultRankOptions.MaxCandidates
	}
	if opts.BusyThreshold <= 0 {
		opts.BusyThreshold = DefaultRankOptions.BusyThreshold
	}
	s.defaults = opts
}

// Delegate creates a pending delegation. Without an explicit target the
// top-ranked candidate (excluding the delegator and busy personas) is
// chosen; errs.ErrNoCandidate is returned when none qualifies.
func (s *Store) Delegate(ctx context.Context, req DelegateRequest) (*Delegation, error) {
	if strings.TrimSpace(req.FromPersona) == "" {
		return nil, errs.Validation("delegation requires a delegating persona")
	}
	if strings.TrimSpace(req.TaskDescription) == "" {
		return nil, errs.Validation("delegation requires a task description")
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, errs.Validation("invalid priority %q: must be one of low, medium, high, urgent", req.Priority)
	}
	required := stringset.Normalize(req.RequiredCapabilities)
	if len(required) == 0 {
		return nil, errs.Validation("delegation requires at least one capability")
	}

	target := strings.TrimSpace(req.ToPersona)
	if target == "" {
		ranked, err := s.RankCandidates(ctx, required, []string{req.FromPersona}, RankOptions{ExcludeBusy: true})
		if err != nil {
			return nil, err
		}
		if len(ranked) == 0 {
			return nil, fmt.Errorf("%w for %s", errs.ErrNoCandidate, strings.Join(required, ", "))
		}
		target = ranked[0].PersonaID
	}

	now := s.now().UTC()
	d := &Delegation{
		ID:                   uuid.NewString(),
		FromPersona:          req.FromPersona,
		ToPersona:            target,
		TaskDescription:      req.TaskDescription,
		RequiredCapabilities: required,
		Priority:             req.Priority,
		Status:               StatusPending,
		Metadata:             req.Metadata,
		ScheduledAt:          req.ScheduledAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	reqJSON, err := json.Marshal(d.RequiredCapabilities)
	if err != nil {
		return nil, fmt.Errorf("marshalling required capabilities: %w", err)
	}
	meta, err := marshalMetadata(d.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO delegations (
			id, from_persona, to_persona, task_description, required_capabilities,
			priority, status, metadata, scheduled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.FromPersona, d.ToPersona, d.TaskDescription, string(reqJSON),
		string(d.Priority), string(d.Status), meta, db.NullTime(d.ScheduledAt),
		db.FormatTime(now), db.FormatTime(now),
	)
	if err != nil {
		return nil, errs.Storage("creating delegation", err)
	}
	return d, nil
}

// Get retrieves a delegation by id.
func (s *Store) Get(ctx context.Context, id string) (*Delegation, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	d, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("delegation %q", id)
	}
	if err != nil {
		return nil, errs.Storage("reading delegation", err)
	}
	return d, nil
}

// List returns delegations matching the filter, newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Delegation, error) {
	query := selectColumns + ` WHERE 1=1`
	var args []any
	if f.FromPersona != "" {
		query += ` AND from_persona = ?`
		args = append(args, f.FromPersona)
	}
	if f.ToPersona != "" {
		query += ` AND to_persona = ?`
		args = append(args, f.ToPersona)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage("listing delegations", err)
	}
	defer rows.Close()

	var out []Delegation
	for rows.Next() {
		d, err := scanInto(rows)
		if err != nil {
			return nil, errs.Storage("scanning delegation", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("listing delegations", err)
	}
	return out, nil
}

// GetStatus reports a delegation's status and progress. Progress is the
// larger of the status baseline and any reported progress_percentage.
func (s *Store) GetStatus(ctx context.Context, id string) (*StatusReport, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return statusOf(d), nil
}

func statusOf(d *Delegation) *StatusReport {
	rep := &StatusReport{ID: d.ID, Status: d.Status, Progress: baselineProgress[d.Status]}
	if pct, ok := metaProgress(d.Metadata); ok && pct > rep.Progress {
		rep.Progress = pct
	}
	if step, ok := d.Metadata[MetaCurrentStep].(string); ok {
		rep.CurrentStep = step
	}
	return rep
}

func metaProgress(meta map[string]any) (int, bool) {
	var v float64
	switch t := meta[MetaProgress].(type) {
	case float64:
		v = t
	case int:
		v = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	return int(math.Max(0, math.Min(100, math.Round(v)))), true
}

// Transition moves a delegation to a new status. Moves the state machine
// does not allow, including any move out of a terminal status, fail with
// errs.ErrInvalidTransition. Entering in_progress stamps started_at; entering
// a terminal status stamps completed_at. A non-empty result is stored.
func (s *Store) Transition(ctx context.Context, id string, to Status, result json.RawMessage) (*Delegation, error) {
	if !to.Valid() {
		return nil, errs.Validation("invalid status %q", to)
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(d.Status, to) {
		return nil, errs.InvalidTransition("delegation %q cannot move from %s to %s", id, d.Status, to)
	}
	if len(result) > 0 && !json.Valid(result) {
		return nil, errs.Validation("result is not valid JSON")
	}

	now := s.now().UTC()
	started := d.StartedAt
	completed := d.CompletedAt
	if to == StatusInProgress && started == nil {
		started = &now
	}
	if to.Terminal() {
		completed = &now
	}
	res := sql.NullString{}
	if len(result) > 0 {
		res = sql.NullString{String: string(result), Valid: true}
	} else if len(d.Result) > 0 {
		res = sql.NullString{String: string(d.Result), Valid: true}
	}

	// The status guard makes a concurrent transition lose instead of
	// overwriting.
	out, err := s.db.ExecContext(ctx, `
		UPDATE delegations
		SET status = ?, result = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), res, db.NullTime(started), db.NullTime(completed), db.FormatTime(now),
		id, string(d.Status),
	)
	if err != nil {
		return nil, errs.Storage("updating delegation status", err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return nil, errs.InvalidTransition("delegation %q changed status concurrently", id)
	}
	return s.Get(ctx, id)
}

// UpdateProgress records progress on a delegation that has not finished.
func (s *Store) UpdateProgress(ctx context.Context, id string, percent int, step string) (*StatusReport, error) {
	if percent < 0 || percent > 100 {
		return nil, errs.Validation("progress %d outside 0-100", percent)
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status.Terminal() {
		return nil, errs.InvalidTransition("delegation %q is %s", id, d.Status)
	}

	meta := make(map[string]any, len(d.Metadata)+2)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	meta[MetaProgress] = float64(percent)
	if step != "" {
		meta[MetaCurrentStep] = step
	}
	raw, err := marshalMetadata(meta)
	if err != nil {
		return nil, err
	}

	out, err := s.db.ExecContext(ctx, `
		UPDATE delegations SET metadata = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		raw, db.FormatTime(s.now()), id, string(d.Status),
	)
	if err != nil {
		return nil, errs.Storage("updating delegation progress", err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return nil, errs.InvalidTransition("delegation %q changed status concurrently", id)
	}
	d.Metadata = meta
	return statusOf(d), nil
}

// openLoad counts open delegations addressed to each persona.
func (s *Store) openLoad(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_persona, COUNT(*) FROM delegations
		WHERE status IN ('pending', 'accepted', 'in_progress')
		GROUP BY to_persona`)
	if err != nil {
		return nil, errs.Storage("counting open delegations", err)
	}
	defer rows.Close()

	load := make(map[string]int)
	for rows.Next() {
		var persona string
		var n int
		if err := rows.Scan(&persona, &n); err != nil {
			return nil, errs.Storage("scanning delegation load", err)
		}
		load[persona] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("counting open delegations", err)
	}
	return load, nil
}

func marshalMetadata(meta map[string]any) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, errs.Validation("metadata is not serializable: %v", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

const selectColumns = `
	SELECT id, from_persona, to_persona, task_description, required_capabilities,
	       priority, status, result, metadata, scheduled_at, started_at,
	       completed_at, created_at, updated_at
	FROM delegations`

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Delegation, error) {
	var (
		d                             Delegation
		required, priority, status    string
		result, meta                  sql.NullString
		scheduled, started, completed sql.NullString
		createdAt, updatedAt          string
	)
	if err := sc.Scan(&d.ID, &d.FromPersona, &d.ToPersona, &d.TaskDescription, &required,
		&priority, &status, &result, &meta, &scheduled, &started,
		&completed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(required), &d.RequiredCapabilities); err != nil {
		return nil, fmt.Errorf("decoding required capabilities: %w", err)
	}
	if d.RequiredCapabilities == nil {
		d.RequiredCapabilities = []string{}
	}
	if result.Valid {
		d.Result = json.RawMessage(result.String)
	}
	if meta.Valid {
		if err := json.Unmarshal([]byte(meta.String), &d.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	d.Priority = Priority(priority)
	d.Status = Status(status)
	d.ScheduledAt = db.ScanTime(scheduled)
	d.StartedAt = db.ScanTime(started)
	d.CompletedAt = db.ScanTime(completed)
	d.CreatedAt = db.ParseTime(createdAt)
	d.UpdatedAt = db.ParseTime(updatedAt)
	return &d, nil
}

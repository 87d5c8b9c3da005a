package audit

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
)

// Store appends and reads merge audit entries. There is no update or delete
// path.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// Log appends an entry outside of any transaction.
func (s *Store) Log(ctx context.Context, entry Entry) (*Entry, error) {
	return s.LogTx(ctx, s.db, entry)
}

// LogTx appends an entry through q, typically the merge transaction. A UUID
// is generated when entry.ID is empty; CreatedAt and IntegrityHash are always
// set here.
func (s *Store) LogTx(ctx context.Context, q db.Querier, entry Entry) (*Entry, error) {
	if strings.TrimSpace(entry.PrimaryPersona) == "" {
		return nil, errs.Validation("audit entry requires a primary persona")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.SecondaryPersonas = orEmpty(entry.SecondaryPersonas)
	entry.CapabilityDiff.Added = orEmpty(entry.CapabilityDiff.Added)
	entry.CapabilityDiff.Removed = orEmpty(entry.CapabilityDiff.Removed)
	entry.PermissionDiff.Granted = orEmpty(entry.PermissionDiff.Granted)
	entry.CreatedAt = s.now().UTC()

	hash, err := ComputeHash(entry)
	if err != nil {
		return nil, err
	}
	entry.IntegrityHash = hash

	secondary, err := json.Marshal(entry.SecondaryPersonas)
	if err != nil {
		return nil, fmt.Errorf("marshalling secondary personas: %w", err)
	}
	capDiff, err := json.Marshal(entry.CapabilityDiff)
	if err != nil {
		return nil, fmt.Errorf("marshalling capability diff: %w", err)
	}
	permDiff, err := json.Marshal(entry.PermissionDiff)
	if err != nil {
		return nil, fmt.Errorf("marshalling permission diff: %w", err)
	}
	var operator sql.NullString
	if entry.OperatorID != "" {
		operator = sql.NullString{String: entry.OperatorID, Valid: true}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO merge_audit (
			id, primary_persona, secondary_personas, merge_strategy,
			capability_diff, permission_diff, history_access_granted,
			operator_id, integrity_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.PrimaryPersona,
		string(secondary),
		entry.MergeStrategy,
		string(capDiff),
		string(permDiff),
		entry.HistoryAccessGranted,
		operator,
		entry.IntegrityHash,
		db.FormatTime(entry.CreatedAt),
	)
	if err != nil {
		return nil, errs.Storage("inserting merge audit entry", err)
	}
	return &entry, nil
}

// GetByID retrieves a single audit entry.
func (s *Store) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	e, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("merge audit entry %q", id)
	}
	if err != nil {
		return nil, errs.Storage("reading merge audit entry", err)
	}
	return e, nil
}

// QueryFilter controls which audit entries are returned by Query.
type QueryFilter struct {
	PrimaryPersona   string
	SecondaryPersona string
	MergeStrategy    string
	OperatorID       string
	Since            *time.Time
	Until            *time.Time
	Limit            int
	Offset           int
}

// Query returns audit entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.PrimaryPersona != "" {
		clauses = append(clauses, "primary_persona = ?")
		args = append(args, filter.PrimaryPersona)
	}
	if filter.SecondaryPersona != "" {
		// JSON array stored as text; match the quoted element.
		clauses = append(clauses, "secondary_personas LIKE ?")
		args = append(args, `%"`+filter.SecondaryPersona+`"%`)
	}
	if filter.MergeStrategy != "" {
		clauses = append(clauses, "merge_strategy = ?")
		args = append(args, filter.MergeStrategy)
	}
	if filter.OperatorID != "" {
		clauses = append(clauses, "operator_id = ?")
		args = append(args, filter.OperatorID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, db.FormatTime(*filter.Since))
	}
	if filter.Until != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, db.FormatTime(*filter.Until))
	}

	query := selectColumns
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage("querying merge audit entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanInto(rows)
		if err != nil {
			return nil, errs.Storage("scanning merge audit entry", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("querying merge audit entries", err)
	}
	return entries, nil
}

// Verify recomputes an entry's hash and compares it with the stored one.
func (s *Store) Verify(ctx context.Context, id string) (*Verification, error) {
	e, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	computed, err := ComputeHash(*e)
	if err != nil {
		return nil, err
	}
	return &Verification{
		ID:       e.ID,
		Valid:    computed == e.IntegrityHash,
		Stored:   e.IntegrityHash,
		Computed: computed,
	}, nil
}

const selectColumns = `
	SELECT id, primary_persona, secondary_personas, merge_strategy,
	       capability_diff, permission_diff, history_access_granted,
	       operator_id, integrity_hash, created_at
	FROM merge_audit`

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Entry, error) {
	var (
		e                            Entry
		secondary, capDiff, permDiff string
		operator                     sql.NullString
		createdAt                    string
	)

	err := sc.Scan(
		&e.ID, &e.PrimaryPersona, &secondary, &e.MergeStrategy,
		&capDiff, &permDiff, &e.HistoryAccessGranted,
		&operator, &e.IntegrityHash, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(secondary), &e.SecondaryPersonas); err != nil {
		return nil, fmt.Errorf("decoding secondary personas: %w", err)
	}
	if err := json.Unmarshal([]byte(capDiff), &e.CapabilityDiff); err != nil {
		return nil, fmt.Errorf("decoding capability diff: %w", err)
	}
	if err := json.Unmarshal([]byte(permDiff), &e.PermissionDiff); err != nil {
		return nil, fmt.Errorf("decoding permission diff: %w", err)
	}
	e.SecondaryPersonas = orEmpty(e.SecondaryPersonas)
	e.CapabilityDiff.Added = orEmpty(e.CapabilityDiff.Added)
	e.CapabilityDiff.Removed = orEmpty(e.CapabilityDiff.Removed)
	e.PermissionDiff.Granted = orEmpty(e.PermissionDiff.Granted)
	if operator.Valid {
		e.OperatorID = operator.String
	}
	e.CreatedAt = db.ParseTime(createdAt)
	return &e, nil
}

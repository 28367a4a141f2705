package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Snapshot and rule persistence.
 *
 * Snapshots are append-only: every committed change cycle may write one
 * row, keyed by a UUIDv7 snapshot id so insertion order and row id order
 * agree. State is stored as a JSON document rather than unpacked into
 * columns, since the field set is schema-driven and varies per form.
 *
 * Rules persist the same way (one JSON document per rule, keyed by form
 * and rule name) so a form can be rebuilt from the database alone.
 */

// ErrSnapshotNotFound is returned when a form has no stored snapshots.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotRecord is one stored form-state snapshot.
type SnapshotRecord struct {
	ID        types.SnapshotID `db:"snapshot_id"`
	FormID    string           `db:"form_id"`
	State     types.FormState  `db:"-"`
	StateJSON []byte           `db:"state"`
	CreatedAt time.Time        `db:"created_at"`
}

// Store persists rule definitions and form-state snapshots.
type Store struct {
	db      *sqlx.DB
	queries *Queries
}

// New wraps an open database handle. The caller runs migrations first.
func New(db *sqlx.DB) (*Store, error) {
	queries, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, queries: queries}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot stores one committed form state and returns its id.
func (s *Store) SaveSnapshot(ctx context.Context, formID string, state types.FormState) (types.SnapshotID, error) {
	encoded, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot state: %w", err)
	}

	id := types.NewSnapshotID()
	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := s.queries.Exec("insert-snapshot", string(id), formID, string(encoded), now); err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return id, nil
}

// LatestSnapshot returns the most recent snapshot for a form, or
// ErrSnapshotNotFound when none exist.
func (s *Store) LatestSnapshot(ctx context.Context, formID string) (*SnapshotRecord, error) {
	var row struct {
		ID        string `db:"snapshot_id"`
		FormID    string `db:"form_id"`
		State     []byte `db:"state"`
		CreatedAt string `db:"created_at"`
	}

	if err := s.queries.Get("get-latest-snapshot", &row, formID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	return decodeSnapshot(row.ID, row.FormID, row.State, row.CreatedAt)
}

// ListSnapshots returns a form's snapshots, newest first, up to limit.
func (s *Store) ListSnapshots(ctx context.Context, formID string, limit int) ([]*SnapshotRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []struct {
		ID        string `db:"snapshot_id"`
		FormID    string `db:"form_id"`
		State     []byte `db:"state"`
		CreatedAt string `db:"created_at"`
	}

	if err := s.queries.Select("list-snapshots", &rows, formID, limit); err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}

	records := make([]*SnapshotRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeSnapshot(row.ID, row.FormID, row.State, row.CreatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// SaveRule upserts one rule definition for a form.
func (s *Store) SaveRule(ctx context.Context, formID string, rule types.RuleDefinition) error {
	encoded, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %q: %w", rule.Name, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	// Portable upsert: delete-then-insert inside a transaction, since
	// sqlite and postgres spell ON CONFLICT targets differently across
	// the versions we support.
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec(tx.Rebind("DELETE FROM rules WHERE form_id = ? AND rule_name = ?"), formID, rule.Name); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to replace rule %q: %w", rule.Name, err)
	}
	if _, err := tx.Exec(
		tx.Rebind("INSERT INTO rules (form_id, rule_name, definition, updated_at) VALUES (?, ?, ?, ?)"),
		formID, rule.Name, string(encoded), now,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert rule %q: %w", rule.Name, err)
	}

	return tx.Commit()
}

// LoadRules returns every stored rule definition for a form, ordered by
// rule name.
func (s *Store) LoadRules(ctx context.Context, formID string) ([]types.RuleDefinition, error) {
	var rows []struct {
		RuleName   string `db:"rule_name"`
		Definition []byte `db:"definition"`
	}

	if err := s.queries.Select("list-rules", &rows, formID); err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	out := make([]types.RuleDefinition, 0, len(rows))
	for _, row := range rows {
		var rule types.RuleDefinition
		if err := json.Unmarshal(row.Definition, &rule); err != nil {
			return nil, fmt.Errorf("failed to decode rule %q: %w", row.RuleName, err)
		}
		out = append(out, rule)
	}

	return out, nil
}

// DeleteRule removes one stored rule. Unknown names are a no-op.
func (s *Store) DeleteRule(ctx context.Context, formID, ruleName string) error {
	if _, err := s.queries.Exec("delete-rule", formID, ruleName); err != nil {
		return fmt.Errorf("failed to delete rule %q: %w", ruleName, err)
	}
	return nil
}

func decodeSnapshot(id, formID string, state []byte, createdAt string) (*SnapshotRecord, error) {
	snapshotID, err := types.ParseSnapshotID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot id %q: %w", id, err)
	}

	var decoded types.FormState
	if err := json.Unmarshal(state, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}

	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot timestamp %q: %w", createdAt, err)
	}

	return &SnapshotRecord{
		ID:        snapshotID,
		FormID:    formID,
		State:     decoded,
		StateJSON: state,
		CreatedAt: ts,
	}, nil
}

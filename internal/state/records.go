package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/lineagekit/pkg/core"
)

const (
	roleInput  = "input"
	roleOutput = "output"
)

// Record is one stored lineage emission.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	core.Metadata
}

// SaveRecord stores the metadata as a new record.
func (s *Store) SaveRecord(ctx context.Context, md *core.Metadata) (*Record, error) {
	if md == nil || md.Name == "" {
		return nil, errors.New("metadata name is required")
	}

	rec := &Record{
		ID:       uuid.New().String(),
		Metadata: *md,
	}
	created := s.now()
	rec.CreatedAt, _ = parseTime(created)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO lineage_records (id, task_name, source_type, source_name, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, md.Name, md.SourceType.String(), md.SourceName, md.Location, created,
	); err != nil {
		return nil, fmt.Errorf("failed to insert lineage record: %w", err)
	}

	for role, refs := range map[string][]core.TableRef{roleInput: md.Inputs, roleOutput: md.Outputs} {
		for i, ref := range refs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO lineage_tables (record_id, role, position, catalog, schema_name, name)
				VALUES (?, ?, ?, ?, ?, ?)`,
				rec.ID, role, i, ref.Catalog, ref.Schema, ref.Name,
			); err != nil {
				return nil, fmt.Errorf("failed to insert %s table %s: %w", role, ref, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit lineage record: %w", err)
	}

	s.logger.Debug("stored lineage record", "id", rec.ID, "task", md.Name)
	return rec, nil
}

// GetRecord returns one record by id.
func (s *Store) GetRecord(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_name, source_type, source_name, location, created_at
		FROM lineage_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "lineage record", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadTables(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// History returns the newest records for a task, at most limit of them
// (all when limit <= 0).
func (s *Store) History(ctx context.Context, taskName string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_name, source_type, source_name, location, created_at
		FROM lineage_records WHERE task_name = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, taskName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	_ = rows.Close()

	for _, rec := range records {
		if err := s.loadTables(ctx, rec); err != nil {
			return nil, err
		}
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec        Record
		sourceType string
		created    string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &sourceType, &rec.SourceName, &rec.Location, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan lineage record: %w", err)
	}

	st, err := core.ParseSourceType(sourceType)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rec.SourceType = st
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func (s *Store) loadTables(ctx context.Context, rec *Record) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, catalog, schema_name, name FROM lineage_tables
		WHERE record_id = ? ORDER BY role, position`, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to load tables of record %s: %w", rec.ID, err)
	}
	defer func() { _ = rows.Close() }()

	rec.Inputs = []core.TableRef{}
	rec.Outputs = []core.TableRef{}
	for rows.Next() {
		var role string
		var ref core.TableRef
		if err := rows.Scan(&role, &ref.Catalog, &ref.Schema, &ref.Name); err != nil {
			return fmt.Errorf("failed to scan table: %w", err)
		}
		if role == roleInput {
			rec.Inputs = append(rec.Inputs, ref)
		} else {
			rec.Outputs = append(rec.Outputs, ref)
		}
	}
	return rows.Err()
}

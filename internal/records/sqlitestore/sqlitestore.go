// Package sqlitestore provides the embedded SQLite implementation of
// records.Store used on offline field devices. The encrypted blob and
// its plaintext mirror columns live in one row, so a single statement
// always changes them together.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
	"github.com/linnemanlabs/fieldtriage/internal/records"
)

//go:embed schema.sql
var schema string

const columns = `id, encrypted_data, created_at, last_updated, priority_urgency, status, revision`

// Store persists encrypted records in a local SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path. WAL mode keeps
// readers usable while a write is in flight; the busy timeout covers
// the brief writer lock.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer; extra pooled connections only produce
	// busy errors.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Init applies the schema. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Get retrieves a record by id.
func (s *Store) Get(ctx context.Context, id string) (*records.EncryptedRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM patient_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Insert adds a new record at revision 1. An existing id is never
// overwritten.
func (s *Store) Insert(ctx context.Context, rec *records.EncryptedRecord) error {
	lastUpdated := rec.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO patient_records (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, 1)`,
		rec.ID, rec.EncryptedData, rec.Timestamp, lastUpdated, rec.PriorityUrgency, string(rec.Status),
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return records.ErrAlreadyExists
		}
		return fmt.Errorf("insert record: %w", err)
	}
	rec.Revision = 1
	rec.LastUpdated = lastUpdated
	return nil
}

// Update replaces the row if the expected revision still matches. Blob
// and mirror columns change in the same statement.
func (s *Store) Update(ctx context.Context, rec *records.EncryptedRecord, expectedRevision int64) error {
	lastUpdated := rec.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE patient_records
		 SET encrypted_data = ?, last_updated = ?, priority_urgency = ?, status = ?, revision = revision + 1
		 WHERE id = ? AND revision = ?`,
		rec.EncryptedData, lastUpdated, rec.PriorityUrgency, string(rec.Status),
		rec.ID, expectedRevision,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record: rows affected: %w", err)
	}
	if affected == 0 {
		return records.ErrConflict
	}
	rec.Revision = expectedRevision + 1
	rec.LastUpdated = lastUpdated
	return nil
}

// Delete removes a record, reporting whether it was present.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM patient_records WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record: rows affected: %w", err)
	}
	return affected > 0, nil
}

// List returns every record, urgency ascending then creation ascending.
func (s *Store) List(ctx context.Context) ([]*records.EncryptedRecord, error) {
	return s.query(ctx,
		`SELECT `+columns+` FROM patient_records ORDER BY priority_urgency, created_at`)
}

// ListByStatus returns records with the given status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status patient.Status) ([]*records.EncryptedRecord, error) {
	return s.query(ctx,
		`SELECT `+columns+` FROM patient_records WHERE status = ? ORDER BY created_at`, string(status))
}

// ListByPriority returns records with the given urgency, oldest first.
func (s *Store) ListByPriority(ctx context.Context, urgency int) ([]*records.EncryptedRecord, error) {
	return s.query(ctx,
		`SELECT `+columns+` FROM patient_records WHERE priority_urgency = ? ORDER BY created_at`, urgency)
}

// Stats aggregates counts and blob bytes from index columns only; the
// ciphertext is never read back for this.
func (s *Store) Stats(ctx context.Context) (*records.StoreStats, error) {
	stats := &records.StoreStats{
		ByStatus:  make(map[patient.Status]int),
		ByUrgency: make(map[int]int),
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(encrypted_data)), 0) FROM patient_records`)
	if err := row.Scan(&stats.Total, &stats.BlobBytes); err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM patient_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[patient.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	urows, err := s.db.QueryContext(ctx,
		`SELECT priority_urgency, COUNT(*) FROM patient_records GROUP BY priority_urgency`)
	if err != nil {
		return nil, fmt.Errorf("stats by urgency: %w", err)
	}
	defer urows.Close()
	for urows.Next() {
		var urgency, n int
		if err := urows.Scan(&urgency, &n); err != nil {
			return nil, fmt.Errorf("scan urgency count: %w", err)
		}
		stats.ByUrgency[urgency] = n
	}
	if err := urows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urgency counts: %w", err)
	}

	return stats, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*records.EncryptedRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []*records.EncryptedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*records.EncryptedRecord, error) {
	var (
		rec    records.EncryptedRecord
		status string
	)
	err := row.Scan(
		&rec.ID, &rec.EncryptedData, &rec.Timestamp, &rec.LastUpdated,
		&rec.PriorityUrgency, &status, &rec.Revision,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	rec.Status = patient.Status(status)
	return &rec, nil
}

// Package pgstore provides a PostgreSQL implementation of
// records.Store for fixed-site deployments (hospitals, command posts)
// where several devices share one database.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
	"github.com/linnemanlabs/fieldtriage/internal/records"
)

var tracer = otel.Tracer("github.com/linnemanlabs/fieldtriage/internal/records/pgstore")

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

const recordColumns = `id, encrypted_data, created_at, last_updated, priority_urgency, status, revision`

// Store persists encrypted records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init applies the schema. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Get retrieves a record by id.
func (s *Store) Get(ctx context.Context, id string) (*records.EncryptedRecord, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM patient_records WHERE id = $1`
	rec, err := scanRecordRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// Insert adds a new record at revision 1. An existing id is never
// overwritten.
func (s *Store) Insert(ctx context.Context, rec *records.EncryptedRecord) error {
	ctx, span := tracer.Start(ctx, "pgstore.Insert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	lastUpdated := rec.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO patient_records (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5, $6, 1)`,
		rec.ID, rec.EncryptedData, rec.Timestamp, lastUpdated, rec.PriorityUrgency, string(rec.Status),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return records.ErrAlreadyExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert record: %w", err)
	}
	rec.Revision = 1
	rec.LastUpdated = lastUpdated
	return nil
}

// Update replaces the row if the expected revision still matches. Blob
// and mirror columns change in the same statement.
func (s *Store) Update(ctx context.Context, rec *records.EncryptedRecord, expectedRevision int64) error {
	ctx, span := tracer.Start(ctx, "pgstore.Update", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	lastUpdated := rec.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE patient_records
		 SET encrypted_data = $1, last_updated = $2, priority_urgency = $3, status = $4, revision = revision + 1
		 WHERE id = $5 AND revision = $6`,
		rec.EncryptedData, lastUpdated, rec.PriorityUrgency, string(rec.Status),
		rec.ID, expectedRevision,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return records.ErrConflict
	}
	rec.Revision = expectedRevision + 1
	rec.LastUpdated = lastUpdated
	return nil
}

// Delete removes a record, reporting whether it was present.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Delete", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "DELETE"),
	))
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM patient_records WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("delete record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns every record, urgency ascending then creation ascending.
func (s *Store) List(ctx context.Context) ([]*records.EncryptedRecord, error) {
	return s.query(ctx, "pgstore.List",
		`SELECT `+recordColumns+` FROM patient_records ORDER BY priority_urgency, created_at`)
}

// ListByStatus returns records with the given status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status patient.Status) ([]*records.EncryptedRecord, error) {
	return s.query(ctx, "pgstore.ListByStatus",
		`SELECT `+recordColumns+` FROM patient_records WHERE status = $1 ORDER BY created_at`, string(status))
}

// ListByPriority returns records with the given urgency, oldest first.
func (s *Store) ListByPriority(ctx context.Context, urgency int) ([]*records.EncryptedRecord, error) {
	return s.query(ctx, "pgstore.ListByPriority",
		`SELECT `+recordColumns+` FROM patient_records WHERE priority_urgency = $1 ORDER BY created_at`, urgency)
}

// Stats aggregates counts and blob bytes from index columns only.
func (s *Store) Stats(ctx context.Context) (*records.StoreStats, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Stats", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	stats := &records.StoreStats{
		ByStatus:  make(map[patient.Status]int),
		ByUrgency: make(map[int]int),
	}

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(encrypted_data)), 0) FROM patient_records`,
	).Scan(&stats.Total, &stats.BlobBytes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("stats totals: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT status, priority_urgency, COUNT(*) FROM patient_records GROUP BY status, priority_urgency`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("stats breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status  string
			urgency int
			n       int
		)
		if err := rows.Scan(&status, &urgency, &n); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats.ByStatus[patient.Status(status)] += n
		stats.ByUrgency[urgency] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats rows: %w", err)
	}

	return stats, nil
}

func (s *Store) query(ctx context.Context, spanName, q string, args ...any) ([]*records.EncryptedRecord, error) {
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []*records.EncryptedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// scanRecordRow scans a single row. Returns (nil, nil) when no row is
// found.
func scanRecordRow(row pgx.Row) (*records.EncryptedRecord, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func scanRecord(row pgx.Row) (*records.EncryptedRecord, error) {
	var (
		rec    records.EncryptedRecord
		status string
	)
	err := row.Scan(
		&rec.ID, &rec.EncryptedData, &rec.Timestamp, &rec.LastUpdated,
		&rec.PriorityUrgency, &status, &rec.Revision,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	rec.Status = patient.Status(status)
	return &rec, nil
}

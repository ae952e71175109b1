package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
	"github.com/linnemanlabs/fieldtriage/internal/seal"
	"github.com/linnemanlabs/fieldtriage/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/fieldtriage/internal/records")

func recordSpanErr(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// ErrNotFound means the requested record id is absent. It is distinct
// from a decryption failure, which means the record is present but
// unreadable.
var ErrNotFound = errors.New("record not found")

// perRecordOverhead is the fixed per-record byte estimate added on top
// of ciphertext length in storage stats (row metadata and indexes).
const perRecordOverhead = 256

// Service is the business boundary for patient records. Every
// operation is independently atomic; there is no cross-step rollback.
type Service struct {
	store   Store
	sealer  *seal.Service
	logger  log.Logger
	metrics *Metrics
}

// NewService creates a record service. Metrics may be nil.
func NewService(store Store, sealer *seal.Service, logger log.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:   store,
		sealer:  sealer,
		logger:  logger,
		metrics: metrics,
	}
}

// Create builds a new record from the input, assesses its priority,
// seals it, and persists it. On any failure nothing is persisted and
// no id is returned.
func (s *Service) Create(ctx context.Context, in CreateInput) (id string, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp("create", start, err) }()

	ctx, span := tracer.Start(ctx, "records.create")
	defer span.End()
	defer func() { recordSpanErr(span, err) }()

	now := time.Now().UTC()
	rec := &patient.Record{
		ID:          s.sealer.NewID(),
		AgeGroup:    in.AgeGroup,
		Vitals:      in.Vitals.Clone(),
		Mobility:    in.Mobility,
		Injuries:    in.Injuries,
		Notes:       in.Notes,
		Timestamp:   now,
		LastUpdated: now,
		Priority:    patient.PriorityFor(patient.LevelYellow), // placeholder until assessed
		Status:      patient.StatusActive,
	}
	if rec.Injuries == nil {
		rec.Injuries = []string{}
	}

	assessment := triage.Assess(rec)
	rec.Priority = assessment.Priority
	span.SetAttributes(
		attribute.String("triage.priority", string(rec.Priority.Level)),
		attribute.String("triage.rule", assessment.Reasoning),
	)

	blob, err := s.sealer.Encrypt(rec)
	if err != nil {
		return "", fmt.Errorf("seal record: %w", err)
	}
	s.metrics.observeRecordBytes(len(blob))

	enc := &EncryptedRecord{
		ID:              rec.ID,
		EncryptedData:   blob,
		Timestamp:       rec.Timestamp,
		LastUpdated:     rec.LastUpdated,
		PriorityUrgency: rec.Priority.Urgency,
		Status:          rec.Status,
	}
	if err := s.store.Insert(ctx, enc); err != nil {
		return "", fmt.Errorf("persist record: %w", err)
	}

	s.metrics.incCreate(string(rec.Priority.Level))
	s.logger.Info(ctx, "record created",
		"record_id", rec.ID,
		"priority", rec.Priority.Level,
		"reasoning", assessment.Reasoning,
	)
	return rec.ID, nil
}

// Get fetches and unseals one record. Absence is reported via ok=false
// with a nil error; a decryption failure is an error and leaves the
// stored blob untouched.
func (s *Service) Get(ctx context.Context, id string) (rec *patient.Record, ok bool, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp("get", start, err) }()

	enc, found, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	rec, err = s.sealer.Decrypt(enc.EncryptedData)
	if err != nil {
		s.metrics.incDecryptFailure()
		return nil, false, fmt.Errorf("record %s: %w", id, err)
	}
	return rec, true, nil
}

// Update applies an explicit tagged patch to a record: shallow merge of
// top-level fields, deep merge of vitals. Priority is recomputed only
// when the patch touches vitals or mobility; every update bumps
// lastUpdated. The id and creation timestamp are preserved regardless
// of payload. A concurrent writer surfaces as ErrConflict.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (rec *patient.Record, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp("update", start, err) }()

	ctx, span := tracer.Start(ctx, "records.update", trace.WithAttributes(
		attribute.String("record.id", id),
		attribute.Bool("triage.recompute", req.TouchesTriageInputs()),
	))
	defer span.End()
	defer func() { recordSpanErr(span, err) }()

	enc, found, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}

	current, err := s.sealer.Decrypt(enc.EncryptedData)
	if err != nil {
		s.metrics.incDecryptFailure()
		return nil, fmt.Errorf("record %s: %w", id, err)
	}

	next := current.Clone()
	applyUpdate(next, req)

	// Identity and creation instant are immutable.
	next.ID = current.ID
	next.Timestamp = current.Timestamp

	now := time.Now().UTC()
	if !now.After(current.LastUpdated) {
		now = current.LastUpdated.Add(time.Millisecond)
	}
	next.LastUpdated = now

	if req.TouchesTriageInputs() {
		next.Priority = triage.RecalculatePriority(next)
	}

	blob, err := s.sealer.Encrypt(next)
	if err != nil {
		return nil, fmt.Errorf("seal record: %w", err)
	}
	s.metrics.observeRecordBytes(len(blob))

	updated := &EncryptedRecord{
		ID:              next.ID,
		EncryptedData:   blob,
		Timestamp:       next.Timestamp,
		LastUpdated:     next.LastUpdated,
		PriorityUrgency: next.Priority.Urgency,
		Status:          next.Status,
	}
	if err := s.store.Update(ctx, updated, enc.Revision); err != nil {
		return nil, fmt.Errorf("persist record %s: %w", id, err)
	}

	s.logger.Info(ctx, "record updated",
		"record_id", id,
		"recomputed", req.TouchesTriageInputs(),
		"priority", next.Priority.Level,
		"status", next.Status,
	)
	return next, nil
}

func applyUpdate(r *patient.Record, req UpdateRequest) {
	if req.AgeGroup != nil {
		r.AgeGroup = *req.AgeGroup
	}
	if req.Vitals != nil {
		req.Vitals.Apply(&r.Vitals)
	}
	if req.ClearMobility {
		r.Mobility = nil
	} else if req.Mobility != nil {
		m := *req.Mobility
		r.Mobility = &m
	}
	if req.Injuries != nil {
		r.Injuries = append([]string(nil), (*req.Injuries)...)
	}
	if req.Notes != nil {
		r.Notes = *req.Notes
	}
	if req.Status != nil {
		// Transition legality is caller policy; the service persists
		// whatever status it is handed.
		r.Status = *req.Status
	}
}

// Delete hard-deletes a record and verifies it is gone.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp("delete", start, err) }()

	found, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}

	// Post-condition check: the row must actually be gone.
	if _, still, err := s.store.Get(ctx, id); err != nil {
		return fmt.Errorf("verify delete %s: %w", id, err)
	} else if still {
		return fmt.Errorf("verify delete %s: record still present", id)
	}

	s.logger.Info(ctx, "record deleted", "record_id", id)
	return nil
}

// List returns all records, most urgent first. Records that fail to
// decrypt are logged, counted, and skipped; one bad blob never hides
// the rest of the board.
func (s *Service) List(ctx context.Context) (out []*patient.Record, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp("list", start, err) }()

	encs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.decryptAll(ctx, encs), nil
}

// ByStatus returns records with the given status, oldest first.
func (s *Service) ByStatus(ctx context.Context, status patient.Status) (out []*patient.Record, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp("by_status", start, err) }()

	encs, err := s.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	return s.decryptAll(ctx, encs), nil
}

// ByPriority returns records with the given priority level, oldest
// first.
func (s *Service) ByPriority(ctx context.Context, level patient.Level) (out []*patient.Record, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp("by_priority", start, err) }()

	encs, err := s.store.ListByPriority(ctx, patient.PriorityFor(level).Urgency)
	if err != nil {
		return nil, err
	}
	return s.decryptAll(ctx, encs), nil
}

func (s *Service) decryptAll(ctx context.Context, encs []*EncryptedRecord) []*patient.Record {
	out := make([]*patient.Record, 0, len(encs))
	for _, enc := range encs {
		rec, err := s.sealer.Decrypt(enc.EncryptedData)
		if err != nil {
			s.metrics.incDecryptFailure()
			s.logger.Error(ctx, err, "skipping unreadable record", "record_id", enc.ID)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// BulkSetStatus sets the status on each id independently. One failure
// never halts the batch; the result carries per-id errors.
func (s *Service) BulkSetStatus(ctx context.Context, ids []string, status patient.Status) *BulkResult {
	start := time.Now()
	defer func() { s.metrics.observeOp("bulk_set_status", start, nil) }()

	res := &BulkResult{}
	for _, id := range ids {
		if _, err := s.Update(ctx, id, UpdateRequest{Status: &status}); err != nil {
			res.Errors.Set(id, err)
			s.metrics.incBulkItem("set_status", "error")
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
		s.metrics.incBulkItem("set_status", "ok")
	}
	return res
}

// BulkDelete deletes each id independently, accumulating per-id errors.
func (s *Service) BulkDelete(ctx context.Context, ids []string) *BulkResult {
	start := time.Now()
	defer func() { s.metrics.observeOp("bulk_delete", start, nil) }()

	res := &BulkResult{}
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			res.Errors.Set(id, err)
			s.metrics.incBulkItem("delete", "error")
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
		s.metrics.incBulkItem("delete", "ok")
	}
	return res
}

// ExportAll produces a versioned envelope holding every stored record
// with ciphertext verbatim; nothing is decrypted or re-encrypted.
func (s *Service) ExportAll(ctx context.Context) (env *Envelope, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp("export", start, err) }()

	encs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.addExported(len(encs))
	return &Envelope{
		Version:   EnvelopeVersion,
		Timestamp: time.Now().UTC(),
		Records:   encs,
	}, nil
}

// ExportSelected exports only the given ids. Absent ids are logged and
// skipped so a partially stale selection still yields an envelope.
func (s *Service) ExportSelected(ctx context.Context, ids []string) (env *Envelope, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp("export", start, err) }()

	recs := make([]*EncryptedRecord, 0, len(ids))
	for _, id := range ids {
		enc, found, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			s.logger.Warn(ctx, "export skipping missing record", "record_id", id)
			continue
		}
		recs = append(recs, enc)
	}
	s.metrics.addExported(len(recs))
	return &Envelope{
		Version:   EnvelopeVersion,
		Timestamp: time.Now().UTC(),
		Records:   recs,
	}, nil
}

// Import merges an envelope best-effort: an unrecognized version is a
// warning, each record needs id and ciphertext, existing ids are never
// overwritten, and every candidate must pass a decrypt probe before its
// ciphertext is inserted verbatim. Problems are recorded per record;
// import never fails wholesale.
func (s *Service) Import(ctx context.Context, env *Envelope) *ImportResult {
	start := time.Now()
	defer func() { s.metrics.observeOp("import", start, nil) }()

	ctx, span := tracer.Start(ctx, "records.import")
	defer span.End()

	res := &ImportResult{BatchID: ulid.Make().String()}
	if env == nil {
		res.Errors.Set("envelope", errors.New("envelope is missing"))
		return res
	}
	if env.Version != EnvelopeVersion {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("envelope version %q does not match %q, importing anyway", env.Version, EnvelopeVersion))
	}

	for i, enc := range env.Records {
		key := enc.ID
		if key == "" {
			key = fmt.Sprintf("record[%d]", i)
		}

		if enc.ID == "" || enc.EncryptedData == "" {
			res.Errors.Set(key, errors.New("missing id or ciphertext"))
			s.metrics.incImport("invalid")
			continue
		}

		if _, exists, err := s.store.Get(ctx, enc.ID); err != nil {
			res.Errors.Set(key, err)
			s.metrics.incImport("error")
			continue
		} else if exists {
			res.Errors.Set(key, ErrAlreadyExists)
			s.metrics.incImport("exists")
			continue
		}

		// Validity probe: the blob must decrypt under our key.
		if _, err := s.sealer.Decrypt(enc.EncryptedData); err != nil {
			res.Errors.Set(key, err)
			s.metrics.incImport("undecryptable")
			continue
		}

		cp := enc.Clone()
		cp.Revision = 0
		if err := s.store.Insert(ctx, cp); err != nil {
			res.Errors.Set(key, err)
			s.metrics.incImport("error")
			continue
		}
		res.Imported = append(res.Imported, enc.ID)
		s.metrics.incImport("imported")
	}

	span.SetAttributes(
		attribute.Int("import.imported", len(res.Imported)),
		attribute.Int("import.errors", len(res.Errors)),
	)
	s.logger.Info(ctx, "import finished",
		"batch_id", res.BatchID,
		"imported", len(res.Imported),
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
	)
	return res
}

// StorageStats reports index-derived counts plus an estimated byte
// size. The estimate is explicitly approximate.
func (s *Service) StorageStats(ctx context.Context) (stats *StorageStats, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp("stats", start, err) }()

	raw, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &StorageStats{
		Total:          raw.Total,
		ByStatus:       raw.ByStatus,
		ByPriority:     raw.ByUrgency,
		EstimatedBytes: raw.BlobBytes + int64(raw.Total)*perRecordOverhead,
		Approximate:    true,
	}, nil
}

// Package memstore provides an in-memory implementation of
// records.Store. Suitable for dev/testing.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
	"github.com/linnemanlabs/fieldtriage/internal/records"
)

// Store holds encrypted records in memory.
type Store struct {
	mu   sync.RWMutex
	recs map[string]*records.EncryptedRecord
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		recs: make(map[string]*records.EncryptedRecord),
	}
}

// Init is a no-op for the in-memory store.
func (s *Store) Init(_ context.Context) error { return nil }

// Get retrieves a record by id. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*records.EncryptedRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recs[id]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

// Insert stores a copy of the record. Existing ids are never
// overwritten.
func (s *Store) Insert(_ context.Context, rec *records.EncryptedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.ID]; ok {
		return records.ErrAlreadyExists
	}
	cp := rec.Clone()
	stampIfZero(cp)
	cp.Revision = 1
	s.recs[rec.ID] = cp
	rec.Revision = cp.Revision
	rec.LastUpdated = cp.LastUpdated
	return nil
}

// Update replaces the stored record if the expected revision still
// matches; a missing row or stale revision is a conflict.
func (s *Store) Update(_ context.Context, rec *records.EncryptedRecord, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recs[rec.ID]
	if !ok || cur.Revision != expectedRevision {
		return records.ErrConflict
	}
	cp := rec.Clone()
	stampIfZero(cp)
	cp.Revision = expectedRevision + 1
	s.recs[rec.ID] = cp
	rec.Revision = cp.Revision
	rec.LastUpdated = cp.LastUpdated
	return nil
}

// Delete removes a record, reporting whether it was present.
func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[id]; !ok {
		return false, nil
	}
	delete(s.recs, id)
	return true, nil
}

// List returns every record, urgency ascending then timestamp
// ascending.
func (s *Store) List(_ context.Context) ([]*records.EncryptedRecord, error) {
	s.mu.RLock()
	out := make([]*records.EncryptedRecord, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityUrgency != out[j].PriorityUrgency {
			return out[i].PriorityUrgency < out[j].PriorityUrgency
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// ListByStatus returns records with the given status, oldest first.
func (s *Store) ListByStatus(_ context.Context, status patient.Status) ([]*records.EncryptedRecord, error) {
	return s.filtered(func(r *records.EncryptedRecord) bool { return r.Status == status }), nil
}

// ListByPriority returns records with the given urgency, oldest first.
func (s *Store) ListByPriority(_ context.Context, urgency int) ([]*records.EncryptedRecord, error) {
	return s.filtered(func(r *records.EncryptedRecord) bool { return r.PriorityUrgency == urgency }), nil
}

func (s *Store) filtered(keep func(*records.EncryptedRecord) bool) []*records.EncryptedRecord {
	s.mu.RLock()
	out := make([]*records.EncryptedRecord, 0)
	for _, r := range s.recs {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Stats computes counts and blob bytes from the index fields only.
func (s *Store) Stats(_ context.Context) (*records.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &records.StoreStats{
		ByStatus:  make(map[patient.Status]int),
		ByUrgency: make(map[int]int),
	}
	for _, r := range s.recs {
		stats.Total++
		stats.ByStatus[r.Status]++
		stats.ByUrgency[r.PriorityUrgency]++
		stats.BlobBytes += int64(len(r.EncryptedData))
	}
	return stats, nil
}

func stampIfZero(r *records.EncryptedRecord) {
	if r.LastUpdated.IsZero() {
		r.LastUpdated = time.Now().UTC()
	}
}

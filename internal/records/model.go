// Package records is the encrypted patient record service: it composes
// the triage classifier, the seal crypto service, and a pluggable
// encrypted store into the create/read/update/delete, bulk, and
// export/import operations the presentation layer consumes.
package records

import (
	"time"

	"github.com/hengadev/errsx"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
)

// EncryptedRecord is the storage entity: an opaque sealed blob plus the
// non-sensitive metadata mirrored in plaintext so the store can sort and
// filter without decryption. Decrypting EncryptedData must always yield
// a patient record whose id and timestamp equal the outer fields and
// whose priority urgency and status equal the mirrors; every mutating
// path writes blob and mirrors together.
type EncryptedRecord struct {
	ID              string         `json:"id"`
	EncryptedData   string         `json:"encryptedData"`
	Timestamp       time.Time      `json:"timestamp"`
	LastUpdated     time.Time      `json:"lastUpdated"`
	PriorityUrgency int            `json:"priority"`
	Status          patient.Status `json:"status"`

	// Revision is the optimistic concurrency counter. It is storage
	// bookkeeping, not part of the portable export format.
	Revision int64 `json:"-"`
}

// Clone returns a copy of the encrypted record.
func (e *EncryptedRecord) Clone() *EncryptedRecord {
	cp := *e
	return &cp
}

// EnvelopeVersion is the current export format version. Version is
// checked by exact match on import; a mismatch is a warning, not an
// abort.
const EnvelopeVersion = "1.0"

// Envelope is the portable export format. Ciphertext is carried
// verbatim, so an envelope is only usable by an instance holding the
// same key.
type Envelope struct {
	Version   string             `json:"version"`
	Timestamp time.Time          `json:"timestamp"`
	Records   []*EncryptedRecord `json:"records"`
}

// CreateInput carries the caller-supplied fields for a new record.
// Identity, timestamps, priority, and initial status are assigned by
// the service.
type CreateInput struct {
	AgeGroup patient.AgeGroup  `json:"ageGroup"`
	Vitals   patient.Vitals    `json:"vitals"`
	Mobility *patient.Mobility `json:"mobility,omitempty"`
	Injuries []string          `json:"injuries"`
	Notes    string            `json:"notes,omitempty"`
}

// VitalsPatch deep-merges into a record's vitals: only non-nil fields
// are applied.
type VitalsPatch struct {
	Pulse           *int                   `json:"pulse,omitempty"`
	Breathing       *patient.Breathing     `json:"breathing,omitempty"`
	Circulation     *patient.Circulation   `json:"circulation,omitempty"`
	Consciousness   *patient.Consciousness `json:"consciousness,omitempty"`
	RespiratoryRate *int                   `json:"respiratoryRate,omitempty"`
	CapillaryRefill *float64               `json:"capillaryRefill,omitempty"`
	RadialPulse     *patient.RadialPulse   `json:"radialPulse,omitempty"`
}

// Apply merges the patch into v.
func (p *VitalsPatch) Apply(v *patient.Vitals) {
	if p.Pulse != nil {
		pulse := *p.Pulse
		v.Pulse = &pulse
	}
	if p.Breathing != nil {
		v.Breathing = *p.Breathing
	}
	if p.Circulation != nil {
		v.Circulation = *p.Circulation
	}
	if p.Consciousness != nil {
		v.Consciousness = *p.Consciousness
	}
	if p.RespiratoryRate != nil {
		rr := *p.RespiratoryRate
		v.RespiratoryRate = &rr
	}
	if p.CapillaryRefill != nil {
		cr := *p.CapillaryRefill
		v.CapillaryRefill = &cr
	}
	if p.RadialPulse != nil {
		rp := *p.RadialPulse
		v.RadialPulse = &rp
	}
}

// UpdateRequest is an explicit tagged patch: each field is applied only
// when set, and the presence of a vitals or mobility change, not key
// sniffing on a loose payload, decides whether priority is recomputed.
// The record's id and creation timestamp are never touched.
type UpdateRequest struct {
	AgeGroup      *patient.AgeGroup `json:"ageGroup,omitempty"`
	Vitals        *VitalsPatch      `json:"vitals,omitempty"`
	Mobility      *patient.Mobility `json:"mobility,omitempty"`
	ClearMobility bool              `json:"clearMobility,omitempty"`
	Injuries      *[]string         `json:"injuries,omitempty"`
	Notes         *string           `json:"notes,omitempty"`
	Status        *patient.Status   `json:"status,omitempty"`
}

// TouchesTriageInputs reports whether the patch changes vitals or
// mobility, i.e. whether the update must recompute priority.
func (u *UpdateRequest) TouchesTriageInputs() bool {
	return u.Vitals != nil || u.Mobility != nil || u.ClearMobility
}

// BulkResult accumulates the per-item outcomes of a bulk operation.
// One failed item never halts the batch.
type BulkResult struct {
	Succeeded []string
	Errors    errsx.Map
}

// ImportResult accumulates the per-record outcomes of an import.
type ImportResult struct {
	BatchID  string
	Imported []string
	Warnings []string
	Errors   errsx.Map
}

// StorageStats summarizes the store from index fields only, without
// decrypting anything. EstimatedBytes is explicitly an approximation:
// ciphertext length plus a fixed per-record overhead.
type StorageStats struct {
	Total          int                    `json:"total"`
	ByStatus       map[patient.Status]int `json:"byStatus"`
	ByPriority     map[int]int            `json:"byPriority"`
	EstimatedBytes int64                  `json:"estimatedBytes"`
	Approximate    bool                   `json:"approximate"`
}

// Package patient defines the plaintext domain entities for field triage:
// the patient record, its vital signs, and the fixed priority table.
package patient

import "time"

// AgeGroup coarsely buckets patients for protocol selection.
type AgeGroup string

const (
	AgeChild AgeGroup = "child"
	AgeAdult AgeGroup = "adult"
)

// Breathing describes observed respiratory effort.
type Breathing string

const (
	BreathingNormal  Breathing = "normal"
	BreathingLabored Breathing = "labored"
	BreathingAbsent  Breathing = "absent"
)

// Circulation describes observed circulatory state.
type Circulation string

const (
	CirculationNormal   Circulation = "normal"
	CirculationBleeding Circulation = "bleeding"
	CirculationShock    Circulation = "shock"
)

// Consciousness is the AVPU scale: alert, verbal, pain, unresponsive.
type Consciousness string

const (
	ConsciousnessAlert        Consciousness = "alert"
	ConsciousnessVerbal       Consciousness = "verbal"
	ConsciousnessPain         Consciousness = "pain"
	ConsciousnessUnresponsive Consciousness = "unresponsive"
)

// RadialPulse records whether a radial pulse is palpable.
type RadialPulse string

const (
	RadialPresent RadialPulse = "present"
	RadialAbsent  RadialPulse = "absent"
)

// Mobility records whether the patient can walk.
type Mobility string

const (
	MobilityAmbulatory    Mobility = "ambulatory"
	MobilityNonAmbulatory Mobility = "non_ambulatory"
)

// Status tracks where a patient record is in its care lifecycle.
type Status string

const (
	// StatusActive means the patient is awaiting or receiving triage
	StatusActive Status = "active"

	// StatusTreated means treatment was delivered on scene
	StatusTreated Status = "treated"

	// StatusTransferred means the patient was handed off to transport
	StatusTransferred Status = "transferred"

	// StatusDischarged means the patient left responder care
	StatusDischarged Status = "discharged"
)

// ValidStatus reports whether s is one of the known lifecycle statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusTreated, StatusTransferred, StatusDischarged:
		return true
	}
	return false
}

// Vitals holds the measured and observed vital signs for one patient.
// Pointer fields are optional: a nil value means "not measured", which
// never triggers a classification rule.
type Vitals struct {
	Pulse           *int          `json:"pulse,omitempty"`
	Breathing       Breathing     `json:"breathing,omitempty"`
	Circulation     Circulation   `json:"circulation,omitempty"`
	Consciousness   Consciousness `json:"consciousness,omitempty"`
	RespiratoryRate *int          `json:"respiratoryRate,omitempty"`
	CapillaryRefill *float64      `json:"capillaryRefill,omitempty"` // seconds
	RadialPulse     *RadialPulse  `json:"radialPulse,omitempty"`
}

// Record is the plaintext patient record. It only ever exists decrypted
// in memory; at rest it is sealed into an opaque blob.
type Record struct {
	ID          string    `json:"id"`
	AgeGroup    AgeGroup  `json:"ageGroup"`
	Vitals      Vitals    `json:"vitals"`
	Mobility    *Mobility `json:"mobility,omitempty"`
	Injuries    []string  `json:"injuries"`
	Notes       string    `json:"notes,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	LastUpdated time.Time `json:"lastUpdated"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
}

// Clone returns a deep copy of the record. Pointer vitals are copied so
// callers can patch the clone without aliasing the original.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Vitals = r.Vitals.Clone()
	if r.Mobility != nil {
		m := *r.Mobility
		cp.Mobility = &m
	}
	if r.Injuries != nil {
		cp.Injuries = append([]string(nil), r.Injuries...)
	}
	return &cp
}

// Clone returns a deep copy of the vitals.
func (v Vitals) Clone() Vitals {
	cp := v
	if v.Pulse != nil {
		p := *v.Pulse
		cp.Pulse = &p
	}
	if v.RespiratoryRate != nil {
		rr := *v.RespiratoryRate
		cp.RespiratoryRate = &rr
	}
	if v.CapillaryRefill != nil {
		cr := *v.CapillaryRefill
		cp.CapillaryRefill = &cr
	}
	if v.RadialPulse != nil {
		rp := *v.RadialPulse
		cp.RadialPulse = &rp
	}
	return cp
}

package triage

import "github.com/linnemanlabs/fieldtriage/internal/patient"

// Report lists which fields a record is missing. Errors are the hard
// observations the protocol cannot do without; warnings are optional
// measurements that sharpen the result. Neither blocks Assess.
type Report struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// OK reports whether the record has every required field.
func (rep Report) OK() bool { return len(rep.Errors) == 0 }

// Validate reports missing required fields (breathing, consciousness,
// circulation) as errors and missing optional fields (pulse,
// respiratory rate, mobility) as warnings.
func Validate(r *patient.Record) Report {
	var rep Report
	if r == nil {
		rep.Errors = append(rep.Errors, "record is missing")
		return rep
	}
	if r.Vitals.Breathing == "" {
		rep.Errors = append(rep.Errors, "breathing is required")
	}
	if r.Vitals.Consciousness == "" {
		rep.Errors = append(rep.Errors, "consciousness is required")
	}
	if r.Vitals.Circulation == "" {
		rep.Errors = append(rep.Errors, "circulation is required")
	}
	if r.Vitals.Pulse == nil {
		rep.Warnings = append(rep.Warnings, "pulse not measured")
	}
	if r.Vitals.RespiratoryRate == nil {
		rep.Warnings = append(rep.Warnings, "respiratory rate not measured")
	}
	if r.Mobility == nil {
		rep.Warnings = append(rep.Warnings, "mobility not recorded")
	}
	return rep
}

package triage

import (
	"fmt"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
)

// Thresholds for the numeric rules. All comparisons are strict, so the
// threshold values themselves never trigger.
const (
	RespiratoryRateMax = 30
	CapillaryRefillMax = 2.0 // seconds
	PulseMin           = 50
	PulseMax           = 120
)

// Rule is one entry of the ordered decision table. Rules are evaluated
// top to bottom and the first match wins.
type Rule struct {
	ID      string        `json:"id"`
	Level   patient.Level `json:"level"`
	Summary string        `json:"summary"`
	match   func(r *patient.Record) bool
}

// Matches reports whether the rule fires for the given record.
func (ru Rule) Matches(r *patient.Record) bool {
	return ru.match(r)
}

// rules is the decision table. Order is load-bearing: the walking-wounded
// short-circuit must be checked before every other signal.
var rules = []Rule{
	{
		ID:      "walking_wounded",
		Level:   patient.LevelGreen,
		Summary: "ambulatory and alert",
		match: func(r *patient.Record) bool {
			return r.Mobility != nil && *r.Mobility == patient.MobilityAmbulatory &&
				r.Vitals.Consciousness == patient.ConsciousnessAlert
		},
	},
	{
		ID:      "breathing_absent",
		Level:   patient.LevelBlack,
		Summary: "no spontaneous breathing",
		match: func(r *patient.Record) bool {
			return r.Vitals.Breathing == patient.BreathingAbsent
		},
	},
	{
		ID:      "respiratory_distress",
		Level:   patient.LevelRed,
		Summary: "labored breathing or respiratory rate above 30",
		match: func(r *patient.Record) bool {
			if r.Vitals.Breathing == patient.BreathingLabored {
				return true
			}
			return r.Vitals.RespiratoryRate != nil && *r.Vitals.RespiratoryRate > RespiratoryRateMax
		},
	},
	{
		ID:      "circulatory_compromise",
		Level:   patient.LevelRed,
		Summary: "bleeding, shock, absent radial pulse, capillary refill above 2s, or pulse outside 50-120",
		match: func(r *patient.Record) bool {
			v := r.Vitals
			if v.Circulation == patient.CirculationBleeding || v.Circulation == patient.CirculationShock {
				return true
			}
			if v.RadialPulse != nil && *v.RadialPulse == patient.RadialAbsent {
				return true
			}
			if v.CapillaryRefill != nil && *v.CapillaryRefill > CapillaryRefillMax {
				return true
			}
			if v.Pulse != nil && (*v.Pulse < PulseMin || *v.Pulse > PulseMax) {
				return true
			}
			return false
		},
	},
	{
		ID:      "cannot_follow_commands",
		Level:   patient.LevelRed,
		Summary: "responds only to pain or unresponsive",
		match: func(r *patient.Record) bool {
			return r.Vitals.Consciousness == patient.ConsciousnessPain ||
				r.Vitals.Consciousness == patient.ConsciousnessUnresponsive
		},
	},
}

// defaultRuleID names the implicit catch-all when no rule fires.
const defaultRuleID = "default_delayed"

// Rules returns a copy of the decision table in evaluation order, for
// audit and live-preview use by callers.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Assessment is the outcome of classifying one patient record.
type Assessment struct {
	Priority  patient.Priority `json:"priority"`
	Reasoning string           `json:"reasoning"`
	Path      []string         `json:"path"`
}

// Assess classifies the record with the START decision table. It never
// panics and never returns an under-triaged result on internal fault:
// any fault during evaluation yields red with the fault noted in the
// reasoning.
func Assess(r *patient.Record) (a Assessment) {
	defer func() {
		if rec := recover(); rec != nil {
			a = Assessment{
				Priority:  patient.PriorityFor(patient.LevelRed),
				Reasoning: fmt.Sprintf("assessment fault, defaulting to immediate: %v", rec),
				Path:      append(a.Path, "fault"),
			}
		}
	}()

	path := make([]string, 0, len(rules)+1)
	for _, ru := range rules {
		if !ru.match(r) {
			path = append(path, ru.ID+": no")
			continue
		}
		path = append(path, ru.ID+": match")
		return Assessment{
			Priority:  patient.PriorityFor(ru.Level),
			Reasoning: ru.Summary,
			Path:      path,
		}
	}

	path = append(path, defaultRuleID+": match")
	return Assessment{
		Priority:  patient.PriorityFor(patient.LevelYellow),
		Reasoning: "no immediate or expectant findings",
		Path:      path,
	}
}

// RecalculatePriority re-runs the decision table and returns only the
// priority. Used after updates that touch vitals or mobility.
func RecalculatePriority(r *patient.Record) patient.Priority {
	return Assess(r).Priority
}

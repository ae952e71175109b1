// Package assist defines the narrow AI collaborator surface: turning a
// responder's free-text observation into suggested record fields. The
// suggestion is a prefill the responder reviews; it never sets priority
// and never makes care decisions.
package assist

import (
	"context"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
)

// Suggestion holds the fields an analyzer proposes from free text.
// Absent fields mean the text did not support a suggestion.
type Suggestion struct {
	AgeGroup *patient.AgeGroup `json:"ageGroup,omitempty"`
	Vitals   patient.Vitals    `json:"vitals"`
	Mobility *patient.Mobility `json:"mobility,omitempty"`
	Injuries []string          `json:"injuries,omitempty"`
	Notes    string            `json:"notes,omitempty"`
}

// Analyzer extracts structured record fields from free text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*Suggestion, error)
}

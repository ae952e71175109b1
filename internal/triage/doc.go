// Package triage implements the START field triage classifier: an
// ordered, first-match decision procedure mapping a patient's vitals
// and mobility to a priority level. It is pure and stateless; callers
// that need to preview or audit the decision table use Rules.
package triage

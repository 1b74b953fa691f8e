// Package models contains shared data models used across the nsstatus codebase.
package models

// AnalysisStatus is the canonical compile state of an analysis.
type AnalysisStatus string

const (
	StatusDraft      AnalysisStatus = "DRAFT"
	StatusPending    AnalysisStatus = "PENDING"
	StatusSubmitting AnalysisStatus = "SUBMITTING"
	StatusPassed     AnalysisStatus = "PASSED"
	StatusFailed     AnalysisStatus = "FAILED"
)

// ResolveStatus maps a raw upstream status onto an AnalysisStatus.
// A missing or empty value means the analysis has never been submitted.
// Unrecognized values are passed through unchanged; use Known to detect them.
func ResolveStatus(raw *string) AnalysisStatus {
	if raw == nil || *raw == "" {
		return StatusDraft
	}
	return AnalysisStatus(*raw)
}

// Known reports whether s is one of the five canonical statuses.
func (s AnalysisStatus) Known() bool {
	switch s {
	case StatusDraft, StatusPending, StatusSubmitting, StatusPassed, StatusFailed:
		return true
	}
	return false
}

// Editable reports whether a bundle may be (re)generated from this status.
func (s AnalysisStatus) Editable() bool {
	return s == StatusDraft || s == StatusFailed
}

// InProgress reports whether compilation has been requested but not finished.
func (s AnalysisStatus) InProgress() bool {
	return s == StatusPending || s == StatusSubmitting
}

func (s AnalysisStatus) String() string {
	return string(s)
}

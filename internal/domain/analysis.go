package domain

import (
	"fmt"
	"time"
)

// AnalysisStatus represents the lifecycle state of an analysis job
type AnalysisStatus string

const (
	AnalysisStatusPending    AnalysisStatus = "pending"
	AnalysisStatusProcessing AnalysisStatus = "processing"
	AnalysisStatusCompleted  AnalysisStatus = "completed"
	AnalysisStatusFailed     AnalysisStatus = "failed"
)

// Analysis represents one evidence analysis job. It is created once per
// request, mutated only by the orchestrator, and immutable once it reaches a
// terminal status.
type Analysis struct {
	ID                string
	OrgID             string
	FrameworkID       string
	Model             string
	Status            AnalysisStatus
	TotalControls     int
	CompliantCount    int
	PartialCount      int
	MissingCount      int
	AverageConfidence int
	Error             string
	StartedAt         time.Time
	CompletedAt       *time.Time
	DurationMS        int64
}

// IsTerminal reports whether the analysis has reached a final state
func (a *Analysis) IsTerminal() bool {
	return a.Status == AnalysisStatusCompleted || a.Status == AnalysisStatusFailed
}

// ValidateAnalysis validates an Analysis instance
func ValidateAnalysis(a *Analysis) error {
	if a == nil {
		return fmt.Errorf("analysis cannot be nil")
	}

	if a.ID == "" {
		return fmt.Errorf("analysis ID is required")
	}

	if a.OrgID == "" {
		return fmt.Errorf("analysis OrgID is required")
	}

	if a.FrameworkID == "" {
		return fmt.Errorf("analysis FrameworkID is required")
	}

	if !isValidAnalysisStatus(a.Status) {
		return ErrInvalidAnalysisStatus
	}

	if a.TotalControls < 0 {
		return fmt.Errorf("analysis TotalControls cannot be negative")
	}

	return nil
}

// isValidAnalysisStatus checks if an AnalysisStatus is valid
func isValidAnalysisStatus(s AnalysisStatus) bool {
	switch s {
	case AnalysisStatusPending, AnalysisStatusProcessing,
		AnalysisStatusCompleted, AnalysisStatusFailed:
		return true
	}
	return false
}

package domain

import (
	"fmt"
	"time"
)

// EvidenceStatus is the verdict for one control within one analysis
type EvidenceStatus string

const (
	EvidenceStatusCompliant EvidenceStatus = "compliant"
	EvidenceStatusPartial   EvidenceStatus = "partial"
	EvidenceStatusMissing   EvidenceStatus = "missing"
)

// EvidenceMapping is the verdict for one (analysis, control) pair. It is
// created exactly once per control per job and never updated afterwards; a
// failed evaluation still yields a mapping with status missing and
// confidence 0.
type EvidenceMapping struct {
	ID         string
	AnalysisID string
	ControlID  string
	Status     EvidenceStatus
	Confidence int
	Reasoning  string
	CreatedAt  time.Time
}

// EvidenceItem is one cited snippet supporting an evidence mapping, resolved
// to a source location where attribution succeeded. Items are append-only
// children of their mapping. Unresolvable citations are still recorded, with
// Attributed false and no document reference.
type EvidenceItem struct {
	ID           string
	MappingID    string
	Text         string
	DocumentID   string
	DocumentName string
	PageNumber   int
	ChunkIndex   int
	Confidence   int
	Relevance    int
	Attributed   bool
	CreatedAt    time.Time
}

// ValidateEvidenceMapping validates an EvidenceMapping instance
func ValidateEvidenceMapping(m *EvidenceMapping) error {
	if m == nil {
		return fmt.Errorf("evidence mapping cannot be nil")
	}

	if m.ID == "" {
		return fmt.Errorf("evidence mapping ID is required")
	}

	if m.AnalysisID == "" {
		return fmt.Errorf("evidence mapping AnalysisID is required")
	}

	if m.ControlID == "" {
		return fmt.Errorf("evidence mapping ControlID is required")
	}

	if !isValidEvidenceStatus(m.Status) {
		return ErrInvalidEvidenceStatus
	}

	if m.Confidence < 0 || m.Confidence > 100 {
		return fmt.Errorf("evidence mapping Confidence must be between 0 and 100")
	}

	return nil
}

// ValidateEvidenceItem validates an EvidenceItem instance
func ValidateEvidenceItem(i *EvidenceItem) error {
	if i == nil {
		return fmt.Errorf("evidence item cannot be nil")
	}

	if i.ID == "" {
		return fmt.Errorf("evidence item ID is required")
	}

	if i.MappingID == "" {
		return fmt.Errorf("evidence item MappingID is required")
	}

	if i.Text == "" {
		return fmt.Errorf("evidence item Text is required")
	}

	if i.Attributed && i.DocumentID == "" {
		return fmt.Errorf("attributed evidence item requires a DocumentID")
	}

	return nil
}

// isValidEvidenceStatus checks if an EvidenceStatus is valid
func isValidEvidenceStatus(s EvidenceStatus) bool {
	switch s {
	case EvidenceStatusCompliant, EvidenceStatusPartial, EvidenceStatusMissing:
		return true
	}
	return false
}

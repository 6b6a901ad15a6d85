package domain

import (
	"fmt"
	"time"
)

// OrganizedCorpus is the single categorized text built from all selected
// documents' classified chunks. It is written once by the corpus organizer
// and shared read-only by every control evaluation in a job.
type OrganizedCorpus struct {
	ID           string
	OrgID        string
	Content      string
	Categories   []string
	ChunkCount   int
	SourceDigest string
	CreatedAt    time.Time
}

// AttributionEntry maps a contiguous line span inside the organized corpus
// back to the source document, page and chunk it was concatenated from.
type AttributionEntry struct {
	ID           string
	CorpusID     string
	DocumentID   string
	DocumentName string
	PageNumber   int
	ChunkIndex   int
	StartLine    int
	EndLine      int
}

// Covers reports whether the entry's line span contains the given line
func (e *AttributionEntry) Covers(line int) bool {
	return line >= e.StartLine && line <= e.EndLine
}

// ValidateOrganizedCorpus validates an OrganizedCorpus instance
func ValidateOrganizedCorpus(c *OrganizedCorpus) error {
	if c == nil {
		return fmt.Errorf("corpus cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("corpus ID is required")
	}

	if c.OrgID == "" {
		return fmt.Errorf("corpus OrgID is required")
	}

	if c.Content == "" {
		return fmt.Errorf("corpus Content is required")
	}

	if c.ChunkCount <= 0 {
		return fmt.Errorf("corpus ChunkCount must be greater than 0")
	}

	return nil
}

// ValidateAttributionEntry validates an AttributionEntry instance
func ValidateAttributionEntry(e *AttributionEntry) error {
	if e == nil {
		return fmt.Errorf("attribution entry cannot be nil")
	}

	if e.ID == "" {
		return fmt.Errorf("attribution entry ID is required")
	}

	if e.CorpusID == "" {
		return fmt.Errorf("attribution entry CorpusID is required")
	}

	if e.DocumentID == "" {
		return fmt.Errorf("attribution entry DocumentID is required")
	}

	if e.StartLine <= 0 || e.EndLine < e.StartLine {
		return fmt.Errorf("attribution entry line span is invalid")
	}

	return nil
}

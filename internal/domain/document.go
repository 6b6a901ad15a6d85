package domain

import (
	"fmt"
	"time"
)

// DocumentStatus represents the processing state of an evidence document
type DocumentStatus string

const (
	// DocumentStatusPending means an upload URL was issued but the object
	// has not been confirmed in storage yet.
	DocumentStatusPending DocumentStatus = "pending"
	// DocumentStatusUploaded means the object exists in storage but no
	// classified chunks have been ingested for it.
	DocumentStatusUploaded DocumentStatus = "uploaded"
	// DocumentStatusProcessed means the document-intelligence collaborator
	// has delivered classified chunks and the document can feed analyses.
	DocumentStatusProcessed DocumentStatus = "processed"
)

// Document represents one uploaded compliance evidence document. Format
// conversion and chunk classification happen upstream; this service only
// stores the object and the classified chunks it receives.
type Document struct {
	ID          string
	OrgID       string
	Name        string
	ContentType string
	SizeBytes   int64
	StorageKey  string
	Status      DocumentStatus
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentChunk is one semantically classified span of a document, produced
// by the document-intelligence collaborator. Topic, category and relevance
// arrive precomputed; the embedding is optional and only used for search.
type DocumentChunk struct {
	ID             string
	DocumentID     string
	OrgID          string
	ChunkIndex     int
	PageNumber     int
	Topic          string
	Category       string
	RelevanceScore int
	Text           string
	Embedding      []float32
	CreatedAt      time.Time
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.OrgID == "" {
		return fmt.Errorf("document OrgID is required")
	}

	if d.Name == "" {
		return fmt.Errorf("document Name is required")
	}

	if !isValidDocumentStatus(d.Status) {
		return ErrInvalidDocumentStatus
	}

	return nil
}

// ValidateDocumentChunk validates a DocumentChunk instance
func ValidateDocumentChunk(c *DocumentChunk) error {
	if c == nil {
		return fmt.Errorf("document chunk cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("document chunk ID is required")
	}

	if c.DocumentID == "" {
		return fmt.Errorf("document chunk DocumentID is required")
	}

	if c.Text == "" {
		return fmt.Errorf("document chunk Text is required")
	}

	if c.RelevanceScore < 0 || c.RelevanceScore > 100 {
		return fmt.Errorf("document chunk RelevanceScore must be between 0 and 100")
	}

	return nil
}

// isValidDocumentStatus checks if a DocumentStatus is valid
func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusPending, DocumentStatusUploaded, DocumentStatusProcessed:
		return true
	}
	return false
}

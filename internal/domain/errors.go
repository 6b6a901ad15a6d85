package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodePrecondition     = "PRECONDITION_FAILED"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidAnalysisStatus = NewDomainError(ErrCodeValidation, "invalid analysis status")
	ErrInvalidEvidenceStatus = NewDomainError(ErrCodeValidation, "invalid evidence status")
	ErrInvalidDocumentStatus = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrMissingRequiredField  = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrAnalysisNotFound     = NewDomainError(ErrCodeNotFound, "analysis not found")
	ErrFrameworkNotFound    = NewDomainError(ErrCodeNotFound, "framework not found")
	ErrControlNotFound      = NewDomainError(ErrCodeNotFound, "control not found")
	ErrDocumentNotFound     = NewDomainError(ErrCodeNotFound, "document not found")
	ErrCorpusNotFound       = NewDomainError(ErrCodeNotFound, "organized corpus not found")
	ErrOrganizationNotFound = NewDomainError(ErrCodeNotFound, "organization not found")
	ErrAPIKeyNotFound       = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Already exists errors
var (
	ErrFrameworkAlreadyExists    = NewDomainError(ErrCodeAlreadyExists, "framework already exists")
	ErrOrganizationAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "organization already exists")
	ErrAPIKeyAlreadyExists       = NewDomainError(ErrCodeAlreadyExists, "api key already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// Precondition failures reported synchronously before a job is created.
// These are distinct from analysis outcomes: "no evidence available" means no
// chunks exist for the requested documents, not that controls found nothing.
var (
	ErrNoDocuments         = NewDomainError(ErrCodePrecondition, "no processed documents available for analysis")
	ErrNoMatchingControls  = NewDomainError(ErrCodePrecondition, "no controls match the requested selection")
	ErrNoEvidenceAvailable = NewDomainError(ErrCodePrecondition, "no evidence chunks exist for the selected documents")
)

// Service availability errors
var (
	ErrOracleNotConfigured  = NewDomainError(ErrCodeUnavailable, "language model provider not configured")
	ErrSearchNotConfigured  = NewDomainError(ErrCodeUnavailable, "embedding provider not configured")
	ErrStorageNotConfigured = NewDomainError(ErrCodeUnavailable, "object storage not configured")
)

package service

import (
	"context"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/google/uuid"
)

// TxRepositories exposes repositories bound to one transaction
type TxRepositories interface {
	Corpora() CorpusRepositoryInterface
	Evidence() EvidenceRepositoryInterface
	Documents() DocumentRepositoryInterface
	Frameworks() FrameworkRepositoryInterface
}

// TxRunnerInterface runs a function inside a database transaction
type TxRunnerInterface interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// StoreRetryer wraps persistence calls with retry for transient failures.
// Implementations retry connectivity errors only; everything else propagates
// on the first attempt.
type StoreRetryer interface {
	Do(ctx context.Context, name string, op func(ctx context.Context) error) error
}

// CorpusRepositoryInterface defines the repository interface for organized
// corpora and attribution entries
type CorpusRepositoryInterface interface {
	Create(ctx context.Context, c *domain.OrganizedCorpus) error
	CreateAttributions(ctx context.Context, entries []*domain.AttributionEntry) error
	GetByID(ctx context.Context, id string) (*domain.OrganizedCorpus, error)
	GetByOrgAndDigest(ctx context.Context, orgID, sourceDigest string) (*domain.OrganizedCorpus, error)
	ListAttributions(ctx context.Context, corpusID string) ([]*domain.AttributionEntry, error)
}

// EvidenceRepositoryInterface defines the repository interface for evidence
// mappings and items
type EvidenceRepositoryInterface interface {
	CreateMapping(ctx context.Context, m *domain.EvidenceMapping) error
	CreateItems(ctx context.Context, items []*domain.EvidenceItem) error
	ListMappingsByAnalysis(ctx context.Context, analysisID string) ([]*domain.EvidenceMapping, error)
	ListItemsByMapping(ctx context.Context, mappingID string) ([]*domain.EvidenceItem, error)
	ListItemsByAnalysis(ctx context.Context, analysisID string) ([]*domain.EvidenceItem, error)
}

// ChunkSearchResult is one similarity hit from a chunk search
type ChunkSearchResult struct {
	Chunk        *domain.DocumentChunk
	DocumentName string
	Similarity   float64
}

// DocumentRepositoryInterface defines the repository interface for evidence
// documents and their classified chunks
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Document, error)
	ListProcessedIDsByOrg(ctx context.Context, orgID string) ([]string, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, chunkCount int) error
	ReplaceChunks(ctx context.Context, documentID string, chunks []*domain.DocumentChunk) error
	ListChunksByDocuments(ctx context.Context, orgID string, documentIDs []string) ([]*domain.DocumentChunk, error)
	CountChunksByDocuments(ctx context.Context, orgID string, documentIDs []string) (int, error)
	SearchChunks(ctx context.Context, orgID string, embedding []float32, limit int) ([]*ChunkSearchResult, error)
}

// FrameworkRepositoryInterface defines the repository interface for the
// framework catalog
type FrameworkRepositoryInterface interface {
	Create(ctx context.Context, f *domain.Framework) error
	GetByID(ctx context.Context, id string) (*domain.Framework, error)
	List(ctx context.Context) ([]*domain.Framework, error)
	CreateControl(ctx context.Context, c *domain.Control) error
	ListControls(ctx context.Context, frameworkID string) ([]*domain.Control, error)
}

// AnalysisRepositoryInterface defines the repository interface for analysis
// job records
type AnalysisRepositoryInterface interface {
	Create(ctx context.Context, a *domain.Analysis) error
	GetByID(ctx context.Context, id string) (*domain.Analysis, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Analysis, error)
	MarkCompleted(ctx context.Context, a *domain.Analysis) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

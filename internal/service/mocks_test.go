package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockCorpusRepository is a mock implementation of CorpusRepositoryInterface
type MockCorpusRepository struct {
	mock.Mock
}

func (m *MockCorpusRepository) Create(ctx context.Context, c *domain.OrganizedCorpus) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCorpusRepository) CreateAttributions(ctx context.Context, entries []*domain.AttributionEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockCorpusRepository) GetByID(ctx context.Context, id string) (*domain.OrganizedCorpus, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrganizedCorpus), args.Error(1)
}

func (m *MockCorpusRepository) GetByOrgAndDigest(ctx context.Context, orgID, sourceDigest string) (*domain.OrganizedCorpus, error) {
	args := m.Called(ctx, orgID, sourceDigest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrganizedCorpus), args.Error(1)
}

func (m *MockCorpusRepository) ListAttributions(ctx context.Context, corpusID string) ([]*domain.AttributionEntry, error) {
	args := m.Called(ctx, corpusID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AttributionEntry), args.Error(1)
}

// MockEvidenceRepository is a mock implementation of EvidenceRepositoryInterface
type MockEvidenceRepository struct {
	mock.Mock
}

func (m *MockEvidenceRepository) CreateMapping(ctx context.Context, mapping *domain.EvidenceMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *MockEvidenceRepository) CreateItems(ctx context.Context, items []*domain.EvidenceItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *MockEvidenceRepository) ListMappingsByAnalysis(ctx context.Context, analysisID string) ([]*domain.EvidenceMapping, error) {
	args := m.Called(ctx, analysisID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EvidenceMapping), args.Error(1)
}

func (m *MockEvidenceRepository) ListItemsByMapping(ctx context.Context, mappingID string) ([]*domain.EvidenceItem, error) {
	args := m.Called(ctx, mappingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EvidenceItem), args.Error(1)
}

func (m *MockEvidenceRepository) ListItemsByAnalysis(ctx context.Context, analysisID string) ([]*domain.EvidenceItem, error) {
	args := m.Called(ctx, analysisID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EvidenceItem), args.Error(1)
}

// MockDocumentRepository is a mock implementation of DocumentRepositoryInterface
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Document, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) ListProcessedIDsByOrg(ctx context.Context, orgID string) ([]string, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, chunkCount int) error {
	args := m.Called(ctx, id, status, chunkCount)
	return args.Error(0)
}

func (m *MockDocumentRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []*domain.DocumentChunk) error {
	args := m.Called(ctx, documentID, chunks)
	return args.Error(0)
}

func (m *MockDocumentRepository) ListChunksByDocuments(ctx context.Context, orgID string, documentIDs []string) ([]*domain.DocumentChunk, error) {
	args := m.Called(ctx, orgID, documentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DocumentChunk), args.Error(1)
}

func (m *MockDocumentRepository) CountChunksByDocuments(ctx context.Context, orgID string, documentIDs []string) (int, error) {
	args := m.Called(ctx, orgID, documentIDs)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentRepository) SearchChunks(ctx context.Context, orgID string, embedding []float32, limit int) ([]*ChunkSearchResult, error) {
	args := m.Called(ctx, orgID, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ChunkSearchResult), args.Error(1)
}

// MockFrameworkRepository is a mock implementation of FrameworkRepositoryInterface
type MockFrameworkRepository struct {
	mock.Mock
}

func (m *MockFrameworkRepository) Create(ctx context.Context, f *domain.Framework) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockFrameworkRepository) GetByID(ctx context.Context, id string) (*domain.Framework, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Framework), args.Error(1)
}

func (m *MockFrameworkRepository) List(ctx context.Context) ([]*domain.Framework, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Framework), args.Error(1)
}

func (m *MockFrameworkRepository) CreateControl(ctx context.Context, c *domain.Control) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockFrameworkRepository) ListControls(ctx context.Context, frameworkID string) ([]*domain.Control, error) {
	args := m.Called(ctx, frameworkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Control), args.Error(1)
}

// MockAnalysisRepository is a mock implementation of AnalysisRepositoryInterface
type MockAnalysisRepository struct {
	mock.Mock
}

func (m *MockAnalysisRepository) Create(ctx context.Context, a *domain.Analysis) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAnalysisRepository) GetByID(ctx context.Context, id string) (*domain.Analysis, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Analysis), args.Error(1)
}

func (m *MockAnalysisRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Analysis, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Analysis), args.Error(1)
}

func (m *MockAnalysisRepository) MarkCompleted(ctx context.Context, a *domain.Analysis) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAnalysisRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

// MockOracle is a mock implementation of OracleInterface
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Generate(ctx context.Context, systemPrompt, userPrompt, model string, maxOutputTokens int) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt, model, maxOutputTokens)
	return args.String(0), args.Error(1)
}

func (m *MockOracle) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// fakeTxRepos hands the test's mocks back out as transactional repositories
type fakeTxRepos struct {
	corpora    CorpusRepositoryInterface
	evidence   EvidenceRepositoryInterface
	documents  DocumentRepositoryInterface
	frameworks FrameworkRepositoryInterface
}

func (r *fakeTxRepos) Corpora() CorpusRepositoryInterface       { return r.corpora }
func (r *fakeTxRepos) Evidence() EvidenceRepositoryInterface    { return r.evidence }
func (r *fakeTxRepos) Documents() DocumentRepositoryInterface   { return r.documents }
func (r *fakeTxRepos) Frameworks() FrameworkRepositoryInterface { return r.frameworks }

// fakeTxRunner runs the transaction body directly against the test's mocks
type fakeTxRunner struct {
	repos *fakeTxRepos
	err   error
}

func (r *fakeTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	if r.err != nil {
		return r.err
	}
	return fn(r.repos)
}

// passRetryer runs the operation once without retrying
type passRetryer struct{}

func (passRetryer) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	return op(ctx)
}

// seqUUID generates deterministic sequential UUIDs
type seqUUID struct {
	n int
}

func (g *seqUUID) NewString() string {
	g.n++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.n)
}

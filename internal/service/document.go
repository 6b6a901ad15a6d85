package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/cloo-solutions/attestai/internal/storage"
	"github.com/cloo-solutions/attestai/internal/telemetry"
)

// ObjectStorageInterface is the subset of the object store the document
// service needs
type ObjectStorageInterface interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error)
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
	HeadObject(ctx context.Context, key string) (*storage.ObjectMetadata, error)
}

// EmbeddingGeneratorInterface embeds chunk text for similarity search.
// Optional: when nil, chunks are ingested without embeddings and search is
// unavailable for them.
type EmbeddingGeneratorInterface interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkIngest is one classified chunk delivered by the document-intelligence
// collaborator
type ChunkIngest struct {
	ChunkIndex     int
	PageNumber     int
	Topic          string
	Category       string
	RelevanceScore int
	Text           string
}

// DocumentService manages evidence documents: presigned upload, upload
// confirmation and classified chunk ingestion. The document bytes never flow
// through this service, only through presigned URLs.
type DocumentService struct {
	documents DocumentRepositoryInterface
	storage   ObjectStorageInterface
	embedder  EmbeddingGeneratorInterface
	txRunner  TxRunnerInterface
	retryer   StoreRetryer
	uuidGen   UUIDGenerator
	now       func() time.Time
}

// NewDocumentService creates a new DocumentService. embedder may be nil.
func NewDocumentService(documents DocumentRepositoryInterface, store ObjectStorageInterface, embedder EmbeddingGeneratorInterface, txRunner TxRunnerInterface, retryer StoreRetryer) *DocumentService {
	return &DocumentService{
		documents: documents,
		storage:   store,
		embedder:  embedder,
		txRunner:  txRunner,
		retryer:   retryer,
		uuidGen:   &DefaultUUIDGenerator{},
		now:       time.Now,
	}
}

// InitUploadResult carries the new document and its presigned upload URL
type InitUploadResult struct {
	Document  *domain.Document
	UploadURL string
}

// InitUpload registers a pending document and returns a presigned PUT URL
// the client uploads against.
func (s *DocumentService) InitUpload(ctx context.Context, orgID, name, contentType string) (*InitUploadResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "document.init_upload", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "init_upload",
	})
	defer span.End()

	if s.storage == nil {
		return nil, domain.ErrStorageNotConfigured
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document name is required")
	}

	now := s.now().UTC()
	doc := &domain.Document{
		ID:          s.uuidGen.NewString(),
		OrgID:       orgID,
		Name:        name,
		ContentType: contentType,
		Status:      domain.DocumentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	doc.StorageKey = storage.ObjectKey(orgID, doc.ID, name)

	uploadURL, err := s.storage.GenerateUploadURL(ctx, doc.StorageKey, contentType)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to generate upload URL: %w", err)
	}

	err = s.retryer.Do(ctx, "document.create", func(ctx context.Context) error {
		return s.documents.Create(ctx, doc)
	})
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	return &InitUploadResult{Document: doc, UploadURL: uploadURL}, nil
}

// CompleteUpload verifies the object landed in storage and marks the
// document uploaded.
func (s *DocumentService) CompleteUpload(ctx context.Context, orgID, documentID string) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "document.complete_upload", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "complete_upload",
	})
	defer span.End()

	if s.storage == nil {
		return nil, domain.ErrStorageNotConfigured
	}

	doc, err := s.get(ctx, orgID, documentID)
	if err != nil {
		return nil, err
	}

	meta, err := s.storage.HeadObject(ctx, doc.StorageKey)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodePrecondition, "uploaded object not found in storage", err)
	}

	doc.SizeBytes = meta.ContentLength
	doc.Status = domain.DocumentStatusUploaded
	doc.UpdatedAt = s.now().UTC()

	err = s.retryer.Do(ctx, "document.mark_uploaded", func(ctx context.Context) error {
		return s.documents.UpdateStatus(ctx, doc.ID, domain.DocumentStatusUploaded, doc.ChunkCount)
	})
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to mark document uploaded: %w", err)
	}

	return doc, nil
}

// IngestChunks replaces the document's classified chunks and marks it
// processed. Chunks arrive pre-classified; embeddings are computed here when
// an embedder is configured.
func (s *DocumentService) IngestChunks(ctx context.Context, orgID, documentID string, ingest []ChunkIngest) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "document.ingest_chunks", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "ingest_chunks",
	})
	defer span.End()

	doc, err := s.get(ctx, orgID, documentID)
	if err != nil {
		return nil, err
	}
	if len(ingest) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "at least one chunk is required")
	}

	now := s.now().UTC()
	chunks := make([]*domain.DocumentChunk, 0, len(ingest))
	for _, in := range ingest {
		chunk := &domain.DocumentChunk{
			ID:             s.uuidGen.NewString(),
			DocumentID:     doc.ID,
			OrgID:          orgID,
			ChunkIndex:     in.ChunkIndex,
			PageNumber:     in.PageNumber,
			Topic:          in.Topic,
			Category:       in.Category,
			RelevanceScore: in.RelevanceScore,
			Text:           in.Text,
			CreatedAt:      now,
		}
		if err := domain.ValidateDocumentChunk(chunk); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid chunk", err)
		}
		if s.embedder != nil {
			embedding, err := s.embedder.GenerateEmbedding(ctx, in.Text)
			if err != nil {
				// Search degrades for this chunk; ingestion continues.
				telemetry.CaptureError(ctx, err)
			} else {
				chunk.Embedding = embedding
			}
		}
		chunks = append(chunks, chunk)
	}

	err = s.retryer.Do(ctx, "document.ingest", func(ctx context.Context) error {
		return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			if err := repos.Documents().ReplaceChunks(ctx, doc.ID, chunks); err != nil {
				return err
			}
			return repos.Documents().UpdateStatus(ctx, doc.ID, domain.DocumentStatusProcessed, len(chunks))
		})
	})
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to ingest chunks: %w", err)
	}

	doc.Status = domain.DocumentStatusProcessed
	doc.ChunkCount = len(chunks)
	doc.UpdatedAt = now
	return doc, nil
}

// List returns the organization's documents, newest first
func (s *DocumentService) List(ctx context.Context, orgID string) ([]*domain.Document, error) {
	return s.documents.ListByOrg(ctx, orgID)
}

// Get returns one document scoped to the organization
func (s *DocumentService) Get(ctx context.Context, orgID, documentID string) (*domain.Document, error) {
	return s.get(ctx, orgID, documentID)
}

// GetDownloadURL returns a presigned GET URL for the document's object
func (s *DocumentService) GetDownloadURL(ctx context.Context, orgID, documentID string) (string, error) {
	if s.storage == nil {
		return "", domain.ErrStorageNotConfigured
	}

	doc, err := s.get(ctx, orgID, documentID)
	if err != nil {
		return "", err
	}
	if doc.Status == domain.DocumentStatusPending {
		return "", domain.NewDomainError(domain.ErrCodePrecondition, "document upload has not completed")
	}

	url, err := s.storage.GenerateDownloadURL(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}
	return url, nil
}

func (s *DocumentService) get(ctx context.Context, orgID, documentID string) (*domain.Document, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OrgID != orgID {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/cloo-solutions/attestai/internal/telemetry"
)

const defaultSearchLimit = 10

// SearchService answers free-text questions against the organization's
// evidence chunks by embedding the query and ranking chunks by cosine
// similarity.
type SearchService struct {
	documents DocumentRepositoryInterface
	embedder  EmbeddingGeneratorInterface
}

// NewSearchService creates a new SearchService. embedder may be nil, in
// which case every search reports the provider as unconfigured.
func NewSearchService(documents DocumentRepositoryInterface, embedder EmbeddingGeneratorInterface) *SearchService {
	return &SearchService{documents: documents, embedder: embedder}
}

// Search returns the evidence chunks most similar to the query
func (s *SearchService) Search(ctx context.Context, orgID, query string, limit int) ([]*ChunkSearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "search.search", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "search",
	})
	defer span.End()

	if s.embedder == nil {
		return nil, domain.ErrSearchNotConfigured
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "search query is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.documents.SearchChunks(ctx, orgID, embedding, limit)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	return results, nil
}

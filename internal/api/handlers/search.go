package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/attestai/internal/api"
	"github.com/cloo-solutions/attestai/internal/api/middleware"
	"github.com/cloo-solutions/attestai/internal/service"
)

// SearchService defines the semantic search operations the handler depends on
type SearchService interface {
	Search(ctx context.Context, orgID, query string, limit int) ([]*service.ChunkSearchResult, error)
}

// SearchHandler handles evidence search endpoints
type SearchHandler struct {
	svc SearchService
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// SearchRequest represents the request body for evidence search
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResultResponse represents one matching chunk in API responses
type SearchResultResponse struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	PageNumber   int     `json:"page_number,omitempty"`
	Topic        string  `json:"topic,omitempty"`
	Category     string  `json:"category,omitempty"`
	Text         string  `json:"text"`
	Similarity   float64 `json:"similarity"`
}

// Search handles POST /v1/evidence/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.svc.Search(r.Context(), orgID, req.Query, req.Limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]SearchResultResponse, 0, len(results))
	for _, result := range results {
		responses = append(responses, SearchResultResponse{
			DocumentID:   result.Chunk.DocumentID,
			DocumentName: result.DocumentName,
			ChunkIndex:   result.Chunk.ChunkIndex,
			PageNumber:   result.Chunk.PageNumber,
			Topic:        result.Chunk.Topic,
			Category:     result.Chunk.Category,
			Text:         result.Chunk.Text,
			Similarity:   result.Similarity,
		})
	}

	api.Success(w, http.StatusOK, responses)
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/attestai/internal/api"
	"github.com/cloo-solutions/attestai/internal/api/middleware"
	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/cloo-solutions/attestai/internal/service"
	"github.com/go-chi/chi/v5"
)

// DocumentService defines the document operations the handler depends on
type DocumentService interface {
	InitUpload(ctx context.Context, orgID, name, contentType string) (*service.InitUploadResult, error)
	CompleteUpload(ctx context.Context, orgID, documentID string) (*domain.Document, error)
	IngestChunks(ctx context.Context, orgID, documentID string, ingest []service.ChunkIngest) (*domain.Document, error)
	List(ctx context.Context, orgID string) ([]*domain.Document, error)
	Get(ctx context.Context, orgID, documentID string) (*domain.Document, error)
	GetDownloadURL(ctx context.Context, orgID, documentID string) (string, error)
}

// DocumentHandler handles evidence document endpoints
type DocumentHandler struct {
	svc DocumentService
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// InitUploadRequest represents the request body for registering an upload
type InitUploadRequest struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
}

// ChunkIngestRequest represents one classified chunk in an ingestion payload
type ChunkIngestRequest struct {
	ChunkIndex     int    `json:"chunk_index"`
	PageNumber     int    `json:"page_number,omitempty"`
	Topic          string `json:"topic,omitempty"`
	Category       string `json:"category,omitempty"`
	RelevanceScore int    `json:"relevance_score"`
	Text           string `json:"text"`
}

// IngestChunksRequest represents the request body for chunk ingestion
type IngestChunksRequest struct {
	Chunks []ChunkIngestRequest `json:"chunks"`
}

// DocumentResponse represents a document in API responses
type DocumentResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	Status      string `json:"status"`
	ChunkCount  int    `json:"chunk_count"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// InitUploadResponse represents the response for a registered upload
type InitUploadResponse struct {
	Document  DocumentResponse `json:"document"`
	UploadURL string           `json:"upload_url"`
}

// DownloadURLResponse represents a presigned download link
type DownloadURLResponse struct {
	DownloadURL string `json:"download_url"`
}

func documentToResponse(d *domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:          d.ID,
		Name:        d.Name,
		ContentType: d.ContentType,
		SizeBytes:   d.SizeBytes,
		Status:      string(d.Status),
		ChunkCount:  d.ChunkCount,
		CreatedAt:   d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// InitUpload handles POST /v1/documents
func (h *DocumentHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	var req InitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	result, err := h.svc.InitUpload(r.Context(), orgID, req.Name, req.ContentType)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, InitUploadResponse{
		Document:  documentToResponse(result.Document),
		UploadURL: result.UploadURL,
	})
}

// CompleteUpload handles POST /v1/documents/{documentID}/complete
func (h *DocumentHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	documentID := chi.URLParam(r, "documentID")
	doc, err := h.svc.CompleteUpload(r.Context(), orgID, documentID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

// IngestChunks handles POST /v1/documents/{documentID}/chunks
func (h *DocumentHandler) IngestChunks(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	var req IngestChunksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Chunks) == 0 {
		api.Error(w, http.StatusBadRequest, "chunks are required")
		return
	}

	ingest := make([]service.ChunkIngest, 0, len(req.Chunks))
	for _, c := range req.Chunks {
		ingest = append(ingest, service.ChunkIngest{
			ChunkIndex:     c.ChunkIndex,
			PageNumber:     c.PageNumber,
			Topic:          c.Topic,
			Category:       c.Category,
			RelevanceScore: c.RelevanceScore,
			Text:           c.Text,
		})
	}

	documentID := chi.URLParam(r, "documentID")
	doc, err := h.svc.IngestChunks(r.Context(), orgID, documentID, ingest)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

// List handles GET /v1/documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	docs, err := h.svc.List(r.Context(), orgID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		responses = append(responses, documentToResponse(d))
	}

	api.Success(w, http.StatusOK, responses)
}

// Get handles GET /v1/documents/{documentID}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	documentID := chi.URLParam(r, "documentID")
	doc, err := h.svc.Get(r.Context(), orgID, documentID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

// GetDownloadURL handles GET /v1/documents/{documentID}/download
func (h *DocumentHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	documentID := chi.URLParam(r, "documentID")
	url, err := h.svc.GetDownloadURL(r.Context(), orgID, documentID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DownloadURLResponse{DownloadURL: url})
}

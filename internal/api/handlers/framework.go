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

// FrameworkService defines the framework catalog operations the handler
// depends on
type FrameworkService interface {
	Import(ctx context.Context, name, version, description string, controls []service.ControlImport) (*domain.Framework, error)
	List(ctx context.Context) ([]*domain.Framework, error)
	Get(ctx context.Context, id string) (*domain.Framework, []*domain.Control, error)
}

// FrameworkHandler handles framework catalog endpoints
type FrameworkHandler struct {
	svc FrameworkService
}

// NewFrameworkHandler creates a new FrameworkHandler
func NewFrameworkHandler(svc FrameworkService) *FrameworkHandler {
	return &FrameworkHandler{svc: svc}
}

// ControlImportRequest represents one control in a framework import payload
type ControlImportRequest struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Requirement string `json:"requirement"`
	Category    string `json:"category,omitempty"`
}

// ImportFrameworkRequest represents the request body for importing a framework
type ImportFrameworkRequest struct {
	Name        string                 `json:"name"`
	Version     string                 `json:"version,omitempty"`
	Description string                 `json:"description,omitempty"`
	Controls    []ControlImportRequest `json:"controls"`
}

// FrameworkResponse represents a framework in API responses
type FrameworkResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Version      string `json:"version,omitempty"`
	Description  string `json:"description,omitempty"`
	ControlCount int    `json:"control_count,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// ControlResponse represents a control in API responses
type ControlResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Title       string `json:"title"`
	Requirement string `json:"requirement"`
	Category    string `json:"category,omitempty"`
}

// FrameworkDetailResponse represents a framework with its control catalog
type FrameworkDetailResponse struct {
	Framework FrameworkResponse `json:"framework"`
	Controls  []ControlResponse `json:"controls"`
}

func frameworkToResponse(f *domain.Framework) FrameworkResponse {
	return FrameworkResponse{
		ID:          f.ID,
		Name:        f.Name,
		Version:     f.Version,
		Description: f.Description,
		CreatedAt:   f.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func controlToResponse(c *domain.Control) ControlResponse {
	return ControlResponse{
		ID:          c.ID,
		Code:        c.Code,
		Title:       c.Title,
		Requirement: c.Requirement,
		Category:    c.Category,
	}
}

// Import handles POST /v1/frameworks
func (h *FrameworkHandler) Import(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	var req ImportFrameworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Controls) == 0 {
		api.Error(w, http.StatusBadRequest, "controls are required")
		return
	}

	controls := make([]service.ControlImport, 0, len(req.Controls))
	for _, c := range req.Controls {
		controls = append(controls, service.ControlImport{
			Code:        c.Code,
			Title:       c.Title,
			Requirement: c.Requirement,
			Category:    c.Category,
		})
	}

	framework, err := h.svc.Import(r.Context(), req.Name, req.Version, req.Description, controls)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := frameworkToResponse(framework)
	resp.ControlCount = len(controls)
	api.Success(w, http.StatusCreated, resp)
}

// List handles GET /v1/frameworks
func (h *FrameworkHandler) List(w http.ResponseWriter, r *http.Request) {
	frameworks, err := h.svc.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]FrameworkResponse, 0, len(frameworks))
	for _, f := range frameworks {
		responses = append(responses, frameworkToResponse(f))
	}

	api.Success(w, http.StatusOK, responses)
}

// Get handles GET /v1/frameworks/{frameworkID}
func (h *FrameworkHandler) Get(w http.ResponseWriter, r *http.Request) {
	frameworkID := chi.URLParam(r, "frameworkID")
	framework, controls, err := h.svc.Get(r.Context(), frameworkID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := FrameworkDetailResponse{
		Framework: frameworkToResponse(framework),
		Controls:  make([]ControlResponse, 0, len(controls)),
	}
	resp.Framework.ControlCount = len(controls)
	for _, c := range controls {
		resp.Controls = append(resp.Controls, controlToResponse(c))
	}

	api.Success(w, http.StatusOK, resp)
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cloo-solutions/attestai/internal/api"
	"github.com/cloo-solutions/attestai/internal/api/middleware"
	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/cloo-solutions/attestai/internal/progress"
	"github.com/cloo-solutions/attestai/internal/service"
	"github.com/go-chi/chi/v5"
)

// AnalysisService defines the analysis operations the handler depends on
type AnalysisService interface {
	Start(ctx context.Context, req service.StartAnalysisRequest) (*domain.Analysis, error)
	Get(ctx context.Context, orgID, analysisID string) (*domain.Analysis, error)
	List(ctx context.Context, orgID string) ([]*domain.Analysis, error)
	GetReport(ctx context.Context, orgID, analysisID string) (*service.AnalysisReport, error)
}

// ProgressStream is the subscription side of the in-process progress channel
type ProgressStream interface {
	Subscribe(analysisID string) *progress.Subscription
	Unsubscribe(analysisID string, sub *progress.Subscription)
	SeedIfAbsent(analysisID string, state domain.ProgressState)
}

// AnalysisHandler handles analysis endpoints
type AnalysisHandler struct {
	svc    AnalysisService
	stream ProgressStream
}

// NewAnalysisHandler creates a new AnalysisHandler
func NewAnalysisHandler(svc AnalysisService, stream ProgressStream) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, stream: stream}
}

// CreateAnalysisRequest represents the request body for starting an analysis
type CreateAnalysisRequest struct {
	FrameworkID string   `json:"framework_id"`
	Model       string   `json:"model,omitempty"`
	ControlIDs  []string `json:"control_ids,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// AnalysisResponse represents an analysis in API responses
type AnalysisResponse struct {
	ID                string  `json:"id"`
	FrameworkID       string  `json:"framework_id"`
	Model             string  `json:"model"`
	Status            string  `json:"status"`
	TotalControls     int     `json:"total_controls"`
	CompliantCount    int     `json:"compliant_count"`
	PartialCount      int     `json:"partial_count"`
	MissingCount      int     `json:"missing_count"`
	AverageConfidence int     `json:"average_confidence"`
	Error             string  `json:"error,omitempty"`
	StartedAt         string  `json:"started_at"`
	CompletedAt       *string `json:"completed_at,omitempty"`
	DurationMS        int64   `json:"duration_ms,omitempty"`
}

// EvidenceItemResponse represents one cited snippet in API responses
type EvidenceItemResponse struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	DocumentID   string `json:"document_id,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	PageNumber   int    `json:"page_number,omitempty"`
	ChunkIndex   int    `json:"chunk_index,omitempty"`
	Confidence   int    `json:"confidence"`
	Relevance    int    `json:"relevance"`
	Attributed   bool   `json:"attributed"`
}

// ControlResultResponse represents one control verdict in a report
type ControlResultResponse struct {
	ControlID  string                 `json:"control_id"`
	Status     string                 `json:"status"`
	Confidence int                    `json:"confidence"`
	Reasoning  string                 `json:"reasoning"`
	Evidence   []EvidenceItemResponse `json:"evidence"`
}

// ReportResponse represents the full analysis report
type ReportResponse struct {
	Analysis AnalysisResponse        `json:"analysis"`
	Results  []ControlResultResponse `json:"results"`
}

func analysisToResponse(a *domain.Analysis) AnalysisResponse {
	resp := AnalysisResponse{
		ID:                a.ID,
		FrameworkID:       a.FrameworkID,
		Model:             a.Model,
		Status:            string(a.Status),
		TotalControls:     a.TotalControls,
		CompliantCount:    a.CompliantCount,
		PartialCount:      a.PartialCount,
		MissingCount:      a.MissingCount,
		AverageConfidence: a.AverageConfidence,
		Error:             a.Error,
		StartedAt:         a.StartedAt.Format("2006-01-02T15:04:05Z"),
		DurationMS:        a.DurationMS,
	}
	if a.CompletedAt != nil {
		completed := a.CompletedAt.Format("2006-01-02T15:04:05Z")
		resp.CompletedAt = &completed
	}
	return resp
}

func reportToResponse(report *service.AnalysisReport) ReportResponse {
	resp := ReportResponse{
		Analysis: analysisToResponse(report.Analysis),
		Results:  make([]ControlResultResponse, 0, len(report.Results)),
	}
	for _, result := range report.Results {
		cr := ControlResultResponse{
			ControlID:  result.Mapping.ControlID,
			Status:     string(result.Mapping.Status),
			Confidence: result.Mapping.Confidence,
			Reasoning:  result.Mapping.Reasoning,
			Evidence:   make([]EvidenceItemResponse, 0, len(result.Items)),
		}
		for _, item := range result.Items {
			cr.Evidence = append(cr.Evidence, EvidenceItemResponse{
				ID:           item.ID,
				Text:         item.Text,
				DocumentID:   item.DocumentID,
				DocumentName: item.DocumentName,
				PageNumber:   item.PageNumber,
				ChunkIndex:   item.ChunkIndex,
				Confidence:   item.Confidence,
				Relevance:    item.Relevance,
				Attributed:   item.Attributed,
			})
		}
		resp.Results = append(resp.Results, cr)
	}
	return resp
}

// Create handles POST /v1/analyses
func (h *AnalysisHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	var req CreateAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.FrameworkID == "" {
		api.Error(w, http.StatusBadRequest, "framework_id is required")
		return
	}

	analysis, err := h.svc.Start(r.Context(), service.StartAnalysisRequest{
		OrgID:       orgID,
		FrameworkID: req.FrameworkID,
		Model:       req.Model,
		ControlIDs:  req.ControlIDs,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, analysisToResponse(analysis))
}

// Get handles GET /v1/analyses/{analysisID}
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	analysisID := chi.URLParam(r, "analysisID")
	analysis, err := h.svc.Get(r.Context(), orgID, analysisID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, analysisToResponse(analysis))
}

// List handles GET /v1/analyses
func (h *AnalysisHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	analyses, err := h.svc.List(r.Context(), orgID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]AnalysisResponse, 0, len(analyses))
	for _, a := range analyses {
		responses = append(responses, analysisToResponse(a))
	}

	api.Success(w, http.StatusOK, responses)
}

// GetReport handles GET /v1/analyses/{analysisID}/report
func (h *AnalysisHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	analysisID := chi.URLParam(r, "analysisID")
	report, err := h.svc.GetReport(r.Context(), orgID, analysisID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, reportToResponse(report))
}

// Progress handles GET /v1/analyses/{analysisID}/progress as a Server-Sent
// Events stream. The first event is always the latest known snapshot; the
// stream closes after a terminal stage is delivered or the client disconnects.
func (h *AnalysisHandler) Progress(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "organization ID not found in context")
		return
	}

	analysisID := chi.URLParam(r, "analysisID")
	analysis, err := h.svc.Get(r.Context(), orgID, analysisID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	// A job run by another process (or a previous one) has no registry state.
	// Rehydrate a snapshot from the persisted row so subscribers still get a
	// meaningful, possibly terminal, first event.
	h.stream.SeedIfAbsent(analysisID, progressFromAnalysis(analysis))

	sub := h.stream.Subscribe(analysisID)
	defer h.stream.Unsubscribe(analysisID, sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case state, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(state)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			if err := rc.Flush(); err != nil {
				return
			}
			if state.Stage == domain.StageCompleted || state.Stage == domain.StageFailed {
				return
			}
		}
	}
}

// progressFromAnalysis reconstructs a progress snapshot from the durable row.
// Interim results are not recoverable; clients wanting per-control detail for
// a finished job fetch the report instead.
func progressFromAnalysis(a *domain.Analysis) domain.ProgressState {
	state := domain.ProgressState{
		AnalysisID:     a.ID,
		ControlsTotal:  a.TotalControls,
		CompliantCount: a.CompliantCount,
		PartialCount:   a.PartialCount,
		MissingCount:   a.MissingCount,
		UpdatedAt:      a.StartedAt,
	}

	switch a.Status {
	case domain.AnalysisStatusCompleted:
		state.Stage = domain.StageCompleted
		state.Percent = 100
		state.Message = "analysis completed"
		state.ControlsDone = a.TotalControls
	case domain.AnalysisStatusFailed:
		state.Stage = domain.StageFailed
		state.Percent = 100
		state.Message = a.Error
	default:
		state.Stage = domain.StageEvaluating
		state.Message = "analysis in progress"
	}

	if a.CompletedAt != nil {
		state.UpdatedAt = *a.CompletedAt
	}
	return state
}

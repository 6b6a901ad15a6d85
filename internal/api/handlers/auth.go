package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/attestai/internal/api"
	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/go-chi/chi/v5"
)

// AuthService defines the organization and API key operations the handler
// depends on
type AuthService interface {
	CreateOrganization(ctx context.Context, name string) (*domain.Organization, error)
	CreateAPIKey(ctx context.Context, orgID, name string) (*domain.APIKey, string, error)
	RevokeAPIKey(ctx context.Context, keyID string) error
}

// AuthHandler handles organization and API key bootstrap endpoints
type AuthHandler struct {
	svc AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// CreateOrgRequest represents the request body for creating an organization
type CreateOrgRequest struct {
	Name string `json:"name"`
}

// OrgResponse represents an organization in API responses
type OrgResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// CreateAPIKeyRequest represents the request body for issuing an API key
type CreateAPIKeyRequest struct {
	OrgID string `json:"org_id"`
	Name  string `json:"name"`
}

// APIKeyResponse represents an issued API key. The token is only ever
// returned here; the server stores a hash.
type APIKeyResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

// CreateOrg handles POST /orgs
func (h *AuthHandler) CreateOrg(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	org, err := h.svc.CreateOrganization(r.Context(), req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, OrgResponse{
		ID:        org.ID,
		Name:      org.Name,
		CreatedAt: org.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// CreateAPIKey handles POST /apikeys
func (h *AuthHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OrgID == "" {
		api.Error(w, http.StatusBadRequest, "org_id is required")
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	key, token, err := h.svc.CreateAPIKey(r.Context(), req.OrgID, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, APIKeyResponse{
		ID:    key.ID,
		Name:  key.Name,
		Token: token,
	})
}

// RevokeAPIKey handles DELETE /apikeys/{keyID}
func (h *AuthHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyID")
	if err := h.svc.RevokeAPIKey(r.Context(), keyID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"status": "revoked"})
}

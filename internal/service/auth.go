package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/attestai/internal/domain"
)

// API tokens look like att_<64 hex chars>. Only the SHA-256 hash of the full
// token is stored; the plaintext is shown exactly once at creation.
const (
	apiTokenPrefix    = "att_"
	apiTokenRandBytes = 32
)

// OrgRepositoryInterface defines the repository interface for organizations
type OrgRepositoryInterface interface {
	Create(ctx context.Context, org *domain.Organization) error
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	GetByName(ctx context.Context, name string) (*domain.Organization, error)
}

// APIKeyRepositoryInterface defines the repository interface for API keys
type APIKeyRepositoryInterface interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
}

// AuthService manages organizations and their API keys and validates the
// bearer tokens presented by API clients.
type AuthService struct {
	orgs    OrgRepositoryInterface
	apiKeys APIKeyRepositoryInterface
	uuidGen UUIDGenerator
	now     func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(orgs OrgRepositoryInterface, apiKeys APIKeyRepositoryInterface) *AuthService {
	return &AuthService{
		orgs:    orgs,
		apiKeys: apiKeys,
		uuidGen: &DefaultUUIDGenerator{},
		now:     time.Now,
	}
}

// CreateOrganization creates a new tenant
func (s *AuthService) CreateOrganization(ctx context.Context, name string) (*domain.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "organization name is required")
	}

	if _, err := s.orgs.GetByName(ctx, name); err == nil {
		return nil, domain.ErrOrganizationAlreadyExists
	}

	org := &domain.Organization{
		ID:        s.uuidGen.NewString(),
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return org, nil
}

// CreateAPIKey mints a new API token for the organization. The plaintext
// token is returned once and never stored.
func (s *AuthService) CreateAPIKey(ctx context.Context, orgID, name string) (*domain.APIKey, string, error) {
	if _, err := s.orgs.GetByID(ctx, orgID); err != nil {
		return nil, "", err
	}

	token, err := generateAPIToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	key := &domain.APIKey{
		ID:        s.uuidGen.NewString(),
		OrgID:     orgID,
		Name:      name,
		KeyHash:   HashAPIToken(token),
		CreatedAt: s.now().UTC(),
	}
	if err := s.apiKeys.Create(ctx, key); err != nil {
		return nil, "", fmt.Errorf("failed to create api key: %w", err)
	}
	return key, token, nil
}

// CreateAPIKeyWithToken stores a key for a caller-supplied token. Used by the
// startup bootstrap so deployments can pin a known token via configuration.
func (s *AuthService) CreateAPIKeyWithToken(ctx context.Context, orgID, name, token string) error {
	if !IsValidAPIToken(token) {
		return domain.NewDomainError(domain.ErrCodeValidation, "malformed api token")
	}
	if _, err := s.orgs.GetByID(ctx, orgID); err != nil {
		return err
	}

	key := &domain.APIKey{
		ID:        s.uuidGen.NewString(),
		OrgID:     orgID,
		Name:      name,
		KeyHash:   HashAPIToken(token),
		CreatedAt: s.now().UTC(),
	}
	if err := s.apiKeys.Create(ctx, key); err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// GetAPIKeyByToken looks up the key record for a plaintext token
func (s *AuthService) GetAPIKeyByToken(ctx context.Context, token string) (*domain.APIKey, error) {
	return s.apiKeys.GetByHash(ctx, HashAPIToken(token))
}

// RevokeAPIKey permanently revokes one API key
func (s *AuthService) RevokeAPIKey(ctx context.Context, id string) error {
	return s.apiKeys.Revoke(ctx, id)
}

// ValidateAPIKey resolves a presented token to its organization. Returns
// ErrInvalidAPIKey for malformed or unknown tokens and ErrAPIKeyRevoked for
// revoked ones.
func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (*domain.APIKey, error) {
	if !IsValidAPIToken(token) {
		return nil, domain.ErrInvalidAPIKey
	}

	key, err := s.apiKeys.GetByHash(ctx, HashAPIToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return nil, domain.ErrInvalidAPIKey
		}
		return nil, err
	}
	if key.IsRevoked() {
		return nil, domain.ErrAPIKeyRevoked
	}
	return key, nil
}

// IsValidAPIToken checks the token shape without touching storage
func IsValidAPIToken(token string) bool {
	if !strings.HasPrefix(token, apiTokenPrefix) {
		return false
	}
	body := token[len(apiTokenPrefix):]
	if len(body) != apiTokenRandBytes*2 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}

// HashAPIToken returns the hex SHA-256 digest stored for a token
func HashAPIToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateAPIToken() (string, error) {
	buf := make([]byte, apiTokenRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiTokenPrefix + hex.EncodeToString(buf), nil
}

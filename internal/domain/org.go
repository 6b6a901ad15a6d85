package domain

import (
	"fmt"
	"time"
)

// Organization represents a tenant. Every document, framework assignment and
// analysis is scoped to exactly one organization.
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// APIKey represents a hashed API key belonging to an organization
type APIKey struct {
	ID        string
	OrgID     string
	Name      string
	KeyHash   string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// IsRevoked reports whether the key has been revoked
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// ValidateOrganization validates an Organization instance
func ValidateOrganization(o *Organization) error {
	if o == nil {
		return fmt.Errorf("organization cannot be nil")
	}

	if o.ID == "" {
		return fmt.Errorf("organization ID is required")
	}

	if o.Name == "" {
		return fmt.Errorf("organization Name is required")
	}

	return nil
}

// ValidateAPIKey validates an APIKey instance
func ValidateAPIKey(k *APIKey) error {
	if k == nil {
		return fmt.Errorf("api key cannot be nil")
	}

	if k.ID == "" {
		return fmt.Errorf("api key ID is required")
	}

	if k.OrgID == "" {
		return fmt.Errorf("api key OrgID is required")
	}

	if k.KeyHash == "" {
		return fmt.Errorf("api key KeyHash is required")
	}

	return nil
}

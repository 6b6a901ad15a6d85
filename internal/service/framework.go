package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/cloo-solutions/attestai/internal/telemetry"
)

// ControlImport is one checklist requirement in a framework import payload
type ControlImport struct {
	Code        string
	Title       string
	Requirement string
	Category    string
}

// FrameworkService manages the control catalog. Frameworks are curated,
// shared across organizations and read-only once imported.
type FrameworkService struct {
	frameworks FrameworkRepositoryInterface
	txRunner   TxRunnerInterface
	retryer    StoreRetryer
	uuidGen    UUIDGenerator
	now        func() time.Time
}

// NewFrameworkService creates a new FrameworkService
func NewFrameworkService(frameworks FrameworkRepositoryInterface, txRunner TxRunnerInterface, retryer StoreRetryer) *FrameworkService {
	return &FrameworkService{
		frameworks: frameworks,
		txRunner:   txRunner,
		retryer:    retryer,
		uuidGen:    &DefaultUUIDGenerator{},
		now:        time.Now,
	}
}

// Import creates a framework and its full control catalog in one transaction
func (s *FrameworkService) Import(ctx context.Context, name, version, description string, controls []ControlImport) (*domain.Framework, error) {
	ctx, span := telemetry.StartSpan(ctx, "framework.import", telemetry.SpanAttributes{
		Operation: "import",
	})
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "framework name is required")
	}
	if len(controls) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "at least one control is required")
	}

	framework := &domain.Framework{
		ID:          s.uuidGen.NewString(),
		Name:        name,
		Version:     version,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}

	seen := make(map[string]bool, len(controls))
	catalog := make([]*domain.Control, 0, len(controls))
	for _, in := range controls {
		code := strings.TrimSpace(in.Code)
		if code == "" {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, "control code is required")
		}
		if seen[code] {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("duplicate control code %q", code))
		}
		seen[code] = true

		control := &domain.Control{
			ID:          s.uuidGen.NewString(),
			FrameworkID: framework.ID,
			Code:        code,
			Title:       in.Title,
			Requirement: in.Requirement,
			Category:    in.Category,
			CreatedAt:   framework.CreatedAt,
		}
		if err := domain.ValidateControl(control); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, fmt.Sprintf("invalid control %s", code), err)
		}
		catalog = append(catalog, control)
	}

	err := s.retryer.Do(ctx, "framework.import", func(ctx context.Context) error {
		return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			if err := repos.Frameworks().Create(ctx, framework); err != nil {
				return err
			}
			for _, control := range catalog {
				if err := repos.Frameworks().CreateControl(ctx, control); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to import framework: %w", err)
	}

	return framework, nil
}

// List returns every framework in the catalog
func (s *FrameworkService) List(ctx context.Context) ([]*domain.Framework, error) {
	return s.frameworks.List(ctx)
}

// Get returns one framework with its controls in catalog order
func (s *FrameworkService) Get(ctx context.Context, id string) (*domain.Framework, []*domain.Control, error) {
	framework, err := s.frameworks.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	controls, err := s.frameworks.ListControls(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list controls: %w", err)
	}
	return framework, controls, nil
}

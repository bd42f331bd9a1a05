package services

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// PolicyService is the retry policy registry.
type PolicyService struct {
	repo   application.PolicyRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewPolicyService(repo application.PolicyRepository, logger *slog.Logger) *PolicyService {
	return &PolicyService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *PolicyService) List(ctx context.Context) ([]*domain.RetryPolicy, error) {
	policies, err := s.repo.List(ctx)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	slices.SortFunc(policies, func(a, b *domain.RetryPolicy) int {
		return cmp.Or(cmp.Compare(a.Priority, b.Priority), cmp.Compare(a.ID, b.ID))
	})
	return policies, nil
}

func (s *PolicyService) Get(ctx context.Context, id string) (*domain.RetryPolicy, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPolicyNotFound) {
			return nil, application.NewNotFoundError(err)
		}
		return nil, application.NewInternalError(err)
	}
	return p, nil
}

// Update creates or replaces a policy. Existing attempts keep the max retries
// they copied at creation.
func (s *PolicyService) Update(ctx context.Context, p *domain.RetryPolicy) (*domain.RetryPolicy, error) {
	if err := p.Validate(); err != nil {
		return nil, application.NewInvalidInputError(err)
	}
	p.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, application.NewInternalError(err)
	}
	s.logger.Info("retry policy saved",
		"policy_id", p.ID,
		"enabled", p.Enabled,
		"max_attempts", p.MaxAttempts)
	return p, nil
}

func (s *PolicyService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrPolicyNotFound) {
			return application.NewNotFoundError(err)
		}
		return application.NewInternalError(err)
	}
	s.logger.Info("retry policy deleted", "policy_id", id)
	return nil
}

// Select returns the policy for a method/reason pair, or nil when none applies.
func (s *PolicyService) Select(ctx context.Context, method domain.PaymentMethod, reason domain.FailureReason) (*domain.RetryPolicy, error) {
	policies, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return domain.SelectPolicy(policies, method, reason), nil
}

// Lookup finds a policy by id, returning nil without error if it was deleted.
func (s *PolicyService) Lookup(ctx context.Context, id string) (*domain.RetryPolicy, error) {
	p, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, domain.ErrPolicyNotFound) {
		return nil, nil
	}
	return p, err
}

// Seed stores the given policies when the registry is empty.
func (s *PolicyService) Seed(ctx context.Context, policies []*domain.RetryPolicy) (int, error) {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for _, p := range policies {
		if _, err := s.Update(ctx, p); err != nil {
			return 0, err
		}
	}
	return len(policies), nil
}

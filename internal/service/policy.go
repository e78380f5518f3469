// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Serhat17/bonkback/internal/model"
	"github.com/Serhat17/bonkback/internal/repository"
)

// Policy-related errors.
var (
	ErrInvalidPercent = errors.New("immediate release percent must be between 0 and 100")
	ErrInvalidDelay   = errors.New("deferred release delay must be >= 0 days")
)

// PolicyService handles reading and admin-gated mutation of the release policy.
type PolicyService struct {
	policyRepo *repository.PolicyRepository
}

// NewPolicyService creates a new PolicyService instance.
func NewPolicyService(policyRepo *repository.PolicyRepository) *PolicyService {
	return &PolicyService{policyRepo: policyRepo}
}

// Get retrieves the active policy.
func (s *PolicyService) Get(ctx context.Context) (*model.CashbackPolicy, error) {
	return s.policyRepo.Get(ctx)
}

// Update validates and applies a new policy. Validation happens server-side
// regardless of any client-side checks. Already-settled amounts are not
// recomputed; release views always derive from the policy current at read time.
func (s *PolicyService) Update(ctx context.Context, immediatePercent, delayDays int) (*model.CashbackPolicy, error) {
	if immediatePercent < 0 || immediatePercent > 100 {
		return nil, ErrInvalidPercent
	}
	if delayDays < 0 {
		return nil, ErrInvalidDelay
	}

	policy, err := s.policyRepo.Update(ctx, immediatePercent, delayDays)
	if err != nil {
		return nil, fmt.Errorf("failed to update policy: %w", err)
	}
	return policy, nil
}

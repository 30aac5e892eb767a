package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/shopcore/api/internal/domain"
	"github.com/shopcore/api/internal/repositories"
)

var (
	errPromotionRepositoryRequired = errors.New("promotion service: repository is required")
	errPromotionClockRequired      = errors.New("promotion service: clock is required")
)

// PromotionServiceDeps wires the dependencies for promotion evaluation.
type PromotionServiceDeps struct {
	Repository repositories.PromotionRepository
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type promotionService struct {
	repo   repositories.PromotionRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewPromotionService constructs a PromotionValidator backed by the promotion repository.
func NewPromotionService(deps PromotionServiceDeps) (PromotionValidator, error) {
	if deps.Repository == nil {
		return nil, errPromotionRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errPromotionClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &promotionService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// Validate evaluates a promotion code for a cart snapshot. An unknown or
// ineligible code is reported through the result, not the error: the error is
// reserved for backend failures.
func (s *promotionService) Validate(ctx context.Context, cmd ValidatePromotionCommand) (domain.PromotionValidationResult, error) {
	if s == nil || s.repo == nil {
		return domain.PromotionValidationResult{}, errPromotionRepositoryRequired
	}

	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	result := domain.PromotionValidationResult{Code: code}
	if code == "" {
		result.Reason = "promotion code is required"
		return result, nil
	}

	promo, err := s.repo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(cmd.StoreCode)), code)
	if err != nil {
		if isRepoNotFound(err) {
			result.Reason = "unknown promotion code"
			return result, nil
		}
		return domain.PromotionValidationResult{}, fmt.Errorf("promotion service: lookup %q: %w", code, err)
	}

	now := s.now()
	switch {
	case !promo.Active:
		result.Reason = "promotion is not active"
	case !promo.StartsAt.IsZero() && now.Before(promo.StartsAt):
		result.Reason = "promotion has not started"
	case !promo.EndsAt.IsZero() && !now.Before(promo.EndsAt):
		result.Reason = "promotion has expired"
	case promo.UsageLimit != nil && *promo.UsageLimit <= 0:
		result.Reason = "promotion usage limit reached"
	default:
		result.Eligible = true
		result.DiscountAmount = discountFor(promo, cmd.Subtotal)
	}

	if !result.Eligible {
		s.logger(ctx, "promotions.rejected", map[string]any{
			"promo":  code,
			"store":  cmd.StoreCode,
			"reason": result.Reason,
		})
	}
	return result, nil
}

// discountFor prefers the fixed amount when both are set. The discount never
// exceeds the subtotal.
func discountFor(promo domain.Promotion, subtotal int64) int64 {
	var discount int64
	switch {
	case promo.Amount > 0:
		discount = promo.Amount
	case promo.Percent > 0:
		discount = int64(math.Round(float64(subtotal) * promo.Percent / 100))
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

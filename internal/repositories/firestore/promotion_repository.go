package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/shopcore/api/internal/domain"
	pfirestore "github.com/shopcore/api/internal/platform/firestore"
	"github.com/shopcore/api/internal/repositories"
)

const (
	promotionCollection = "promotions"
)

// PromotionRepository resolves promotion rules for cart evaluation.
type PromotionRepository struct {
	base     *pfirestore.BaseRepository[promotionDocument]
	provider *pfirestore.Provider
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[promotionDocument](provider, promotionCollection)
	return &PromotionRepository{
		base:     base,
		provider: provider,
	}, nil
}

// FindByCode resolves a promotion by its case-insensitive code within a store.
func (r *PromotionRepository) FindByCode(ctx context.Context, storeCode, code string) (domain.Promotion, error) {
	if r == nil || r.base == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Promotion{}, errors.New("promotion repository: code is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("storeCode", "==", strings.TrimSpace(storeCode)).
			Where("code", "==", code).
			Limit(1)
	})
	if err != nil {
		return domain.Promotion{}, err
	}
	if len(docs) == 0 {
		return domain.Promotion{}, notFoundError("promotions.query", "promotion not found in store")
	}

	doc := docs[0]
	promo := domain.Promotion{
		ID:        doc.ID,
		Code:      doc.Data.Code,
		Name:      doc.Data.Name,
		StoreCode: doc.Data.StoreCode,
		Percent:   doc.Data.Percent,
		Amount:    doc.Data.Amount,
		StartsAt:  doc.Data.StartsAt,
		EndsAt:    doc.Data.EndsAt,
		Active:    doc.Data.Active,
	}
	if doc.Data.UsageLimit > 0 {
		limit := doc.Data.UsageLimit
		promo.UsageLimit = &limit
	}
	return promo, nil
}

type promotionDocument struct {
	Code       string    `firestore:"code"`
	Name       string    `firestore:"name,omitempty"`
	StoreCode  string    `firestore:"storeCode"`
	Percent    float64   `firestore:"percent,omitempty"`
	Amount     int64     `firestore:"amount,omitempty"`
	StartsAt   time.Time `firestore:"startsAt"`
	EndsAt     time.Time `firestore:"endsAt"`
	UsageLimit int       `firestore:"usageLimit,omitempty"`
	Active     bool      `firestore:"active"`
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

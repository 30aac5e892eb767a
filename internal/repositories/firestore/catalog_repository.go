package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/shopcore/api/internal/domain"
	pfirestore "github.com/shopcore/api/internal/platform/firestore"
	"github.com/shopcore/api/internal/repositories"
)

const (
	productCollection = "products"
)

// CatalogRepository resolves catalog products for cart validation.
type CatalogRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection)
	return &CatalogRepository{
		base:     base,
		provider: provider,
	}, nil
}

// FindBySKU resolves the product carrying the SKU within the store.
func (r *CatalogRepository) FindBySKU(ctx context.Context, storeCode, sku string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return domain.Product{}, errors.New("catalog repository: sku is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("storeCode", "==", strings.TrimSpace(storeCode)).
			Where("sku", "==", sku).
			Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, notFoundError("products.query", "sku not found in store")
	}

	doc := docs[0]
	return domain.Product{
		ID:        doc.ID,
		SKU:       doc.Data.SKU,
		StoreCode: doc.Data.StoreCode,
		Name:      doc.Data.Name,
		Price:     doc.Data.Price,
		Available: doc.Data.Available,
	}, nil
}

type productDocument struct {
	SKU       string `firestore:"sku"`
	StoreCode string `firestore:"storeCode"`
	Name      string `firestore:"name"`
	Price     int64  `firestore:"price"`
	Available bool   `firestore:"available"`
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/shopcore/api/internal/domain"
	pfirestore "github.com/shopcore/api/internal/platform/firestore"
	"github.com/shopcore/api/internal/repositories"
)

const (
	storeCollection = "stores"
)

// StoreRepository resolves merchant store definitions keyed by store code.
type StoreRepository struct {
	base     *pfirestore.BaseRepository[storeDocument]
	provider *pfirestore.Provider
}

// NewStoreRepository constructs a Firestore-backed store repository.
func NewStoreRepository(provider *pfirestore.Provider) (*StoreRepository, error) {
	if provider == nil {
		return nil, errors.New("store repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[storeDocument](provider, storeCollection)
	return &StoreRepository{
		base:     base,
		provider: provider,
	}, nil
}

// FindByCode loads a store definition by its code.
func (r *StoreRepository) FindByCode(ctx context.Context, code string) (domain.Store, error) {
	if r == nil || r.base == nil {
		return domain.Store{}, errors.New("store repository not initialised")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Store{}, errors.New("store repository: store code is required")
	}

	doc, err := r.base.Get(ctx, code)
	if err != nil {
		return domain.Store{}, err
	}

	return domain.Store{
		Code:            doc.ID,
		Name:            doc.Data.Name,
		DefaultCurrency: strings.ToUpper(strings.TrimSpace(doc.Data.DefaultCurrency)),
		DefaultLanguage: doc.Data.DefaultLanguage,
		SupportedLangs:  append([]string(nil), doc.Data.SupportedLangs...),
	}, nil
}

type storeDocument struct {
	Name            string   `firestore:"name"`
	DefaultCurrency string   `firestore:"defaultCurrency"`
	DefaultLanguage string   `firestore:"defaultLanguage"`
	SupportedLangs  []string `firestore:"supportedLangs,omitempty"`
}

var _ repositories.StoreRepository = (*StoreRepository)(nil)

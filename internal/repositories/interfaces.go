package repositories

import (
	"context"
	"time"

	domain "github.com/shopcore/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository owns cart persistence with optimistic locking guarantees.
// All lookups are store-scoped: a cart belonging to another store is reported
// as not found.
type CartRepository interface {
	Insert(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Update(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
	FindByCode(ctx context.Context, storeCode, code string) (domain.Cart, error)
	FindByCustomer(ctx context.Context, storeCode, customerID string) (domain.Cart, error)
}

// TransactionRepository appends immutable payment transactions and answers
// per-order history queries. Transactions are never updated or deleted.
type TransactionRepository interface {
	Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
	ListByOrder(ctx context.Context, storeCode, orderID string) ([]domain.Transaction, error)
	LastByOrder(ctx context.Context, storeCode, orderID string) (*domain.Transaction, error)
	ListAuthorizedBetween(ctx context.Context, storeCode string, start, end time.Time) ([]domain.Transaction, error)
}

// OrderRepository reads order headers referenced by payment flows.
type OrderRepository interface {
	FindByID(ctx context.Context, storeCode, orderID string) (domain.Order, error)
	FindByIDs(ctx context.Context, storeCode string, orderIDs []string) ([]domain.Order, error)
}

// CatalogRepository resolves purchasable products by SKU within a store.
type CatalogRepository interface {
	FindBySKU(ctx context.Context, storeCode, sku string) (domain.Product, error)
}

// PromotionRepository resolves promotion rules by code within a store.
type PromotionRepository interface {
	FindByCode(ctx context.Context, storeCode, code string) (domain.Promotion, error)
}

// StoreRepository resolves merchant store definitions by code.
type StoreRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Store, error)
}

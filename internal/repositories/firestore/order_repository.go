package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/shopcore/api/internal/domain"
	pfirestore "github.com/shopcore/api/internal/platform/firestore"
	"github.com/shopcore/api/internal/repositories"
)

const (
	orderCollection = "orders"
)

// OrderRepository reads order headers from Firestore. Orders are written by
// the checkout surface; this API only consults them.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// FindByID loads an order header. Orders belonging to another store are
// reported as not found.
func (r *OrderRepository) FindByID(ctx context.Context, storeCode, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !strings.EqualFold(doc.Data.StoreCode, strings.TrimSpace(storeCode)) {
		return domain.Order{}, notFoundError("orders.get", "order not found for store")
	}

	return decodeOrder(doc.ID, doc.Data), nil
}

// FindByIDs loads the order headers for the given IDs, skipping orders that
// are missing or belong to another store.
func (r *OrderRepository) FindByIDs(ctx context.Context, storeCode string, orderIDs []string) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	out := make([]domain.Order, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		order, err := r.FindByID(ctx, storeCode, orderID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		out = append(out, order)
	}
	return out, nil
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: doc.OrderNumber,
		StoreCode:   doc.StoreCode,
		Currency:    strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Total:       doc.Total,
		Status:      domain.OrderStatus(doc.Status),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if strings.TrimSpace(doc.CustomerID) != "" {
		customerID := strings.TrimSpace(doc.CustomerID)
		order.CustomerID = &customerID
	}
	return order
}

type orderDocument struct {
	OrderNumber string    `firestore:"orderNumber"`
	CustomerID  string    `firestore:"customerId,omitempty"`
	StoreCode   string    `firestore:"storeCode"`
	Currency    string    `firestore:"currency"`
	Total       int64     `firestore:"total"`
	Status      string    `firestore:"status"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

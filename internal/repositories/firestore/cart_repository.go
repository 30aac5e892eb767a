package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shopcore/api/internal/domain"
	pfirestore "github.com/shopcore/api/internal/platform/firestore"
	"github.com/shopcore/api/internal/repositories"
)

const (
	cartCollection = "carts"
)

// CartRepository persists carts within Firestore, one document per cart code.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert persists a new cart document keyed by its generated code.
func (r *CartRepository) Insert(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	code := strings.TrimSpace(cart.Code)
	if code == "" {
		return domain.Cart{}, errors.New("cart repository: cart code is required")
	}

	doc := encodeCart(cart)
	result, err := r.base.Set(ctx, code, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := decodeCart(code, doc)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Update rewrites the mutable cart fields. When expectedUpdate is supplied the
// write is guarded by Firestore's last-update-time precondition so concurrent
// writers surface as conflicts.
func (r *CartRepository) Update(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	code := strings.TrimSpace(cart.Code)
	if code == "" {
		return domain.Cart{}, errors.New("cart repository: cart code is required")
	}

	doc := encodeCart(cart)

	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err := r.base.Set(ctx, code, doc)
		if err != nil {
			return domain.Cart{}, err
		}
		saved := decodeCart(code, doc)
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	updates := []firestore.Update{
		{Path: "currency", Value: doc.Currency},
		{Path: "items", Value: doc.Items},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	if doc.CustomerID == "" {
		updates = append(updates, firestore.Update{Path: "customerId", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "customerId", Value: doc.CustomerID})
	}
	if doc.Promotion == nil {
		updates = append(updates, firestore.Update{Path: "promo", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "promo", Value: doc.Promotion})
	}
	if len(doc.Metadata) == 0 {
		updates = append(updates, firestore.Update{Path: "metadata", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "metadata", Value: doc.Metadata})
	}

	result, err := r.base.Update(ctx, code, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
	if err != nil {
		return domain.Cart{}, err
	}

	saved := decodeCart(code, doc)
	saved.CreatedAt = cart.CreatedAt
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// FindByCode loads a cart by its code. Carts belonging to another store are
// reported as not found so cross-store probing leaks nothing.
func (r *CartRepository) FindByCode(ctx context.Context, storeCode, code string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Cart{}, errors.New("cart repository: cart code is required")
	}

	doc, err := r.base.Get(ctx, code)
	if err != nil {
		return domain.Cart{}, err
	}
	if !strings.EqualFold(doc.Data.StoreCode, strings.TrimSpace(storeCode)) {
		return domain.Cart{}, notFoundError("carts.get", "cart not found for store")
	}

	cart := decodeCart(doc.ID, doc.Data)
	if !doc.UpdateTime.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	return cart, nil
}

// FindByCustomer returns the customer's most recently updated cart in the store.
func (r *CartRepository) FindByCustomer(ctx context.Context, storeCode, customerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}
	storeCode = strings.TrimSpace(storeCode)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("storeCode", "==", storeCode).
			Where("customerId", "==", customerID).
			OrderBy("updatedAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	if len(docs) == 0 {
		return domain.Cart{}, notFoundError("carts.query", "no cart for customer")
	}

	cart := decodeCart(docs[0].ID, docs[0].Data)
	if !docs[0].UpdateTime.IsZero() {
		cart.UpdatedAt = docs[0].UpdateTime
	}
	return cart, nil
}

func notFoundError(op, message string) error {
	return pfirestore.WrapError(op, status.Error(codes.NotFound, message))
}

func encodeCart(cart domain.Cart) cartDocument {
	now := time.Now().UTC()
	updatedAt := cart.UpdatedAt.UTC()
	if cart.UpdatedAt.IsZero() {
		updatedAt = now
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := cartDocument{
		StoreCode: strings.TrimSpace(cart.StoreCode),
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
		Metadata:  cloneAnyMap(cart.Metadata),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if cart.CustomerID != nil {
		doc.CustomerID = strings.TrimSpace(*cart.CustomerID)
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			SKU:        strings.TrimSpace(item.SKU),
			ProductID:  strings.TrimSpace(item.ProductID),
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Attributes: cloneStringMap(item.Attributes),
			AddedAt:    item.AddedAt.UTC(),
			UpdatedAt:  item.UpdatedAt,
		})
	}
	if cart.Promotion != nil {
		doc.Promotion = &cartPromotionDocument{
			Code:           strings.TrimSpace(cart.Promotion.Code),
			DiscountAmount: cart.Promotion.DiscountAmount,
			Applied:        cart.Promotion.Applied,
			AppliedAt:      cart.Promotion.AppliedAt.UTC(),
		}
	}
	return doc
}

func decodeCart(code string, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		Code:      code,
		StoreCode: doc.StoreCode,
		Currency:  strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Items:     make([]domain.CartItem, 0, len(doc.Items)),
		Metadata:  cloneAnyMap(doc.Metadata),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if strings.TrimSpace(doc.CustomerID) != "" {
		customerID := strings.TrimSpace(doc.CustomerID)
		cart.CustomerID = &customerID
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			SKU:        item.SKU,
			ProductID:  item.ProductID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Attributes: cloneStringMap(item.Attributes),
			AddedAt:    item.AddedAt,
			UpdatedAt:  item.UpdatedAt,
		})
	}
	if doc.Promotion != nil {
		cart.Promotion = &domain.CartPromotion{
			Code:           doc.Promotion.Code,
			DiscountAmount: doc.Promotion.DiscountAmount,
			Applied:        doc.Promotion.Applied,
			AppliedAt:      doc.Promotion.AppliedAt,
		}
	}
	cart.Totals = domain.ComputeCartTotals(cart.Items, cart.Promotion)
	return cart
}

func cloneAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

type cartDocument struct {
	StoreCode  string                 `firestore:"storeCode"`
	CustomerID string                 `firestore:"customerId,omitempty"`
	Currency   string                 `firestore:"currency"`
	Items      []cartItemDocument     `firestore:"items"`
	Promotion  *cartPromotionDocument `firestore:"promo,omitempty"`
	Metadata   map[string]any         `firestore:"metadata,omitempty"`
	CreatedAt  time.Time              `firestore:"createdAt"`
	UpdatedAt  time.Time              `firestore:"updatedAt"`
}

type cartItemDocument struct {
	SKU        string            `firestore:"sku"`
	ProductID  string            `firestore:"productId"`
	Name       string            `firestore:"name,omitempty"`
	Quantity   int               `firestore:"quantity"`
	UnitPrice  int64             `firestore:"unitPrice"`
	Attributes map[string]string `firestore:"attributes,omitempty"`
	AddedAt    time.Time         `firestore:"addedAt"`
	UpdatedAt  *time.Time        `firestore:"updatedAt,omitempty"`
}

type cartPromotionDocument struct {
	Code           string    `firestore:"code"`
	DiscountAmount int64     `firestore:"discountAmount"`
	Applied        bool      `firestore:"applied"`
	AppliedAt      time.Time `firestore:"appliedAt"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)

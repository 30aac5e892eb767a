package services

import (
	"context"
	"time"

	domain "github.com/shopcore/api/internal/domain"
)

// Type aliases re-exported so handlers depend on the services package alone.
type (
	// Cart aliases the domain cart aggregate.
	Cart = domain.Cart
	// CartItem aliases the domain cart item.
	CartItem = domain.CartItem
	// CartPromotion aliases the applied promotion snapshot.
	CartPromotion = domain.CartPromotion
	// CartTotals aliases the derived cart totals.
	CartTotals = domain.CartTotals
	// Transaction aliases the domain payment transaction.
	Transaction = domain.Transaction
	// TransactionType aliases the transaction kind enumeration.
	TransactionType = domain.TransactionType
	// Order aliases the order header projection.
	Order = domain.Order
	// Payment aliases the tender details submitted with payment operations.
	Payment = domain.Payment
	// Store aliases the merchant store definition.
	Store = domain.Store
)

// CartItemInput describes a single SKU line submitted by cart operations.
type CartItemInput struct {
	SKU        string
	Quantity   int
	Attributes map[string]string
}

// AddToCartCommand creates a cart (when no code is supplied) and upserts one item.
type AddToCartCommand struct {
	StoreCode  string
	Currency   string
	Language   string
	CartCode   string
	CustomerID *string
	Item       CartItemInput
}

// ModifyCartCommand upserts a single SKU line on an existing cart.
// Quantity zero removes the line; removal of an absent SKU is a no-op.
type ModifyCartCommand struct {
	CartCode   string
	StoreCode  string
	CustomerID *string
	Item       CartItemInput
}

// ModifyCartMultiCommand applies a batch of line updates atomically.
type ModifyCartMultiCommand struct {
	CartCode   string
	StoreCode  string
	CustomerID *string
	Items      []CartItemInput
}

// ApplyPromotionCommand applies a promotion code to an existing cart.
type ApplyPromotionCommand struct {
	CartCode   string
	StoreCode  string
	CustomerID *string
	PromoCode  string
}

// RemoveCartItemCommand removes a SKU line from a cart. ReturnCart controls
// whether the caller wants the updated cart body back.
type RemoveCartItemCommand struct {
	CartCode   string
	StoreCode  string
	CustomerID *string
	SKU        string
	ReturnCart bool
}

// CustomerCartQuery resolves the cart for an authenticated customer. When
// CartCode is set the cart must belong to the customer.
type CustomerCartQuery struct {
	StoreCode  string
	CustomerID string
	CartCode   string
}

// CartService exposes cart lifecycle operations keyed by opaque cart codes.
type CartService interface {
	AddToCart(ctx context.Context, cmd AddToCartCommand) (Cart, error)
	ModifyCart(ctx context.Context, cmd ModifyCartCommand) (Cart, error)
	ModifyCartMulti(ctx context.Context, cmd ModifyCartMultiCommand) (Cart, error)
	ApplyPromotion(ctx context.Context, cmd ApplyPromotionCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	GetByCode(ctx context.Context, storeCode, code string) (Cart, error)
	GetForCustomer(ctx context.Context, query CustomerCartQuery) (Cart, error)
}

// ValidatePromotionCommand evaluates a promotion code against a cart snapshot.
type ValidatePromotionCommand struct {
	StoreCode string
	Code      string
	Subtotal  int64
	Currency  string
}

// PromotionValidator evaluates promotion eligibility for carts.
type PromotionValidator interface {
	Validate(ctx context.Context, cmd ValidatePromotionCommand) (domain.PromotionValidationResult, error)
}

// InitPaymentCommand opens a payment transaction for a cart. CustomerID is nil
// for guest checkouts; when present the cart must belong to that customer.
type InitPaymentCommand struct {
	CartCode   string
	StoreCode  string
	CustomerID *string
	Payment    Payment
}

// OrderPaymentCommand drives authorize/capture/refund transitions for an order.
type OrderPaymentCommand struct {
	OrderID   string
	StoreCode string
	Amount    *int64
}

// PaymentService orchestrates the per-order payment transaction state machine.
type PaymentService interface {
	InitTransaction(ctx context.Context, cmd InitPaymentCommand) (Transaction, error)
	Authorize(ctx context.Context, cmd OrderPaymentCommand) (Transaction, error)
	Capture(ctx context.Context, cmd OrderPaymentCommand) (Transaction, error)
	Refund(ctx context.Context, cmd OrderPaymentCommand) (Transaction, error)
}

// CapturableQuery selects orders whose most recent transaction is an
// authorization inside the [Start, End) window. Nil bounds fall back to the
// configured window ending now.
type CapturableQuery struct {
	StoreCode string
	Start     *time.Time
	End       *time.Time
}

// CapturableOrder pairs an order header with its pending authorization.
type CapturableOrder struct {
	Order         Order
	Authorization Transaction
}

// TransactionQueryService answers read-only questions about per-order payment history.
type TransactionQueryService interface {
	NextTransactionType(ctx context.Context, storeCode, orderID string) (TransactionType, error)
	ListTransactions(ctx context.Context, storeCode, orderID string) ([]Transaction, error)
	ListCapturable(ctx context.Context, query CapturableQuery) ([]CapturableOrder, error)
}

package domain

import (
	"time"
)

// Store identifies the merchant storefront a request operates against.
type Store struct {
	Code            string
	Name            string
	DefaultCurrency string
	DefaultLanguage string
	SupportedLangs  []string
}

// Language is the BCP-47 language tag resolved for a request.
type Language struct {
	Tag string
}

// Cart aggregates the mutable shopping cart state for a storefront visitor.
type Cart struct {
	Code       string
	CustomerID *string
	StoreCode  string
	Currency   string
	Items      []CartItem
	Promotion  *CartPromotion
	Totals     CartTotals
	Metadata   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItem stores a single SKU entry within a cart. SKU is the line identity:
// a cart never holds two items with the same SKU.
type CartItem struct {
	SKU        string
	ProductID  string
	Name       string
	Quantity   int
	UnitPrice  int64
	Attributes map[string]string
	AddedAt    time.Time
	UpdatedAt  *time.Time
}

// CartPromotion captures the applied promotion snapshot.
type CartPromotion struct {
	Code           string
	DiscountAmount int64
	Applied        bool
	AppliedAt      time.Time
}

// CartTotals summarizes amounts derived from the current cart lines.
// Amounts are in the smallest currency unit.
type CartTotals struct {
	Subtotal int64
	Discount int64
	Total    int64
	Quantity int
}

// ItemBySKU returns the cart item carrying the given SKU, if present.
func (c *Cart) ItemBySKU(sku string) (*CartItem, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Items {
		if c.Items[i].SKU == sku {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPendingPayment indicates the order awaits payment completion.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaid indicates payment has been captured.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusRefunded indicates payment has been refunded.
	OrderStatusRefunded OrderStatus = "refunded"
	// OrderStatusCanceled indicates the order has been canceled.
	OrderStatusCanceled OrderStatus = "canceled"
)

// Order captures the order header referenced by payment flows. Orders are
// created by checkout and only read here.
type Order struct {
	ID          string
	OrderNumber string
	CustomerID  *string
	StoreCode   string
	Currency    string
	Total       int64
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PaymentMethodType enumerates accepted tender types on payment requests.
type PaymentMethodType string

const (
	// PaymentMethodCreditCard covers card tenders routed through the PSP.
	PaymentMethodCreditCard PaymentMethodType = "credit_card"
	// PaymentMethodWallet covers tokenized wallet tenders (Apple Pay etc.).
	PaymentMethodWallet PaymentMethodType = "wallet"
)

// Payment carries the tender details submitted with a payment operation.
// The token is an opaque PSP reference; raw card data never reaches the API.
type Payment struct {
	MethodType   PaymentMethodType
	Amount       int64
	Currency     string
	Token        string
	Descriptor   string
	TransactedID *string
	Metadata     map[string]any
}

// Product represents the catalog projection needed to validate cart lines.
type Product struct {
	ID        string
	SKU       string
	StoreCode string
	Name      string
	Price     int64
	Available bool
}

// Promotion describes a promotional rule evaluated against carts.
type Promotion struct {
	ID         string
	Code       string
	Name       string
	StoreCode  string
	Percent    float64
	Amount     int64
	StartsAt   time.Time
	EndsAt     time.Time
	UsageLimit *int
	Active     bool
}

// PromotionValidationResult is returned when a promotion is evaluated for a cart.
type PromotionValidationResult struct {
	Code           string
	Eligible       bool
	Reason         string
	DiscountAmount int64
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the intent is awaiting confirmation or capture.
	StatusPending Status = "pending"
	// StatusAuthorized indicates the PSP holds an uncaptured authorization.
	StatusAuthorized Status = "authorized"
	// StatusCaptured indicates the PSP reports the payment as captured.
	StatusCaptured Status = "captured"
	// StatusRefunded indicates the payment has been refunded.
	StatusRefunded Status = "refunded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// InitRequest captures the payload required to open a payment intent.
type InitRequest struct {
	Amount         int64
	Currency       string
	CustomerID     string
	Token          string
	Descriptor     string
	Metadata       map[string]string
	IdempotencyKey string
}

// AuthorizeRequest confirms a previously opened intent, placing a hold.
type AuthorizeRequest struct {
	IntentID       string
	IdempotencyKey string
	Metadata       map[string]string
}

// CaptureRequest settles an authorized intent, optionally for a partial amount.
type CaptureRequest struct {
	IntentID       string
	Amount         *int64
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundRequest returns a captured amount to the customer.
type RefundRequest struct {
	IntentID       string
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// TransactionDetails normalises PSP specific fields for transaction records.
type TransactionDetails struct {
	Provider     string
	IntentID     string
	Status       Status
	Amount       int64
	Currency     string
	AuthorizedAt *time.Time
	CapturedAt   *time.Time
	RefundedAt   *time.Time
	Raw          map[string]any
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	InitTransaction(ctx context.Context, req InitRequest) (TransactionDetails, error)
	Authorize(ctx context.Context, req AuthorizeRequest) (TransactionDetails, error)
	Capture(ctx context.Context, req CaptureRequest) (TransactionDetails, error)
	Refund(ctx context.Context, req RefundRequest) (TransactionDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
	Metadata          map[string]string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// InitTransaction delegates to the resolved provider.
func (m *Manager) InitTransaction(ctx context.Context, paymentCtx PaymentContext, req InitRequest) (TransactionDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return TransactionDetails{}, err
	}
	details, err := provider.InitTransaction(ctx, req)
	if err != nil {
		return TransactionDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// Authorize delegates to the resolved provider.
func (m *Manager) Authorize(ctx context.Context, paymentCtx PaymentContext, req AuthorizeRequest) (TransactionDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return TransactionDetails{}, err
	}
	details, err := provider.Authorize(ctx, req)
	if err != nil {
		return TransactionDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// Capture delegates to the resolved provider.
func (m *Manager) Capture(ctx context.Context, paymentCtx PaymentContext, req CaptureRequest) (TransactionDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return TransactionDetails{}, err
	}
	details, err := provider.Capture(ctx, req)
	if err != nil {
		return TransactionDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// Refund delegates to the resolved provider.
func (m *Manager) Refund(ctx context.Context, paymentCtx PaymentContext, req RefundRequest) (TransactionDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return TransactionDetails{}, err
	}
	details, err := provider.Refund(ctx, req)
	if err != nil {
		return TransactionDetails{}, err
	}
	details.Provider = key
	return details, nil
}
